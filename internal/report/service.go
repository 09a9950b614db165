package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"health-triage/internal/auth"
	"health-triage/internal/consultation"
)

const sendTimeout = 30 * time.Second

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName, caption string) error
}

// Service sends a rescue alert to the responder chat for every assistant turn
// at or above the urgency threshold.
type Service struct {
	tgClient        TelegramClient
	responderChatID int64
	threshold       int
	fontPaths       []string
	logger          zerolog.Logger
	now             func() time.Time
}

func NewService(tg TelegramClient, responderChatID int64, threshold int, fontPaths []string, logger zerolog.Logger) *Service {
	return &Service{
		tgClient:        tg,
		responderChatID: responderChatID,
		threshold:       threshold,
		fontPaths:       fontPaths,
		logger:          logger.With().Str("component", "report").Logger(),
		now:             time.Now,
	}
}

// ObserveTurn implements consultation.TurnObserver. The alert is delivered
// even if the consultation is closed meanwhile.
func (s *Service) ObserveTurn(ctx context.Context, consultationID string, owner auth.Identity, t consultation.Turn) {
	if t.Role != consultation.RoleAssistant || t.UrgencyScore == nil || *t.UrgencyScore < s.threshold {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if err := s.SendRescueAlert(sendCtx, consultationID, owner, t); err != nil {
		s.logger.Error().Err(err).Str("consultation_id", consultationID).Msg("rescue alert not delivered")
		return
	}
	s.logger.Info().Str("consultation_id", consultationID).Int("urgency_score", *t.UrgencyScore).Msg("rescue alert sent")
}

// SendRescueAlert sends the PDF case sheet, or a text message when no PDF
// can be rendered.
func (s *Service) SendRescueAlert(ctx context.Context, consultationID string, owner auth.Identity, t consultation.Turn) error {
	caption := alertText(consultationID, owner, t)

	pdf, err := s.renderCaseSheet(consultationID, owner, t)
	if err != nil {
		s.logger.Warn().Err(err).Msg("case sheet unavailable, sending text alert")
		return s.tgClient.SendMessage(ctx, s.responderChatID, caption)
	}

	fileName := fmt.Sprintf("triage_%s.pdf", consultationID)
	caption = captionText(caption)
	return s.tgClient.SendDocument(ctx, s.responderChatID, pdf, fileName, caption)
}

// Telegram captions are limited to 1024 characters.
const maxCaptionRunes = 1000

// captionText cuts s to the caption limit without splitting a character.
func captionText(s string) string {
	if utf8.RuneCountInString(s) <= maxCaptionRunes {
		return s
	}
	return string([]rune(s)[:maxCaptionRunes])
}

func alertText(consultationID string, owner auth.Identity, t consultation.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URGENT TRIAGE %d/10\n", *t.UrgencyScore)
	patient := owner.Name
	if patient == "" {
		patient = owner.PrincipalID
	}
	fmt.Fprintf(&b, "Patient: %s\n", patient)
	fmt.Fprintf(&b, "Consultation: %s\n", consultationID)
	if len(t.MedicalFlags) > 0 {
		fmt.Fprintf(&b, "Flags: %s\n", strings.Join(t.MedicalFlags, ", "))
	}
	b.WriteString("\n")
	b.WriteString(t.Content)
	return b.String()
}

func (s *Service) renderCaseSheet(consultationID string, owner auth.Identity, t consultation.Turn) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		if fontErr == nil {
			fontErr = errors.New("no font paths configured")
		}
		return nil, errors.Wrap(fontErr, "loading font")
	}

	if err := pdf.SetFont("DejaVu", "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Triage case sheet - urgency %d/10", *t.UrgencyScore))
	pdf.Br(30)

	if err := pdf.SetFont("DejaVu", "", 12); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Date: %s", s.now().Format("02.01.2006 15:04")))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Patient: %s", owner.PrincipalID))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Consultation: %s", consultationID))
	pdf.Br(25)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	for _, para := range strings.Split(t.Content, "\n") {
		if para == "" {
			pdf.Br(8)
			continue
		}
		lines, err := pdf.SplitText(para, 500)
		if err != nil {
			return nil, errors.Wrap(err, "splitting text")
		}
		for _, l := range lines {
			pdf.Cell(nil, l)
			pdf.Br(12)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to write PDF")
	}
	return buf.Bytes(), nil
}
