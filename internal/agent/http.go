package agent

import (
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4096

// TransportError means a call did not complete or the service answered with
// a non-success status.
type TransportError struct {
	Service    string
	StatusCode int // zero when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error: %d - %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// do sends req and hands back the body of a 2xx answer; the caller closes it.
func do(httpClient *http.Client, req *http.Request, service string) (io.ReadCloser, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Service: service, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        errors.Errorf("unexpected status %s", resp.Status),
		}
	}
	return resp.Body, nil
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
