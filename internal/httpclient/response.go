package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	reasonerrors "reasoner/internal/errors"
)

// StatusError is a non-2xx answer from a backend.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), body)
}

// ErrBodyTooLarge is wrapped when a response exceeds the read limit.
var ErrBodyTooLarge = fmt.Errorf("response body too large")

// ReadBody reads at most limit bytes of resp.Body. A non-2xx status returns
// a classified error wrapping *StatusError so retry logic can tell rate
// limits and outages from bad requests.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, reasonerrors.Transient(fmt.Errorf("read response: %w", err), "")
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, reasonerrors.Permanent(fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit), "")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, reasonerrors.FromStatus(resp.StatusCode, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		})
	}
	return data, nil
}
