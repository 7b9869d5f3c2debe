package httpclient

import (
	"context"
	"fmt"
	"net/http"

	reasonerrors "reasoner/internal/errors"
)

// breakerTransport counts transport failures, 5xx and 429 responses against
// a breaker. Requests whose own context ended do not count.
type breakerTransport struct {
	base    http.RoundTripper
	breaker *reasonerrors.Breaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if req.Context().Err() != nil {
			t.breaker.Record(context.Canceled)
		} else {
			t.breaker.Record(err)
		}
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		t.breaker.Record(fmt.Errorf("http status %d", resp.StatusCode))
	} else {
		t.breaker.Record(nil)
	}
	return resp, nil
}

// BreakerState reports the breaker position of a client built by New, and
// false when it has none.
func BreakerState(client *http.Client) (reasonerrors.BreakerState, bool) {
	if client == nil {
		return reasonerrors.BreakerClosed, false
	}
	bt, ok := client.Transport.(*breakerTransport)
	if !ok {
		return reasonerrors.BreakerClosed, false
	}
	return bt.breaker.State(), true
}
