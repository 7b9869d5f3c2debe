package errors

import (
	"context"
	"errors"
	"net/http"
)

// UserMessage turns err into one sentence for the command line. Classified
// errors with a Message use it; anything else is described by its status.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) && classified.Message != "" {
		return classified.Message
	}

	switch status := StatusCode(err); {
	case status == http.StatusTooManyRequests:
		return "The language model is rate limited right now. Try again shortly."
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "The backend rejected the configured API key."
	case status >= http.StatusInternalServerError:
		return "The backend is temporarily unavailable."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case IsUnavailable(err):
		return "The backend is paused after repeated failures."
	}
	return err.Error()
}
