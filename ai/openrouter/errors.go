package openrouter

import (
	"context"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/teranos/exemplar/errors"
)

// maxErrorBody bounds how much of an error response ends up in a message.
const maxErrorBody = 512

// ClassifyStatus turns a non-200 response into a transient or terminal
// error. 408, 409, 425, 429 and 5xx are worth retrying; everything else
// (bad request, auth, unknown model, content refusal) is not.
func ClassifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	err := errors.Newf("API request failed with status %d: %s", status, msg)

	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests,
		status >= 500:
		return errors.Transient(err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.Terminal(errors.WithHint(err, "check the backend API key"))
	default:
		return errors.Terminal(err)
	}
}

// ClassifyTransport marks network failures. Cancellation by the caller is
// terminal; timeouts and dropped connections are transient.
func ClassifyTransport(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, "failed to send request")
	if ctx.Err() == context.Canceled {
		return errors.Terminal(wrapped)
	}
	if isRetryableNetworkError(err) {
		return errors.Transient(wrapped)
	}
	return errors.Terminal(wrapped)
}

func isRetryableNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"unexpected eof",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
