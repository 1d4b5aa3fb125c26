package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/wilhg/sherpa/pkg/errmodel"
)

// Classify turns a provider failure into an upstream error when it belongs to
// the classes an agent cannot recover from by retrying with a different
// action: authentication, connection, timeout, rate limit and invalid request.
// status is the HTTP status the SDK reported, or 0. Other errors are wrapped
// with the provider name and returned unchanged in kind.
func Classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	code := ""
	switch {
	case errors.Is(err, context.DeadlineExceeded), status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		code = errmodel.CodeTimeout
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		code = errmodel.CodeAuthentication
	case status == http.StatusTooManyRequests:
		code = errmodel.CodeRateLimit
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		code = errmodel.CodeInvalidRequest
	case status == 0 && isConnectionError(err):
		code = errmodel.CodeConnection
	}
	if code == "" {
		return fmt.Errorf("%s: %w", provider, err)
	}
	ctx := map[string]any{"provider": provider}
	if status != 0 {
		ctx["status"] = status
	}
	return errmodel.Upstream(code, fmt.Sprintf("%s: %s", provider, err.Error()), ctx, err)
}

func isConnectionError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
