package handlers

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"voxpro/internal/apperr"
)

const DefaultTimeout = 10 * time.Second

func newRestClient(hc *http.Client, baseURL string, timeout time.Duration) *resty.Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return resty.NewWithClient(hc).
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "voxpro/1.0 (voice assistant)")
}

// transportError wraps a failed round trip.
func transportError(op string, err error) error {
	return apperr.New(apperr.UnreachableService, op, "", err)
}

// statusError maps an HTTP error status onto the failure taxonomy. msg is
// used for statuses that mean the argument itself was bad.
func statusError(op string, resp *resty.Response, notFoundMsg string) error {
	cause := &httpStatusError{code: resp.StatusCode(), status: resp.Status()}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.New(apperr.AuthFailure, op, "", cause)
	case code == http.StatusNotFound || code == http.StatusBadRequest:
		return apperr.New(apperr.InvalidArgument, op, notFoundMsg, cause)
	case code == http.StatusTooManyRequests || code >= 500:
		return apperr.New(apperr.UnreachableService, op, "", cause)
	default:
		return apperr.New(apperr.Unclassified, op, "", cause)
	}
}

type httpStatusError struct {
	code   int
	status string
}

func (e *httpStatusError) Error() string {
	if e.status != "" {
		return "unexpected status " + e.status
	}
	return "unexpected status " + http.StatusText(e.code)
}
