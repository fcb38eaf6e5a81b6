package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/b2stos/nexuszap-sub000/internal/model"
)

// APIError is a broker business-rule rejection, as opposed to a transport
// failure reaching the broker at all.
type APIError struct {
	HTTPStatus int    `json:"http_status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error %s (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Broker error codes that poison the whole channel: continuing to send would
// fail every recipient while still consuming quota.
var systemicCodes = map[string]bool{
	"0":      true, // auth exception
	"190":    true, // access token expired
	"368":    true, // account temporarily blocked
	"131031": true, // account locked
	"131042": true, // payment eligibility problem
}

// Broker error codes that condemn only the one recipient.
var terminalCodes = map[string]bool{
	"131021": true, // invalid recipient
	"131026": true, // number not on WhatsApp / undeliverable
	"131050": true, // user opted out of marketing
	"470":    true, // re-engagement required
}

// ClassifyCode buckets a bare broker error code, e.g. one embedded in an
// asynchronous status webhook. Unknown codes condemn only the recipient.
func ClassifyCode(code string) model.ErrorClass {
	switch {
	case systemicCodes[code]:
		return model.ErrorSystemic
	default:
		return model.ErrorTerminal
	}
}

// Classify buckets a send error into the retry taxonomy. Timeouts are
// ambiguous (the message may have gone out) and come back transient; the
// idempotency key on the request makes the retry safe.
func Classify(err error) model.ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatus == 401 || systemicCodes[apiErr.Code]:
			return model.ErrorSystemic
		case terminalCodes[apiErr.Code]:
			return model.ErrorTerminal
		case apiErr.HTTPStatus == 408 || apiErr.HTTPStatus == 429 || apiErr.HTTPStatus >= 500:
			return model.ErrorTransient
		default:
			return model.ErrorTerminal
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.ErrorTransient
	}
	return model.ErrorTransient
}

// ErrorCode extracts the broker code when present, or a stable placeholder
// for transport-level failures so diagnostics can still group them.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "transport"
}
