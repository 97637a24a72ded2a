package domain

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

const SessionClearedMessage = "Session cleared. Upload a file to begin a new research session."

var ErrSessionNotFound = errors.New("session not found")

// MaxProviderMessageLen bounds provider text shown to users.
const MaxProviderMessageLen = 150

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindQuotaExhausted
	KindModelUnavailable
	KindRequestRejected
	KindTransientNetwork
	KindProviderUnreachable
	KindIndexingTimeout
	KindConfigurationMissing
)

var kindNames = map[ErrorKind]string{
	KindUnknown:              "unknown",
	KindQuotaExhausted:       "quota_exhausted",
	KindModelUnavailable:     "model_unavailable",
	KindRequestRejected:      "request_rejected",
	KindTransientNetwork:     "transient_network_error",
	KindProviderUnreachable:  "provider_unreachable",
	KindIndexingTimeout:      "indexing_timeout",
	KindConfigurationMissing: "configuration_missing",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is; matching compares kinds only.
var (
	ErrQuotaExhausted       = &Error{Kind: KindQuotaExhausted}
	ErrModelUnavailable     = &Error{Kind: KindModelUnavailable}
	ErrRequestRejected      = &Error{Kind: KindRequestRejected}
	ErrTransientNetwork     = &Error{Kind: KindTransientNetwork}
	ErrProviderUnreachable  = &Error{Kind: KindProviderUnreachable}
	ErrIndexingTimeout      = &Error{Kind: KindIndexingTimeout}
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
)

// Error is the only error kind the gateway surfaces to hosts.
type Error struct {
	Kind    ErrorKind
	Message string
	// RetryAfter is the soonest safe retry, set for QuotaExhausted.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf reports the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage is the short text a host shows for err.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}

	switch e.Kind {
	case KindQuotaExhausted:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("The Professor is busy. Try again in %s.", e.RetryAfter.Round(time.Second))
		}
		return "The Professor is busy. Try again shortly."
	case KindModelUnavailable:
		return "No model is available for this tier right now."
	case KindRequestRejected:
		if errors.Is(e, ErrAttachmentTooLarge) {
			return "This file is too large."
		}
		if e.Message != "" {
			return "Request rejected: " + Truncate(e.Message, MaxProviderMessageLen)
		}
		return "Request rejected."
	case KindTransientNetwork:
		return "The connection is slow or interrupted. Please resend your question."
	case KindProviderUnreachable:
		return "Cannot reach the inference provider."
	case KindIndexingTimeout:
		return "The file took too long to index. Try a smaller file."
	case KindConfigurationMissing:
		return "Action required: configure an API key before asking questions."
	default:
		return "Something went wrong. Please try again."
	}
}

// Truncate cuts s to at most n bytes without splitting a rune. A cut string
// gets an ellipsis appended, so the result can be up to n+3 bytes.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
