package llm

import (
	"errors"
	"strings"

	"google.golang.org/genai"
)

// Kind classifies a generation failure for recovery decisions.
type Kind int

const (
	// KindFatal is an unrecoverable failure. It escalates immediately.
	KindFatal Kind = iota

	// KindTransient is a temporary backend condition. Not recovered by the
	// fallback protocol; callers may retry at their own discretion.
	KindTransient

	// KindQuota is a rate/usage-limit failure, recoverable by trying
	// fallback models in order.
	KindQuota
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Classify maps a generation failure to a Kind.
//
// Provider status codes are the primary signal. The message-substring match
// is a compatibility shim for errors that reach us without a typed API error.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED":
			return KindQuota
		case apiErr.Code >= 500 || apiErr.Status == "UNAVAILABLE":
			return KindTransient
		default:
			return KindFatal
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "resourceexhausted") ||
		strings.Contains(msg, "429") {
		return KindQuota
	}

	return KindFatal
}
