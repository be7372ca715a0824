// Package retry classifies stage failures and computes bounded
// exponential backoff. It holds no state: the orchestrator loop owns the
// retry loop, the invoker never retries internally.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/autojp/autojp/pkg/contract"
)

// Class is the retryability classification of a failure.
type Class int

const (
	// ClassPermanent covers validation failures, auth rejections and any
	// error the stage contract tags as non-transient. One attempt only.
	ClassPermanent Class = iota

	// ClassTransient covers timeouts, connection failures, rate limits
	// and 5xx-equivalents. Retried within the policy budget.
	ClassTransient
)

// transientKeywords match stage-reported error text that indicates a
// recoverable condition. Mirrors what the stage executors actually emit.
var transientKeywords = []string{
	"timeout", "tempor", "rate", "429", "5xx", "502", "503", "504",
	"connection", "unavailable",
}

// permanentKeywords always win over transient matches: an error that
// mentions credentials or input validation is not worth retrying even if
// it also mentions a connection.
var permanentKeywords = []string{"401", "403", "invalid", "validation"}

// Classify determines whether an invocation-level error is retryable.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}
	switch {
	case errors.Is(err, ErrAuth), errors.Is(err, ErrValidation):
		return ClassPermanent
	case errors.Is(err, ErrTransient):
		return ClassTransient
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	return classifyText(err.Error())
}

// ClassifyResult determines whether a failed stage result is retryable.
// Only meaningful for results that do not advance the pipeline.
func ClassifyResult(res contract.Result) Class {
	if res.Status == contract.StatusTimeout {
		return ClassTransient
	}
	for _, msg := range res.Errors {
		text := strings.ToLower(msg)
		for _, kw := range permanentKeywords {
			if strings.Contains(text, kw) {
				return ClassPermanent
			}
		}
		for _, kw := range transientKeywords {
			if strings.Contains(text, kw) {
				return ClassTransient
			}
		}
	}
	return ClassPermanent
}

func classifyText(text string) Class {
	lowered := strings.ToLower(text)
	for _, kw := range permanentKeywords {
		if strings.Contains(lowered, kw) {
			return ClassPermanent
		}
	}
	for _, kw := range transientKeywords {
		if strings.Contains(lowered, kw) {
			return ClassTransient
		}
	}
	return ClassPermanent
}

// Policy bounds retries of transient failures.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// Backoff is the base delay before the first retry.
	Backoff time.Duration
}

// DefaultPolicy returns the stock policy: two retries, two-second base.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, Backoff: 2 * time.Second}
}

// Delay computes the backoff before the given retry. retryCount is
// 1-based: the first retry waits the base delay, each further retry
// doubles it.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return p.Backoff * (1 << (retryCount - 1))
}

// Exhausted reports whether a recorded retry count has consumed the whole
// budget: an entity at this count gets no further attempts.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}

// ShouldRetry combines classification and budget: a failure is retried
// only when it is transient and budget remains after this attempt.
func (p Policy) ShouldRetry(class Class, retryCount int) bool {
	return class == ClassTransient && retryCount <= p.MaxRetries
}
