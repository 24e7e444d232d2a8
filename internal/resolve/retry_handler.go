package resolve

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// RcodeError is a DNS response with a non-success rcode.
type RcodeError struct {
	Rcode int
}

func (e *RcodeError) Error() string {
	return fmt.Sprintf("DNS error: %s", mdns.RcodeToString[e.Rcode])
}

func IsNXDomain(err error) bool {
	var re *RcodeError
	return errors.As(err, &re) && re.Rcode == mdns.RcodeNameError
}

// IsPermanentDNSError reports answers that another attempt will not change.
func IsPermanentDNSError(err error) bool {
	var re *RcodeError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Rcode {
	case mdns.RcodeNameError, mdns.RcodeRefused, mdns.RcodeNotZone, mdns.RcodeNotAuth, mdns.RcodeFormatError:
		return true
	}
	return false
}

type RetryHandler struct {
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	jitterFactor float64
	logger       *logrus.Logger
}

func NewRetryHandler(maxRetries int, baseDelay time.Duration, logger *logrus.Logger) *RetryHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryHandler{
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxDelay:     baseDelay * 10,
		jitterFactor: 0.3,
		logger:       logger,
	}
}

func (r *RetryHandler) DoWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if IsPermanentDNSError(lastErr) {
			r.logger.Debugf("Stopping retries due to permanent error: %v", lastErr)
			break
		}
		if attempt == r.maxRetries {
			break
		}
		backoff := r.calculateBackoff(attempt + 1)
		r.logger.Debugf("DNS query failed (attempt %d/%d), retrying in %v: %v",
			attempt+1, r.maxRetries+1, backoff, lastErr)

		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

func (r *RetryHandler) calculateBackoff(attemptNumber int) time.Duration {
	backoff := r.baseDelay * time.Duration(1<<(attemptNumber-1))
	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}
	scale := 1 + r.jitterFactor*(2*rand.Float64()-1)
	return time.Duration(float64(backoff) * scale)
}
