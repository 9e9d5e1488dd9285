package retry

import (
	"context"
	"errors"
	"net"
	"regexp"
	"syscall"
)

// transientErrnos are the system codes worth another attempt. DNS-level
// failures (NXDOMAIN, EAI_AGAIN) arrive as *net.DNSError rather than errnos
// and are matched separately.
var transientErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
}

// Message-level fallback: classification by text when the cause has been
// flattened into a string by a transport or daemon boundary. The HTTP
// status patterns accept a retriable status at the start of the message,
// after an http/status token, or followed by its canonical reason phrase;
// a bare "520" deliberately matches nothing.
var transientMessagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(502|503|504|429)\b`),
	regexp.MustCompile(`(?i)\b(?:http|status(?:\s+code)?)[\s:]+(502|503|504|429)\b`),
	regexp.MustCompile(`(?i)\b502\s+bad\s+gateway\b`),
	regexp.MustCompile(`(?i)\b503\s+service\s+unavailable\b`),
	regexp.MustCompile(`(?i)\b504\s+gateway\s+time-?out\b`),
	regexp.MustCompile(`(?i)\b429\s+too\s+many\s+requests\b`),
	regexp.MustCompile(`(?i)\btimeout\b`),
	regexp.MustCompile(`(?i)\bnetwork\b.*\b(?:error|fail|fails|failed|failure|unavailable|timeout)\b`),
	regexp.MustCompile(`(?i)\bconnection\b.*\b(?:reset|refused|timeout)\b`),
}

// IsTransient classifies err for the executor. Context cancellation is
// never transient: the caller's deadline dominates.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// Covers both a transient resolver (EAI_AGAIN) and a host that
		// may simply not have propagated yet (ENOTFOUND).
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, re := range transientMessagePatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}
