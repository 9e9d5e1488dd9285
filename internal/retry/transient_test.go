package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient_SystemCodes(t *testing.T) {
	codes := []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ETIMEDOUT,
		syscall.EPIPE,
		syscall.ENETUNREACH,
		syscall.EHOSTUNREACH,
	}
	for _, errno := range codes {
		t.Run(errno.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("dial tcp: %w", errno)
			assert.True(t, IsTransient(wrapped))
		})
	}

	assert.False(t, IsTransient(fmt.Errorf("open: %w", syscall.ENOENT)))
	assert.False(t, IsTransient(fmt.Errorf("denied: %w", syscall.EACCES)))
}

func TestIsTransient_DNS(t *testing.T) {
	assert.True(t, IsTransient(&net.DNSError{Err: "no such host", Name: "x.invalid", IsNotFound: true}))
	assert.True(t, IsTransient(&net.DNSError{Err: "server misbehaving", Name: "x", IsTemporary: true}))
}

func TestIsTransient_Messages(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"502", true},
		{"502 from upstream", true},
		{"HTTP 502", true},
		{"http 503", true},
		{"status 504", true},
		{"status code 429", true},
		{"received 502 Bad Gateway", true},
		{"503 Service Unavailable", true},
		{"504 Gateway Timeout", true},
		{"429 Too Many Requests", true},
		{"request timeout", true},
		{"network error while reading frame", true},
		{"network is unavailable", true},
		{"connection reset by peer", true},
		{"connection refused", true},
		{"connection timeout", true},

		{"520", false},
		{"saw 502 somewhere", false},
		{"unexpected EOF", false},
		{"permission denied", false},
		{"invalid arguments", false},
		{"artwork failure", false},
		{"connection established", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(errors.New(tt.msg)), "message: %q", tt.msg)
		})
	}
}

func TestIsTransient_ContextErrorsNever(t *testing.T) {
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(nil))
}
