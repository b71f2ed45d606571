// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package httperrors

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: CategoryTimeout,
		},
		{
			name: "net timeout",
			err:  timeoutErr{},
			want: CategoryTimeout,
		},
		{
			name: "dns failure",
			err:  &net.DNSError{Err: "no such host", Name: "orchestrator.invalid"},
			want: CategoryNetwork,
		},
		{
			name: "connection refused",
			err:  &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
			want: CategoryNetwork,
		},
		{
			name: "connection reset",
			err:  errors.New("read tcp 127.0.0.1:53412: connection reset by peer"),
			want: CategoryNetwork,
		},
		{
			name: "unknown error",
			err:  errors.New("something odd"),
			want: CategoryGeneric,
		},
		{
			name: "nil error",
			err:  nil,
			want: CategoryGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(CategoryTimeout, nil); got == "" {
		t.Error("UserMessage(timeout) returned empty string")
	}
	if got := UserMessage(CategoryGeneric, errors.New("boom")); got != "the query stream failed: boom" {
		t.Errorf("UserMessage(generic) = %q", got)
	}
}
