package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// EmailSender delivers the human readable magic-link code. Implementations
// wrap whatever transport the host application uses; the code digest is
// never handed to them.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// EmailSenderFunc adapts a function into an EmailSender.
type EmailSenderFunc func(ctx context.Context, to, subject, html string) error

func (f EmailSenderFunc) Send(ctx context.Context, to, subject, html string) error {
	if f == nil {
		return nil
	}
	return f(ctx, to, subject, html)
}

// TrustConfigProvider resolves the per-organization trust configuration
// consulted on every inbound action.
type TrustConfigProvider interface {
	GetTrustConfig(ctx context.Context, orgID uuid.UUID) (*OrgTrustConfig, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
