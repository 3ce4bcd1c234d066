package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_Environments(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker", "test"} {
		t.Run(env, func(t *testing.T) {
			l, err := NewLogger(env)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l == nil {
				t.Fatal("expected logger")
			}
		})
	}
}

func TestNewLogger_UnknownEnv(t *testing.T) {
	if _, err := NewLogger("staging"); err == nil {
		t.Fatal("expected error for unknown env")
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.Core().Enabled(zap.DebugLevel) {
		t.Error("expected debug level enabled")
	}
	if _, err := NewLogger("prod", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestFromContext(t *testing.T) {
	base := zap.NewExample()
	if got := FromContextOr(context.Background(), base); got != base {
		t.Error("expected fallback logger outside a request")
	}

	reqLogger := zap.NewExample().With(zap.String("request_id", "r1"))
	ctx := ContextWithLogger(context.Background(), reqLogger)
	if got := FromContext(ctx); got != reqLogger {
		t.Error("expected request logger from context")
	}
	if got := FromContextOr(ctx, base); got != reqLogger {
		t.Error("request logger should win over fallback")
	}
}
