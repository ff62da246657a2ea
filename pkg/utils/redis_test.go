package utils

import (
	"context"
	"testing"
	"time"
)

func TestAllowFixedWindow_ValidatesArguments(t *testing.T) {
	ctx := context.Background()
	if _, err := AllowFixedWindow(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if fixedWindowScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}
