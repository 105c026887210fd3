package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/presence"
)

func TestCachedDirectory_Resolve(t *testing.T) {
	reg := presence.NewRegistry(2)
	dir, err := NewCachedDirectory(reg, 8)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// live presence is the fallback behind the cache
	reg.MarkOnline(l45)
	got, err := dir.Resolve(ctx, l45.ID)
	if err != nil || got != l45 {
		t.Fatalf("resolve online = %+v, %v", got, err)
	}

	// once cached the identity outlives the presence entry
	reg.MarkOffline(l45.ID)
	if got, err := dir.Resolve(ctx, l45.ID); err != nil || got.DisplayName != l45.DisplayName {
		t.Fatalf("resolve cached = %+v, %v", got, err)
	}

	got, err = dir.Resolve(ctx, 999)
	if !errors.Is(err, model.ErrUnknownUser) {
		t.Fatalf("err = %v", err)
	}
	if got.ID != 999 {
		t.Fatal("bare identity must keep the id")
	}
}

func TestCachedDirectory_ResolvePair(t *testing.T) {
	dir, err := NewCachedDirectory(presence.NewRegistry(2), 8)
	if err != nil {
		t.Fatal(err)
	}
	dir.Remember(u123)
	ctx := context.Background()

	a, b, err := dir.ResolvePair(ctx, u123.ID, l46.ID)
	if err == nil {
		t.Fatal("unknown side must fail the pair")
	}
	if a.ID != u123.ID || b.ID != l46.ID {
		t.Fatalf("ids lost: %v %v", a.ID, b.ID)
	}

	dir.Remember(l46)
	a, b, err = dir.ResolvePair(ctx, u123.ID, l46.ID)
	if err != nil || a != u123 || b != l46 {
		t.Fatalf("pair = %+v %+v %v", a, b, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := dir.ResolvePair(cancelled, u123.ID, l46.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled err = %v", err)
	}
}

func TestDirectoryMiddleware_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	base, err := NewCachedDirectory(presence.NewRegistry(2), 8)
	if err != nil {
		t.Fatal(err)
	}
	dir := NewDirectoryMiddleware(base, logger)
	dir.Remember(u123)

	if _, err := dir.Resolve(context.Background(), u123.ID); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Fatalf("successful resolve logged: %s", buf.String())
	}

	if _, _, err := dir.ResolvePair(context.Background(), u123.ID, 777); err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(buf.String(), "IDENTITY_PAIR_RESOLUTION_FAILED") {
		t.Fatalf("log = %s", buf.String())
	}
}
