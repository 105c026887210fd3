package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/webitel/im-support-service/config"
	"github.com/webitel/im-support-service/infra/client/dashboard"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/handler/marshaller"
	"go.uber.org/fx"
)

func TestNewApp_GraphResolves(t *testing.T) {
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.ValidateApp(options(cfg)...); err != nil {
		t.Fatalf("dependency graph: %v", err)
	}
}

func TestDashboardView(t *testing.T) {
	started := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	sid := uuid.MustParse("0b5f6a0e-1111-4222-8333-444455556666")

	v := newDashboardView()
	v.applySnapshot(&dashboard.Snapshot{
		Presence: &model.PresenceSnapshot{OnlineByRole: map[model.Role]int{model.RoleUser: 2}, TakenAt: started},
		Hub:      model.HubStats{TotalUsers: 3, TotalConnections: 1},
	})
	v.apply(dashboard.Update{Sessions: &marshaller.SessionsFrame{
		Sessions: []model.SessionView{{
			SessionID: sid,
			User:      model.UserIdentity{ID: 123, Role: model.RoleUser},
			Listener:  model.UserIdentity{ID: 45, Role: model.RoleListener},
			Status:    model.RoomFull,
			StartedAt: started,
		}},
		TakenAt: started.Add(time.Second),
	}})

	labels, data := v.counts()
	if strings.Join(labels, ",") != "USER,LISTENER,ADMIN" || data[0] != 2 || data[1] != 0 {
		t.Fatalf("counts = %v %v", labels, data)
	}

	rows := v.rows(started.Add(90 * time.Second))
	want := []string{"0b5f6a0e", "123", "45", "FULL", "1m30s"}
	if len(rows) != 2 || strings.Join(rows[1], "|") != strings.Join(want, "|") {
		t.Fatalf("rows = %v", rows)
	}

	summary := v.summary()
	for _, part := range []string{"online: 2", "sessions: 1", "hub users: 3", "hub connections: 1"} {
		if !strings.Contains(summary, part) {
			t.Errorf("summary %q lacks %q", summary, part)
		}
	}
}

func TestPrintSnapshot(t *testing.T) {
	color.NoColor = true

	v := newDashboardView()
	v.apply(dashboard.Update{Presence: &marshaller.PresenceFrame{
		OnlineByRole: map[model.Role]int{model.RoleListener: 4},
	}})

	var buf bytes.Buffer
	printSnapshot(&buf, v, time.Now())

	out := buf.String()
	for _, part := range []string{"PRESENCE", "LISTENER  4", "SESSIONS", "none", "online: 4"} {
		if !strings.Contains(out, part) {
			t.Errorf("output lacks %q:\n%s", part, out)
		}
	}
}

type countingHandler struct{ n int }

func (h *countingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *countingHandler) Handle(context.Context, slog.Record) error { h.n++; return nil }
func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h *countingHandler) WithGroup(string) slog.Handler             { return h }

func TestLevelHandler_FollowsLevelVar(t *testing.T) {
	inner := &countingHandler{}
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)

	logger := slog.New(&levelHandler{Handler: inner, level: level}).With(slog.String("k", "v"))
	logger.Info("dropped")
	logger.Warn("kept")

	level.Set(slog.LevelDebug)
	logger.Debug("kept after reload")

	if inner.n != 2 {
		t.Fatalf("handled %d records, want 2", inner.n)
	}
}
