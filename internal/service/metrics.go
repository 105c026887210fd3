package service

import (
	"context"
	"errors"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CountSource feeds the online-users gauge.
type CountSource interface {
	CountsByRole() map[model.Role]int
}

// Metrics groups the service instruments. A nil *Metrics records nothing.
type Metrics struct {
	sessionsStarted  metric.Int64Counter
	sessionsEnded    metric.Int64Counter
	chatRelayed      metric.Int64Counter
	notifDropped     metric.Int64Counter
	evictions        metric.Int64Counter
	dashboardPublish metric.Float64Histogram
	registration     metric.Registration
}

func NewMetrics(meter metric.Meter, counts CountSource) (*Metrics, error) {
	var (
		m    Metrics
		err  error
		errs []error
	)

	m.sessionsStarted, err = meter.Int64Counter("im_support_sessions_started_total",
		metric.WithDescription("Total sessions paired"))
	errs = append(errs, err)
	m.sessionsEnded, err = meter.Int64Counter("im_support_sessions_ended_total",
		metric.WithDescription("Total sessions ended, by reason"))
	errs = append(errs, err)
	m.chatRelayed, err = meter.Int64Counter("im_support_chat_relayed_total",
		metric.WithDescription("Total chat messages relayed between participants"))
	errs = append(errs, err)
	m.notifDropped, err = meter.Int64Counter("im_support_notifications_dropped_total",
		metric.WithDescription("Envelopes dropped because nobody was listening"))
	errs = append(errs, err)
	m.evictions, err = meter.Int64Counter("im_support_evictions_total",
		metric.WithDescription("Users evicted after the idle window"))
	errs = append(errs, err)
	m.dashboardPublish, err = meter.Float64Histogram("im_support_dashboard_publish_seconds",
		metric.WithDescription("Time to fan a dashboard frame out to every viewer"),
		metric.WithUnit("s"))
	errs = append(errs, err)

	online, err := meter.Int64ObservableGauge("im_support_online_users",
		metric.WithDescription("Online users by role"))
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for role, n := range counts.CountsByRole() {
			o.ObserveInt64(online, int64(n), metric.WithAttributes(attribute.String("role", role.String())))
		}
		return nil
	}, online)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsStarted.Add(ctx, 1)
}

func (m *Metrics) SessionEnded(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.sessionsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) ChatRelayed(ctx context.Context) {
	if m == nil {
		return
	}
	m.chatRelayed.Add(ctx, 1)
}

func (m *Metrics) NotificationDropped(ctx context.Context, kind model.EnvelopeKind) {
	if m == nil {
		return
	}
	m.notifDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (m *Metrics) Evicted(ctx context.Context, _ model.UserID, paired bool) {
	if m == nil {
		return
	}
	m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("paired", paired)))
}

func (m *Metrics) DashboardPublished(_ int, took time.Duration) {
	if m == nil {
		return
	}
	m.dashboardPublish.Record(context.Background(), took.Seconds())
}

// Close unregisters the gauge callback.
func (m *Metrics) Close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
