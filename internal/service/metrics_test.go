package service

import (
	"context"
	"testing"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/presence"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	res := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			res[m.Name] = m
		}
	}
	return res
}

func TestMetrics_RecordsAndObserves(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	reg := presence.NewRegistry(2)
	reg.MarkOnline(u123)
	reg.MarkOnline(l45)
	reg.MarkOnline(l46)

	m, err := NewMetrics(mp.Meter("test"), reg)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	ctx := context.Background()
	m.SessionStarted(ctx)
	m.SessionEnded(ctx, ReasonLeft)
	m.ChatRelayed(ctx)
	m.ChatRelayed(ctx)
	m.NotificationDropped(ctx, model.EnvelopeRequest)
	m.DashboardPublished(3, 5*time.Millisecond)

	got := collect(t, reader)

	relayed, ok := got["im_support_chat_relayed_total"].Data.(metricdata.Sum[int64])
	if !ok || len(relayed.DataPoints) != 1 || relayed.DataPoints[0].Value != 2 {
		t.Fatalf("chat relayed = %+v", got["im_support_chat_relayed_total"].Data)
	}

	online, ok := got["im_support_online_users"].Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatal("online gauge missing")
	}
	byRole := make(map[string]int64)
	for _, dp := range online.DataPoints {
		role, _ := dp.Attributes.Value("role")
		byRole[role.AsString()] = dp.Value
	}
	if byRole["USER"] != 1 || byRole["LISTENER"] != 2 || byRole["ADMIN"] != 0 {
		t.Fatalf("online by role = %v", byRole)
	}

	if _, ok := got["im_support_dashboard_publish_seconds"].Data.(metricdata.Histogram[float64]); !ok {
		t.Fatal("publish histogram missing")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionStarted(context.Background())
	m.Evicted(context.Background(), 1, true)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}
