package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("class", "premium"),
		attribute.String("user_id", "456"),
		attribute.String("reason", "blocked"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "class" && attrs[1].Key != "class" {
		t.Fatalf("expected class to be retained")
	}
	if attrs[0].Key != "reason" && attrs[1].Key != "reason" {
		t.Fatalf("expected reason to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordRateLimitAllowed(ctx, "premium")
	m.RecordRateLimitDenied(ctx, "premium", "window")
	m.RecordCreditTransaction(ctx, "usage", "feature")
	m.RecordBonusClaim(ctx, "claimed")
	m.RecordInsufficientCredits(ctx, "custom_music")
}

func TestNopMetricsRecords(t *testing.T) {
	m := NewNop()
	if m == nil {
		t.Fatalf("expected metrics instance")
	}
	m.RecordCreditTransaction(context.Background(), "bonus", "monthly_login")
}
