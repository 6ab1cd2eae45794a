package server

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"go.uber.org/zap"
)

// Wish is a paid-for composition handed to the page store.
type Wish struct {
	ID        snowflake.ID            `json:"id"`
	UserID    string                  `json:"userId"`
	Title     string                  `json:"title"`
	Elements  []pricingdomain.Element `json:"elements"`
	Policy    pricingdomain.Policy    `json:"policy"`
	Cost      credits.Amount          `json:"cost"`
	CreatedAt time.Time               `json:"createdAt"`
}

//go:generate mockgen -source=sink.go -destination=mock_sink_test.go -package=server

// WishSink persists or forwards a created wish. A failed Publish refunds
// the debit taken for it.
type WishSink interface {
	Publish(ctx context.Context, wish Wish) error
}

type logSink struct {
	log *zap.Logger
}

// NewLogSink records wishes in the log only.
func NewLogSink(log *zap.Logger) WishSink {
	return &logSink{log: log.Named("wish.sink")}
}

func (s *logSink) Publish(_ context.Context, wish Wish) error {
	s.log.Info("wish published",
		zap.String("wish_id", wish.ID.String()),
		zap.String("user_id", wish.UserID),
		zap.Int("elements", len(wish.Elements)),
		zap.Stringer("cost", wish.Cost),
	)
	return nil
}
