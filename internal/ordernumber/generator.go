package ordernumber

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "ORDER"

// Counter hands out per-shop, per-day sequence numbers. Implementations must
// persist the counter inside the caller's transaction so a rolled back
// checkout does not consume a number.
type Counter interface {
	NextOrderSequence(ctx context.Context, shopID int64, day time.Time) (int64, error)
}

// Generator formats order numbers as {prefix}{shop code}{YYYYMMDD}{seq:05}.
type Generator struct {
	prefix string
	loc    *time.Location
	now    func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator. Days are counted in loc.
func NewGenerator(prefix string, loc *time.Location, opts ...Option) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if loc == nil {
		loc = time.Local
	}
	g := &Generator{prefix: prefix, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next draws the next sequence number for shop and formats it.
func (g *Generator) Next(ctx context.Context, c Counter, shop *models.Shop) (string, error) {
	if shop == nil {
		return "", apperr.Validation("shop is required")
	}

	now := g.now().In(g.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	seq, err := c.NextOrderSequence(ctx, shop.ID, day)
	if err != nil {
		return "", fmt.Errorf("failed to draw order sequence: %w", err)
	}
	return Format(g.prefix, ShopCode(shop), day, seq), nil
}

// ShopCode is the shop's configured order code, or its id padded to two digits.
// An all-digit code is ignored since it could match another shop's padded id.
func ShopCode(shop *models.Shop) string {
	if hasNonDigit(shop.OrderCode) {
		return shop.OrderCode
	}
	return fmt.Sprintf("%02d", shop.ID)
}

func hasNonDigit(code string) bool {
	for _, r := range code {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}

// Format renders an order number.
func Format(prefix, shopCode string, day time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%s%05d", prefix, shopCode, day.Format("20060102"), seq)
}
