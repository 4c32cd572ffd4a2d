package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
)

const (
	HourInterval int64 = 3600
	DayInterval  int64 = 86400
)

// CandleID returns the bucket index and id of a token candle.
func CandleID(token string, timestamp uint64, interval int64) (int64, string) {
	bucket := int64(timestamp) / interval
	return bucket, fmt.Sprintf("%s-%d", token, bucket)
}

// updateCandle folds the token's current USD price into the candle of
// the bucket containing timestamp.
func updateCandle(ctx context.Context, st entity.Store, token *entity.Token, bundle *entity.Bundle, timestamp uint64, interval int64) error {
	bucket, id := CandleID(token.ID, timestamp, interval)
	price := token.DerivedBNB.Mul(bundle.BnbPrice)

	candle, err := st.Candle(ctx, interval, id)
	if err != nil {
		return fmt.Errorf("failed to load candle %s: %w", id, err)
	}
	if candle == nil {
		candle = &entity.Candle{
			ID:            id,
			Interval:      interval,
			Token:         token.ID,
			Date:          bucket * interval,
			OpenPriceUSD:  price,
			ClosePriceUSD: price,
			LowPriceUSD:   price,
			HighPriceUSD:  price,
		}
	}

	applyPrice(candle, price)

	if err := st.SaveCandle(ctx, candle); err != nil {
		return fmt.Errorf("failed to save candle %s: %w", id, err)
	}
	return nil
}

func applyPrice(c *entity.Candle, price decimal.Decimal) {
	c.ClosePriceUSD = price
	if c.OpenPriceUSD.IsZero() {
		c.OpenPriceUSD = price
	}
	if c.LowPriceUSD.IsZero() || price.LessThan(c.LowPriceUSD) {
		c.LowPriceUSD = price
	}
	if price.GreaterThan(c.HighPriceUSD) {
		c.HighPriceUSD = price
	}
}
