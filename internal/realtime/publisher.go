package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
)

const (
	defaultFlushInterval = 250 * time.Millisecond
	batchChannel         = "dex.pairs"
)

// PairReader loads committed pairs
type PairReader interface {
	Pair(ctx context.Context, id string) (*entity.Pair, error)
}

type sender interface {
	Publish(ctx context.Context, channel string, data []byte, opts ...gocent.PublishOption) (gocent.PublishResult, error)
}

// Publisher pushes pair snapshots and pair events to Centrifugo. Pair
// changes are coalesced and flushed periodically.
type Publisher struct {
	gc       sender
	pairs    PairReader
	logger   zerolog.Logger
	interval time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	flushCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type PublishConfig struct {
	APIURL        string
	APIKey        string
	FlushInterval time.Duration
}

func NewPublisher(config PublishConfig, pairs PairReader, logger zerolog.Logger) *Publisher {
	gc := gocent.New(gocent.Config{
		Addr: config.APIURL,
		Key:  config.APIKey,
	})
	return newPublisher(gc, config.FlushInterval, pairs, logger)
}

func newPublisher(gc sender, interval time.Duration, pairs PairReader, logger zerolog.Logger) *Publisher {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Publisher{
		gc:       gc,
		pairs:    pairs,
		logger:   logger.With().Str("component", "realtime-publisher").Logger(),
		interval: interval,
		pending:  make(map[string]struct{}),
		flushCh:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flush(p.ctx)
		case <-p.flushCh:
			p.flush(p.ctx)
		}
	}
}

func pairChannel(address string) string {
	return fmt.Sprintf("dex.pair.%s", strings.ToLower(address))
}

// EnqueuePairChanged schedules a snapshot of the pair for the next flush
func (p *Publisher) EnqueuePairChanged(address string) {
	p.mu.Lock()
	p.pending[strings.ToLower(address)] = struct{}{}
	p.mu.Unlock()

	select {
	case p.flushCh <- struct{}{}:
	default:
	}
}

// PublishEvent sends a single pair event without waiting for the result
func (p *Publisher) PublishEvent(address string, eventType string, data interface{}) {
	payload, err := json.Marshal(map[string]any{
		"type":       "pair.event",
		"event_type": eventType,
		"data":       data,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to marshal event payload")
		return
	}

	channel := pairChannel(address)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.gc.Publish(p.ctx, channel, payload); err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn().Err(err).Str("channel", channel).Msg("Failed to publish pair event")
		}
	}()
}

// Flush publishes pending pair snapshots now
func (p *Publisher) Flush() {
	p.flush(p.ctx)
}

// pairSummary is the wire form of a pair snapshot
type pairSummary struct {
	Address           string          `json:"address"`
	Token0            string          `json:"token0"`
	Token1            string          `json:"token1"`
	Reserve0          decimal.Decimal `json:"reserve0"`
	Reserve1          decimal.Decimal `json:"reserve1"`
	ReserveUSD        decimal.Decimal `json:"reserve_usd"`
	Token0Price       decimal.Decimal `json:"token0_price"`
	Token1Price       decimal.Decimal `json:"token1_price"`
	VolumeUSD         decimal.Decimal `json:"volume_usd"`
	TotalTransactions int64           `json:"txn_count"`
}

func summarize(pair *entity.Pair) pairSummary {
	return pairSummary{
		Address:           pair.ID,
		Token0:            pair.Token0,
		Token1:            pair.Token1,
		Reserve0:          pair.Reserve0,
		Reserve1:          pair.Reserve1,
		ReserveUSD:        pair.ReserveUSD,
		Token0Price:       pair.Token0Price,
		Token1Price:       pair.Token1Price,
		VolumeUSD:         pair.VolumeUSD,
		TotalTransactions: pair.TotalTransactions,
	}
}

func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	addrs := make([]string, 0, len(p.pending))
	for addr := range p.pending {
		addrs = append(addrs, addr)
	}
	p.pending = make(map[string]struct{})
	p.mu.Unlock()

	sort.Strings(addrs)

	items := make([]pairSummary, 0, len(addrs))
	for _, addr := range addrs {
		pair, err := p.pairs.Pair(ctx, addr)
		if err != nil {
			p.logger.Error().Err(err).Str("pair", addr).Msg("Failed to load pair")
			continue
		}
		if pair == nil {
			continue
		}
		items = append(items, summarize(pair))
	}
	if len(items) == 0 {
		return
	}

	ts := time.Now().UTC().Unix()
	for _, item := range items {
		payload, err := json.Marshal(map[string]any{
			"type": "pair.update",
			"ts":   ts,
			"pair": item,
		})
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to marshal pair payload")
			continue
		}
		if _, err := p.gc.Publish(ctx, pairChannel(item.Address), payload); err != nil {
			p.logger.Warn().Err(err).Str("pair", item.Address).Msg("Failed to publish pair update")
		}
	}

	payload, err := json.Marshal(map[string]any{
		"type":  "pair.batch",
		"ts":    ts,
		"items": items,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to marshal batch payload")
		return
	}
	if _, err := p.gc.Publish(ctx, batchChannel, payload); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to publish batch update")
		return
	}
	p.logger.Debug().Int("count", len(items)).Msg("Published batch update")
}

// Close stops the flusher and waits for in-flight publishes
func (p *Publisher) Close() error {
	p.logger.Info().Msg("Closing publisher")
	p.cancel()
	p.wg.Wait()
	return nil
}
