package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/UniTradeApp/pancake-subgraph/internal/dedupe"
	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
	"github.com/UniTradeApp/pancake-subgraph/internal/metrics"
	"github.com/UniTradeApp/pancake-subgraph/internal/modules/core"
)

const sweepInterval = time.Minute

// sweeper is implemented by dedupers that expire keys in process
type sweeper interface {
	Sweep() int
}

// Options tune the polling loop
type Options struct {
	// Name keys the checkpoint
	Name          string
	StartBlock    uint64
	BatchSize     uint64
	Confirmations uint64
	Interval      time.Duration
}

// Indexer polls the chain for logs, feeds them to the router in chain order
// and checkpoints every finished block range. With a store attached, every
// log also advances a cursor in the same unit of work as its entity writes,
// so a restart inside a range never applies a committed log twice.
type Indexer struct {
	opts        Options
	chain       ChainReader
	router      Router
	checkpoints Checkpointer
	dedupe      dedupe.Deduper
	store       entity.Store
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	scheduler gocron.Scheduler

	mu      sync.Mutex
	next    uint64    // first block not yet processed
	cursor  *position // last log handled
	resumed bool
}

// NewIndexer wires an indexer. deduper may be nil.
func NewIndexer(opts Options, chain ChainReader, router Router, checkpoints Checkpointer, deduper dedupe.Deduper, m *metrics.Metrics, logger zerolog.Logger) (*Indexer, error) {
	if opts.Name == "" {
		return nil, errors.New("indexer name is required")
	}
	if opts.BatchSize == 0 {
		return nil, errors.New("batch size must be positive")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if m == nil {
		m = metrics.New()
	}

	return &Indexer{
		opts:        opts,
		chain:       chain,
		router:      router,
		checkpoints: checkpoints,
		dedupe:      deduper,
		metrics:     m,
		logger:      logger.With().Str("component", "indexer").Logger(),
	}, nil
}

// SetStore makes each log commit together with the indexer cursor. Router
// writes must go through st.Atomic with the context they are handed.
func (i *Indexer) SetStore(st entity.Store) {
	i.store = st
}

// Start schedules the polling job. Ticks never overlap: a tick that is
// still running when the next one is due pushes it back.
func (i *Indexer) Start(ctx context.Context) error {
	if err := i.resume(ctx); err != nil {
		return err
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(i.opts.Interval),
		gocron.NewTask(i.tick, ctx),
		gocron.WithName("index-"+i.opts.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule indexer: %w", err)
	}

	if sw, ok := i.dedupe.(sweeper); ok {
		_, err = s.NewJob(
			gocron.DurationJob(sweepInterval),
			gocron.NewTask(func() {
				if n := sw.Sweep(); n > 0 {
					i.logger.Debug().Int("expired", n).Msg("Swept dedupe keys")
				}
			}),
			gocron.WithName("dedupe-sweep-"+i.opts.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule dedupe sweep: %w", err)
		}
	}

	i.scheduler = s
	s.Start()

	i.logger.Info().
		Uint64("from_block", i.nextBlock()).
		Dur("interval", i.opts.Interval).
		Msg("Indexer started")
	return nil
}

// Stop waits for a running tick to finish and stops scheduling new ones
func (i *Indexer) Stop() {
	if i.scheduler == nil {
		return
	}
	if err := i.scheduler.Shutdown(); err != nil {
		i.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
	i.logger.Info().Msg("Indexer stopped")
}

func (i *Indexer) tick(ctx context.Context) {
	if err := i.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		i.logger.Error().Err(err).Uint64("block", i.nextBlock()).Msg("Sync failed, retrying on next tick")
	}
}

// resume picks the first block to process: the block after the checkpoint,
// or the configured start block.
func (i *Indexer) resume(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.resumed {
		return nil
	}

	last, ok, err := i.checkpoints.Checkpoint(ctx, i.opts.Name)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if ok {
		i.next = last + 1
		i.metrics.LastBlock.Set(float64(last))
	} else {
		i.next = i.opts.StartBlock
	}

	if i.store != nil {
		c, err := i.store.Cursor(ctx, i.opts.Name)
		if err != nil {
			return fmt.Errorf("failed to load cursor: %w", err)
		}
		if c != nil && c.Block >= i.next {
			i.cursor = &position{block: c.Block, txIndex: c.TxIndex, index: c.LogIndex}
			i.logger.Info().
				Uint64("block", c.Block).
				Uint("log_index", c.LogIndex).
				Msg("Resuming inside a partially committed range")
		}
	}

	i.resumed = true
	return nil
}

func (i *Indexer) lastHandled(from uint64) *position {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cursor == nil || i.cursor.block < from {
		return nil
	}
	pos := *i.cursor
	return &pos
}

func (i *Indexer) advance(pos position) {
	i.mu.Lock()
	i.cursor = &pos
	i.mu.Unlock()
}

func (i *Indexer) nextBlock() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.next
}

// Sync processes every confirmed block range up to the current head
func (i *Indexer) Sync(ctx context.Context) error {
	if err := i.resume(ctx); err != nil {
		return err
	}

	head, err := i.chain.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}
	i.metrics.ChainHead.Set(float64(head))

	if head < i.opts.Confirmations {
		return nil
	}
	target := head - i.opts.Confirmations

	for from := i.nextBlock(); from <= target; from = i.nextBlock() {
		if err := ctx.Err(); err != nil {
			return err
		}

		to := from + i.opts.BatchSize - 1
		if to > target {
			to = target
		}

		start := time.Now()
		if err := i.processRange(ctx, from, to); err != nil {
			return fmt.Errorf("blocks %d-%d: %w", from, to, err)
		}
		if err := i.checkpoints.SetCheckpoint(ctx, i.opts.Name, to); err != nil {
			return err
		}

		i.mu.Lock()
		i.next = to + 1
		i.mu.Unlock()

		i.metrics.LastBlock.Set(float64(to))
		i.metrics.ObserveBatch(start)

		i.logger.Info().
			Uint64("from", from).
			Uint64("to", to).
			Uint64("lag", target-to).
			Dur("duration", time.Since(start)).
			Msg("Block range processed")
	}

	return nil
}

// position orders logs canonically
type position struct {
	block   uint64
	txIndex uint
	index   uint
}

func positionOf(log *types.Log) position {
	return position{block: log.BlockNumber, txIndex: log.TxIndex, index: log.Index}
}

func (p position) less(o position) bool {
	if p.block != o.block {
		return p.block < o.block
	}
	if p.txIndex != o.txIndex {
		return p.txIndex < o.txIndex
	}
	return p.index < o.index
}

func sortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(a, b int) bool {
		return positionOf(&logs[a]).less(positionOf(&logs[b]))
	})
}

// processRange handles the logs of [from, to], skipping those at or before
// the cursor. When a handled log makes a module watch a new contract, the
// rest of the range is fetched again with the larger address set.
func (i *Indexer) processRange(ctx context.Context, from, to uint64) error {
	cache := newRangeCache(i.chain)
	topics := i.router.Topics()

	done := i.lastHandled(from)
	start := from
	for {
		addresses, filtered := i.router.Addresses()
		if filtered && len(addresses) == 0 {
			return nil
		}
		if !filtered {
			addresses = nil
		}

		logs, err := i.chain.FilterLogs(ctx, start, to, addresses, topics)
		if err != nil {
			return err
		}
		sortLogs(logs)
		if err := cache.prefetch(ctx, logs); err != nil {
			return err
		}

		grew := false
		for k := range logs {
			log := &logs[k]
			if log.Removed {
				continue
			}
			pos := positionOf(log)
			if done != nil && !done.less(pos) {
				continue
			}

			if err := i.handle(ctx, log, cache); err != nil {
				return err
			}
			done = &pos
			i.advance(pos)

			if filtered && i.addressesGrew(len(addresses)) {
				grew = true
				break
			}
		}

		if !grew {
			return nil
		}
		start = done.block
		i.logger.Debug().Uint64("from", start).Uint64("to", to).Msg("Address set grew, refetching range")
	}
}

func (i *Indexer) addressesGrew(known int) bool {
	current, _ := i.router.Addresses()
	return len(current) > known
}

func (i *Indexer) handle(ctx context.Context, log *types.Log, cache *rangeCache) error {
	key := dedupe.LogKey(log)
	topic := "none"
	if len(log.Topics) > 0 {
		topic = log.Topics[0].Hex()
	}

	ts, err := cache.timestamp(ctx, log.BlockNumber)
	if err != nil {
		return err
	}
	from, err := cache.sender(ctx, log.TxHash)
	if err != nil {
		return err
	}

	if i.dedupe != nil {
		seen, err := i.dedupe.Seen(ctx, key)
		if err != nil {
			return fmt.Errorf("dedupe %s: %w", key, err)
		}
		if seen {
			i.metrics.Duplicates.Inc()
			i.logger.Debug().Str("log", key).Msg("Skipping duplicate log")
			return nil
		}
	}

	event := &core.Event{Log: log, Timestamp: ts, From: from}
	if err := i.process(ctx, event); err != nil {
		i.metrics.EventErrors.WithLabelValues(topic).Inc()
		if i.dedupe != nil {
			if fErr := i.dedupe.Forget(ctx, key); fErr != nil {
				i.logger.Error().Err(fErr).Str("log", key).Msg("Failed to release dedupe key")
			}
		}
		return fmt.Errorf("log %s: %w", key, err)
	}

	i.metrics.EventsProcessed.WithLabelValues(topic).Inc()
	return nil
}

// process routes event and, with a store attached, saves the cursor in the
// unit of work the router writes join
func (i *Indexer) process(ctx context.Context, event *core.Event) error {
	if i.store == nil {
		return i.router.ProcessEvent(ctx, event)
	}
	return entity.Unit(ctx, i.store, func(ctx context.Context, st entity.Store) error {
		if err := i.router.ProcessEvent(ctx, event); err != nil {
			return err
		}
		return st.SaveCursor(ctx, &entity.Cursor{
			Name:     i.opts.Name,
			Block:    event.Log.BlockNumber,
			TxIndex:  event.Log.TxIndex,
			LogIndex: event.Log.Index,
		})
	})
}

// rangeCache memoizes block timestamps and tx senders within one range
type rangeCache struct {
	chain      ChainReader
	timestamps map[uint64]uint64
	senders    map[common.Hash]common.Address
}

func newRangeCache(chain ChainReader) *rangeCache {
	return &rangeCache{
		chain:      chain,
		timestamps: make(map[uint64]uint64),
		senders:    make(map[common.Hash]common.Address),
	}
}

// timestampBatcher is implemented by chain readers that can fetch many
// block timestamps in one round trip
type timestampBatcher interface {
	BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error)
}

func (c *rangeCache) prefetch(ctx context.Context, logs []types.Log) error {
	batcher, ok := c.chain.(timestampBatcher)
	if !ok {
		return nil
	}

	var missing []uint64
	for k := range logs {
		n := logs[k].BlockNumber
		if _, ok := c.timestamps[n]; ok {
			continue
		}
		if len(missing) > 0 && missing[len(missing)-1] == n {
			continue
		}
		missing = append(missing, n)
	}
	if len(missing) == 0 {
		return nil
	}

	fetched, err := batcher.BlockTimestamps(ctx, missing)
	if err != nil {
		return err
	}
	for n, ts := range fetched {
		c.timestamps[n] = ts
	}
	return nil
}

func (c *rangeCache) timestamp(ctx context.Context, block uint64) (uint64, error) {
	if ts, ok := c.timestamps[block]; ok {
		return ts, nil
	}
	ts, err := c.chain.BlockTimestamp(ctx, block)
	if err != nil {
		return 0, err
	}
	c.timestamps[block] = ts
	return ts, nil
}

func (c *rangeCache) sender(ctx context.Context, hash common.Hash) (common.Address, error) {
	if from, ok := c.senders[hash]; ok {
		return from, nil
	}
	from, err := c.chain.TxSender(ctx, hash)
	if err != nil {
		return common.Address{}, err
	}
	c.senders[hash] = from
	return from, nil
}
