package entity

import (
	"context"
	"sort"
	"sync"
)

const bundleKey = "1"

type candleKey struct {
	interval int64
	id       string
}

type tables struct {
	factories    map[string]Factory
	bundles      map[string]Bundle
	pairs        map[string]Pair
	pairsByToken map[string]string
	tokens       map[string]Token
	transactions map[string]Transaction
	swaps        map[string]Swap
	candles      map[candleKey]Candle
	cursors      map[string]Cursor
}

func newTables() *tables {
	return &tables{
		factories:    make(map[string]Factory),
		bundles:      make(map[string]Bundle),
		pairs:        make(map[string]Pair),
		pairsByToken: make(map[string]string),
		tokens:       make(map[string]Token),
		transactions: make(map[string]Transaction),
		swaps:        make(map[string]Swap),
		candles:      make(map[candleKey]Candle),
		cursors:      make(map[string]Cursor),
	}
}

func (t *tables) merge(from *tables) {
	mergeInto(t.factories, from.factories)
	mergeInto(t.bundles, from.bundles)
	mergeInto(t.pairs, from.pairs)
	mergeInto(t.pairsByToken, from.pairsByToken)
	mergeInto(t.tokens, from.tokens)
	mergeInto(t.transactions, from.transactions)
	mergeInto(t.swaps, from.swaps)
	mergeInto(t.candles, from.candles)
	mergeInto(t.cursors, from.cursors)
}

func mergeInto[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

// layered reads from the overlay first and falls back to the base tables.
func layered[K comparable, V any](overlay, base map[K]V, k K) (V, bool) {
	if overlay != nil {
		if v, ok := overlay[k]; ok {
			return v, true
		}
	}
	v, ok := base[k]
	return v, ok
}

func pairTokenKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// MemoryStore keeps entities in process memory. It backs tests and
// indexers that do not need persistence across restarts.
type MemoryStore struct {
	mu   sync.Mutex
	data *tables
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newTables()}
}

func (s *MemoryStore) view() *memoryView {
	return &memoryView{base: s.data}
}

func (s *MemoryStore) Factory(ctx context.Context, id string) (*Factory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Factory(ctx, id)
}

func (s *MemoryStore) SaveFactory(ctx context.Context, f *Factory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveFactory(ctx, f)
}

func (s *MemoryStore) Bundle(ctx context.Context) (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Bundle(ctx)
}

func (s *MemoryStore) SaveBundle(ctx context.Context, b *Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveBundle(ctx, b)
}

func (s *MemoryStore) Pair(ctx context.Context, id string) (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Pair(ctx, id)
}

func (s *MemoryStore) PairByTokens(ctx context.Context, tokenA, tokenB string) (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().PairByTokens(ctx, tokenA, tokenB)
}

func (s *MemoryStore) SavePair(ctx context.Context, p *Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SavePair(ctx, p)
}

func (s *MemoryStore) PairIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().PairIDs(ctx)
}

func (s *MemoryStore) Token(ctx context.Context, id string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Token(ctx, id)
}

func (s *MemoryStore) SaveToken(ctx context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveToken(ctx, t)
}

func (s *MemoryStore) Transaction(ctx context.Context, id string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Transaction(ctx, id)
}

func (s *MemoryStore) SaveTransaction(ctx context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveTransaction(ctx, t)
}

func (s *MemoryStore) Swap(ctx context.Context, id string) (*Swap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Swap(ctx, id)
}

func (s *MemoryStore) SaveSwap(ctx context.Context, sw *Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveSwap(ctx, sw)
}

func (s *MemoryStore) Candle(ctx context.Context, interval int64, id string) (*Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Candle(ctx, interval, id)
}

func (s *MemoryStore) SaveCandle(ctx context.Context, c *Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveCandle(ctx, c)
}

func (s *MemoryStore) Cursor(ctx context.Context, name string) (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Cursor(ctx, name)
}

func (s *MemoryStore) SaveCursor(ctx context.Context, c *Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveCursor(ctx, c)
}

// Atomic stages every write of fn in an overlay and merges it into the
// store only when fn succeeds. The store lock is held for the duration.
// Inside a Unit opened on s, fn runs against the unit's view.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(Store) error) error {
	if st := Joined(ctx, s); st != nil {
		return fn(st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &memoryView{base: s.data, overlay: newTables()}
	if err := fn(v); err != nil {
		return err
	}
	s.data.merge(v.overlay)
	return nil
}

// memoryView reads through an optional overlay. Without an overlay it
// writes straight into the base tables.
type memoryView struct {
	base    *tables
	overlay *tables
}

func (v *memoryView) target() *tables {
	if v.overlay != nil {
		return v.overlay
	}
	return v.base
}

func (v *memoryView) over() *tables {
	if v.overlay != nil {
		return v.overlay
	}
	return &tables{}
}

func (v *memoryView) Factory(_ context.Context, id string) (*Factory, error) {
	f, ok := layered(v.over().factories, v.base.factories, id)
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (v *memoryView) SaveFactory(_ context.Context, f *Factory) error {
	v.target().factories[f.ID] = *f
	return nil
}

func (v *memoryView) Bundle(_ context.Context) (*Bundle, error) {
	b, ok := layered(v.over().bundles, v.base.bundles, bundleKey)
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (v *memoryView) SaveBundle(_ context.Context, b *Bundle) error {
	v.target().bundles[bundleKey] = *b
	return nil
}

func (v *memoryView) Pair(_ context.Context, id string) (*Pair, error) {
	p, ok := layered(v.over().pairs, v.base.pairs, id)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *memoryView) PairByTokens(ctx context.Context, tokenA, tokenB string) (*Pair, error) {
	id, ok := layered(v.over().pairsByToken, v.base.pairsByToken, pairTokenKey(tokenA, tokenB))
	if !ok {
		return nil, nil
	}
	return v.Pair(ctx, id)
}

func (v *memoryView) SavePair(_ context.Context, p *Pair) error {
	t := v.target()
	t.pairs[p.ID] = *p
	t.pairsByToken[pairTokenKey(p.Token0, p.Token1)] = p.ID
	return nil
}

func (v *memoryView) PairIDs(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, t := range []map[string]Pair{v.base.pairs, v.over().pairs} {
		for id := range t {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (v *memoryView) Token(_ context.Context, id string) (*Token, error) {
	t, ok := layered(v.over().tokens, v.base.tokens, id)
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (v *memoryView) SaveToken(_ context.Context, t *Token) error {
	v.target().tokens[t.ID] = *t
	return nil
}

func (v *memoryView) Transaction(_ context.Context, id string) (*Transaction, error) {
	t, ok := layered(v.over().transactions, v.base.transactions, id)
	if !ok {
		return nil, nil
	}
	c := t.clone()
	return &c, nil
}

func (v *memoryView) SaveTransaction(_ context.Context, t *Transaction) error {
	v.target().transactions[t.ID] = t.clone()
	return nil
}

func (v *memoryView) Swap(_ context.Context, id string) (*Swap, error) {
	s, ok := layered(v.over().swaps, v.base.swaps, id)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (v *memoryView) SaveSwap(_ context.Context, s *Swap) error {
	v.target().swaps[s.ID] = *s
	return nil
}

func (v *memoryView) Candle(_ context.Context, interval int64, id string) (*Candle, error) {
	c, ok := layered(v.over().candles, v.base.candles, candleKey{interval, id})
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *memoryView) SaveCandle(_ context.Context, c *Candle) error {
	v.target().candles[candleKey{c.Interval, c.ID}] = *c
	return nil
}

func (v *memoryView) Cursor(_ context.Context, name string) (*Cursor, error) {
	c, ok := layered(v.over().cursors, v.base.cursors, name)
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *memoryView) SaveCursor(_ context.Context, c *Cursor) error {
	v.target().cursors[c.Name] = *c
	return nil
}

// Atomic on a view joins the enclosing unit of work.
func (v *memoryView) Atomic(_ context.Context, fn func(Store) error) error {
	return fn(v)
}
