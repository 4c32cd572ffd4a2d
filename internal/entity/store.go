package entity

import "context"

// Store is the repository the exchange handlers read and write through.
// Loads return (nil, nil) when the entity does not exist; callers decide
// whether absence is an error. Returned entities are copies and must be
// saved back for changes to take effect.
type Store interface {
	Factory(ctx context.Context, id string) (*Factory, error)
	SaveFactory(ctx context.Context, f *Factory) error

	Bundle(ctx context.Context) (*Bundle, error)
	SaveBundle(ctx context.Context, b *Bundle) error

	Pair(ctx context.Context, id string) (*Pair, error)
	// PairByTokens finds the pair for two tokens regardless of their order.
	PairByTokens(ctx context.Context, tokenA, tokenB string) (*Pair, error)
	SavePair(ctx context.Context, p *Pair) error
	// PairIDs lists every stored pair id.
	PairIDs(ctx context.Context) ([]string, error)

	Token(ctx context.Context, id string) (*Token, error)
	SaveToken(ctx context.Context, t *Token) error

	Transaction(ctx context.Context, id string) (*Transaction, error)
	SaveTransaction(ctx context.Context, t *Transaction) error

	Swap(ctx context.Context, id string) (*Swap, error)
	SaveSwap(ctx context.Context, s *Swap) error

	Candle(ctx context.Context, interval int64, id string) (*Candle, error)
	SaveCandle(ctx context.Context, c *Candle) error

	// Cursor returns the stored position of the named indexer.
	Cursor(ctx context.Context, name string) (*Cursor, error)
	SaveCursor(ctx context.Context, c *Cursor) error

	// Atomic runs fn against a transactional view of the store. Writes made
	// through the view become visible only if fn returns nil.
	Atomic(ctx context.Context, fn func(Store) error) error
}
