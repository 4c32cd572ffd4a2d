package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
	"github.com/UniTradeApp/pancake-subgraph/internal/modules/core"
)

var minimumLiquidityLock = big.NewInt(MinimumLiquidityLock)

// registerEventHandlers sets up event signature to handler mappings
func (m *Module) registerEventHandlers() {
	m.handlers[m.factoryABI.Events["PairCreated"].ID] = handlePairCreated
	m.handlers[m.pairABI.Events["Transfer"].ID] = handleTransfer
	m.handlers[m.pairABI.Events["Sync"].ID] = handleSync
	m.handlers[m.pairABI.Events["Mint"].ID] = handleMint
	m.handlers[m.pairABI.Events["Burn"].ID] = handleBurn
	m.handlers[m.pairABI.Events["Swap"].ID] = handleSwap
}

func handlePairCreated(ctx context.Context, module *Module, event *core.ParsedEvent) error {
	ev, err := decodePairCreated(event)
	if err != nil {
		return err
	}
	if err := module.store.Atomic(ctx, func(st entity.Store) error {
		return module.OnPairCreated(ctx, st, ev)
	}); err != nil {
		return err
	}
	entity.AfterCommit(ctx, func() {
		module.addPair(ev.Pair)
		module.notifyPair(ev.Pair)
	})
	return nil
}

func handleTransfer(ctx context.Context, module *Module, event *core.ParsedEvent) error {
	ev, err := decodeTransfer(event)
	if err != nil {
		return err
	}
	if err := module.store.Atomic(ctx, func(st entity.Store) error {
		return module.OnTransfer(ctx, st, ev)
	}); err != nil {
		return err
	}
	entity.AfterCommit(ctx, func() { module.notifyPair(ev.Contract) })
	return nil
}

func handleSync(ctx context.Context, module *Module, event *core.ParsedEvent) error {
	ev, err := decodeSync(event)
	if err != nil {
		return err
	}
	if err := module.store.Atomic(ctx, func(st entity.Store) error {
		return module.OnSync(ctx, st, ev)
	}); err != nil {
		return err
	}
	entity.AfterCommit(ctx, func() { module.notifyPair(ev.Contract) })
	return nil
}

func handleMint(ctx context.Context, module *Module, event *core.ParsedEvent) error {
	ev, err := decodeMint(event)
	if err != nil {
		return err
	}
	return module.store.Atomic(ctx, func(st entity.Store) error {
		return module.OnMint(ctx, st, ev)
	})
}

func handleBurn(ctx context.Context, module *Module, event *core.ParsedEvent) error {
	ev, err := decodeBurn(event)
	if err != nil {
		return err
	}
	return module.store.Atomic(ctx, func(st entity.Store) error {
		return module.OnBurn(ctx, st, ev)
	})
}

func handleSwap(ctx context.Context, module *Module, event *core.ParsedEvent) error {
	ev, err := decodeSwap(event)
	if err != nil {
		return err
	}
	var swap *entity.Swap
	if err := module.store.Atomic(ctx, func(st entity.Store) error {
		swap, err = module.OnSwap(ctx, st, ev)
		return err
	}); err != nil {
		return err
	}
	entity.AfterCommit(ctx, func() {
		module.notifyPair(ev.Contract)
		if module.notifier != nil {
			module.notifier.PublishEvent(ev.Contract, "swap", swap)
		}
	})
	return nil
}

// OnPairCreated registers a new pair and any tokens seen for the first time
func (m *Module) OnPairCreated(ctx context.Context, st entity.Store, ev *PairCreatedEvent) error {
	existing, err := st.Pair(ctx, ev.Pair)
	if err != nil {
		return fmt.Errorf("failed to load pair %s: %w", ev.Pair, err)
	}
	if existing != nil {
		m.logger.Debug().Str("pair", ev.Pair).Msg("Pair already registered")
		return nil
	}

	factory, err := st.Factory(ctx, m.factoryAddress)
	if err != nil {
		return fmt.Errorf("failed to load factory: %w", err)
	}
	if factory == nil {
		factory = &entity.Factory{ID: m.factoryAddress}
		bundle, err := st.Bundle(ctx)
		if err != nil {
			return fmt.Errorf("failed to load bundle: %w", err)
		}
		if bundle == nil {
			if err := st.SaveBundle(ctx, &entity.Bundle{}); err != nil {
				return fmt.Errorf("failed to save bundle: %w", err)
			}
		}
	}
	factory.PairCount++

	if _, err := m.loadOrCreateToken(ctx, st, ev.Token0); err != nil {
		return err
	}
	if _, err := m.loadOrCreateToken(ctx, st, ev.Token1); err != nil {
		return err
	}

	pair := &entity.Pair{
		ID:                 ev.Pair,
		Token0:             ev.Token0,
		Token1:             ev.Token1,
		CreatedAtBlock:     ev.BlockNumber,
		CreatedAtTimestamp: ev.Timestamp,
	}
	if err := st.SavePair(ctx, pair); err != nil {
		return fmt.Errorf("failed to save pair %s: %w", pair.ID, err)
	}
	if err := st.SaveFactory(ctx, factory); err != nil {
		return fmt.Errorf("failed to save factory: %w", err)
	}

	m.logger.Info().
		Str("pair", pair.ID).
		Str("token0", pair.Token0).
		Str("token1", pair.Token1).
		Int64("pair_count", factory.PairCount).
		Msg("Pair created")
	return nil
}

// OnTransfer tracks LP token supply. Transfers between holders are neutral.
func (m *Module) OnTransfer(ctx context.Context, st entity.Store, ev *TransferEvent) error {
	// the first mint locks MinimumLiquidityLock to the zero address
	if ev.To == ZeroAddress && ev.Value.Cmp(minimumLiquidityLock) == 0 {
		return nil
	}

	pair, err := requirePair(ctx, st, ev.Contract)
	if err != nil {
		return err
	}

	tx, err := loadOrCreateTransaction(ctx, st, ev.Meta)
	if err != nil {
		return err
	}

	value := ConvertTokenToDecimal(ev.Value, LPTokenDecimals)

	if ev.From == ZeroAddress {
		pair.TotalSupply = pair.TotalSupply.Add(value)
	}
	if ev.To == ZeroAddress && ev.From == pair.ID {
		pair.TotalSupply = pair.TotalSupply.Sub(value)
	}

	if err := st.SavePair(ctx, pair); err != nil {
		return fmt.Errorf("failed to save pair %s: %w", pair.ID, err)
	}
	if err := st.SaveTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
	}
	return nil
}

// OnSync moves the pair to its new reserves and reprices both tokens
func (m *Module) OnSync(ctx context.Context, st entity.Store, ev *SyncEvent) error {
	pair, err := requirePair(ctx, st, ev.Contract)
	if err != nil {
		return err
	}
	token0, err := requireToken(ctx, st, pair.Token0)
	if err != nil {
		return err
	}
	token1, err := requireToken(ctx, st, pair.Token1)
	if err != nil {
		return err
	}
	factory, err := requireFactory(ctx, st, m.factoryAddress)
	if err != nil {
		return err
	}
	bundle, err := requireBundle(ctx, st)
	if err != nil {
		return err
	}

	// drop the stale contribution of this pair
	token0.TotalLiquidity = token0.TotalLiquidity.Sub(pair.Reserve0)
	token1.TotalLiquidity = token1.TotalLiquidity.Sub(pair.Reserve1)
	factory.TotalLiquidityBNB = factory.TotalLiquidityBNB.Sub(pair.TrackedReserveBNB)

	pair.Reserve0 = ConvertTokenToDecimal(ev.Reserve0, token0.Decimals)
	pair.Reserve1 = ConvertTokenToDecimal(ev.Reserve1, token1.Decimals)
	pair.Token0Price = SafeDiv(pair.Reserve0, pair.Reserve1)
	pair.Token1Price = SafeDiv(pair.Reserve1, pair.Reserve0)

	// the pair is saved last: pricing reads its previously stored reserves
	bundle.BnbPrice, err = m.pricing.BnbPriceInUSD(ctx, st)
	if err != nil {
		return err
	}
	if err := st.SaveBundle(ctx, bundle); err != nil {
		return fmt.Errorf("failed to save bundle: %w", err)
	}

	if err := m.reprice(ctx, st, token0, bundle); err != nil {
		return err
	}
	// token0 is visible to token1's derivation
	if err := st.SaveToken(ctx, token0); err != nil {
		return fmt.Errorf("failed to save token %s: %w", token0.ID, err)
	}
	if err := m.reprice(ctx, st, token1, bundle); err != nil {
		return err
	}

	trackedLiquidityBNB := decimal.Zero
	if !bundle.BnbPrice.IsZero() {
		trackedLiquidityBNB = SafeDiv(
			m.pricing.TrackedLiquidityUSD(pair.Reserve0, token0, pair.Reserve1, token1),
			bundle.BnbPrice,
		)
	}
	pair.TrackedReserveBNB = trackedLiquidityBNB
	factory.TotalLiquidityBNB = factory.TotalLiquidityBNB.Add(trackedLiquidityBNB)
	factory.TotalLiquidityUSD = factory.TotalLiquidityBNB.Mul(bundle.BnbPrice)

	pair.ReserveBNB = pair.Reserve0.Mul(token0.DerivedBNB).Add(pair.Reserve1.Mul(token1.DerivedBNB))
	pair.ReserveUSD = pair.ReserveBNB.Mul(bundle.BnbPrice)

	token0.TotalLiquidity = token0.TotalLiquidity.Add(pair.Reserve0)
	token1.TotalLiquidity = token1.TotalLiquidity.Add(pair.Reserve1)

	return saveAll(ctx, st, pair, factory, token0, token1)
}

// OnMint re-saves the pair state and records a candle tick for both tokens
func (m *Module) OnMint(ctx context.Context, st entity.Store, ev *MintEvent) error {
	return m.touchPair(ctx, st, ev.Contract, ev.Timestamp)
}

// OnBurn behaves like OnMint but is ignored when no Transfer of the same
// transaction has been seen.
func (m *Module) OnBurn(ctx context.Context, st entity.Store, ev *BurnEvent) error {
	tx, err := st.Transaction(ctx, ev.TxHash)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", ev.TxHash, err)
	}
	if tx == nil {
		m.logger.Debug().Str("tx_hash", ev.TxHash).Msg("Burn without transaction, skipping")
		return nil
	}
	return m.touchPair(ctx, st, ev.Contract, ev.Timestamp)
}

// OnSwap values the trade, updates volume counters and appends a Swap
// record to its transaction.
func (m *Module) OnSwap(ctx context.Context, st entity.Store, ev *SwapEvent) (*entity.Swap, error) {
	pair, err := requirePair(ctx, st, ev.Contract)
	if err != nil {
		return nil, err
	}
	token0, err := requireToken(ctx, st, pair.Token0)
	if err != nil {
		return nil, err
	}
	token1, err := requireToken(ctx, st, pair.Token1)
	if err != nil {
		return nil, err
	}
	factory, err := requireFactory(ctx, st, m.factoryAddress)
	if err != nil {
		return nil, err
	}
	bundle, err := requireBundle(ctx, st)
	if err != nil {
		return nil, err
	}

	amount0In := ConvertTokenToDecimal(ev.Amount0In, token0.Decimals)
	amount1In := ConvertTokenToDecimal(ev.Amount1In, token1.Decimals)
	amount0Out := ConvertTokenToDecimal(ev.Amount0Out, token0.Decimals)
	amount1Out := ConvertTokenToDecimal(ev.Amount1Out, token1.Decimals)

	amount0Total := amount0In.Add(amount0Out)
	amount1Total := amount1In.Add(amount1Out)

	derivedAmountBNB := token1.DerivedBNB.Mul(amount1Total).
		Add(token0.DerivedBNB.Mul(amount0Total)).
		DivRound(two, divPrecision)
	derivedAmountUSD := derivedAmountBNB.Mul(bundle.BnbPrice)

	trackedAmountUSD := m.pricing.TrackedVolumeUSD(amount0Total, token0, amount1Total, token1)
	trackedAmountBNB := SafeDiv(trackedAmountUSD, bundle.BnbPrice)

	token0.TradeVolume = token0.TradeVolume.Add(amount0Total)
	token0.TradeVolumeUSD = token0.TradeVolumeUSD.Add(trackedAmountUSD)
	token0.UntrackedVolumeUSD = token0.UntrackedVolumeUSD.Add(derivedAmountUSD)
	token0.TotalTransactions++

	token1.TradeVolume = token1.TradeVolume.Add(amount1Total)
	token1.TradeVolumeUSD = token1.TradeVolumeUSD.Add(trackedAmountUSD)
	token1.UntrackedVolumeUSD = token1.UntrackedVolumeUSD.Add(derivedAmountUSD)
	token1.TotalTransactions++

	pair.VolumeToken0 = pair.VolumeToken0.Add(amount0Total)
	pair.VolumeToken1 = pair.VolumeToken1.Add(amount1Total)
	pair.VolumeUSD = pair.VolumeUSD.Add(trackedAmountUSD)
	pair.UntrackedVolumeUSD = pair.UntrackedVolumeUSD.Add(derivedAmountUSD)
	pair.TotalTransactions++

	factory.TotalVolumeUSD = factory.TotalVolumeUSD.Add(trackedAmountUSD)
	factory.TotalVolumeBNB = factory.TotalVolumeBNB.Add(trackedAmountBNB)
	factory.UntrackedVolumeUSD = factory.UntrackedVolumeUSD.Add(derivedAmountUSD)
	factory.TotalTransactions++

	if err := saveAll(ctx, st, pair, factory, token0, token1); err != nil {
		return nil, err
	}

	tx, err := loadOrCreateTransaction(ctx, st, ev.Meta)
	if err != nil {
		return nil, err
	}

	amountUSD := trackedAmountUSD
	if amountUSD.IsZero() {
		amountUSD = derivedAmountUSD
	}

	swap := &entity.Swap{
		ID:          fmt.Sprintf("%s-%d", tx.ID, len(tx.Swaps)),
		Transaction: tx.ID,
		Pair:        pair.ID,
		Timestamp:   ev.Timestamp,
		Sender:      ev.Sender,
		From:        ev.TxFrom,
		To:          ev.To,
		Amount0In:   amount0In,
		Amount1In:   amount1In,
		Amount0Out:  amount0Out,
		Amount1Out:  amount1Out,
		LogIndex:    ev.LogIndex,
		AmountUSD:   amountUSD,
	}
	if err := st.SaveSwap(ctx, swap); err != nil {
		return nil, fmt.Errorf("failed to save swap %s: %w", swap.ID, err)
	}

	tx.Swaps = append(tx.Swaps, swap.ID)
	if err := st.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
	}

	if err := m.updateCandles(ctx, st, bundle, ev.Timestamp, token0, token1); err != nil {
		return nil, err
	}

	return swap, nil
}

// touchPair re-saves a pair with its tokens and factory and ticks both
// tokens' candles.
func (m *Module) touchPair(ctx context.Context, st entity.Store, pairID string, timestamp uint64) error {
	pair, err := requirePair(ctx, st, pairID)
	if err != nil {
		return err
	}
	factory, err := requireFactory(ctx, st, m.factoryAddress)
	if err != nil {
		return err
	}
	token0, err := requireToken(ctx, st, pair.Token0)
	if err != nil {
		return err
	}
	token1, err := requireToken(ctx, st, pair.Token1)
	if err != nil {
		return err
	}
	bundle, err := requireBundle(ctx, st)
	if err != nil {
		return err
	}

	if err := saveAll(ctx, st, pair, factory, token0, token1); err != nil {
		return err
	}
	return m.updateCandles(ctx, st, bundle, timestamp, token0, token1)
}

func (m *Module) updateCandles(ctx context.Context, st entity.Store, bundle *entity.Bundle, timestamp uint64, tokens ...*entity.Token) error {
	for _, interval := range m.candleIntervals {
		for _, token := range tokens {
			if err := updateCandle(ctx, st, token, bundle, timestamp, interval); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Module) reprice(ctx context.Context, st entity.Store, token *entity.Token, bundle *entity.Bundle) error {
	derived, err := m.pricing.FindBnbPerToken(ctx, st, token)
	if err != nil {
		return fmt.Errorf("failed to price token %s: %w", token.ID, err)
	}
	token.DerivedBNB = derived
	token.DerivedUSD = derived.Mul(bundle.BnbPrice)
	return nil
}

func (m *Module) loadOrCreateToken(ctx context.Context, st entity.Store, id string) (*entity.Token, error) {
	token, err := st.Token(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load token %s: %w", id, err)
	}
	if token != nil {
		return token, nil
	}

	md, err := m.fetchTokenMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	token = &entity.Token{
		ID:          id,
		Name:        md.Name,
		Symbol:      md.Symbol,
		Decimals:    md.Decimals,
		TotalSupply: decimal.NewFromBigInt(md.TotalSupply, 0),
	}
	if err := st.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save token %s: %w", id, err)
	}
	return token, nil
}

// fetchTokenMetadata falls back to defaults for tokens that do not expose
// their metadata. RPC failures are returned so the event is retried.
func (m *Module) fetchTokenMetadata(ctx context.Context, id string) (*TokenMetadata, error) {
	defaults := &TokenMetadata{
		Name:        "Unknown",
		Symbol:      "???",
		Decimals:    18,
		TotalSupply: big.NewInt(0),
	}
	if m.metadata == nil {
		return defaults, nil
	}

	md, err := m.metadata.FetchTokenMetadata(ctx, common.HexToAddress(id))
	if errors.Is(err, ErrMetadataUnavailable) || (err == nil && md == nil) {
		m.logger.Warn().Err(err).Str("token", id).Msg("Token metadata unavailable, using defaults")
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata of token %s: %w", id, err)
	}
	if md.Name == "" {
		md.Name = defaults.Name
	}
	if md.Symbol == "" {
		md.Symbol = defaults.Symbol
	}
	if md.TotalSupply == nil {
		md.TotalSupply = defaults.TotalSupply
	}
	return md, nil
}

func loadOrCreateTransaction(ctx context.Context, st entity.Store, meta Meta) (*entity.Transaction, error) {
	tx, err := st.Transaction(ctx, meta.TxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", meta.TxHash, err)
	}
	if tx == nil {
		tx = &entity.Transaction{
			ID:          meta.TxHash,
			BlockNumber: meta.BlockNumber,
			Timestamp:   meta.Timestamp,
			Swaps:       []string{},
		}
	}
	return tx, nil
}

func requirePair(ctx context.Context, st entity.Store, id string) (*entity.Pair, error) {
	pair, err := st.Pair(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load pair %s: %w", id, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("pair %s: %w", id, entity.ErrNotFound)
	}
	return pair, nil
}

func requireToken(ctx context.Context, st entity.Store, id string) (*entity.Token, error) {
	token, err := st.Token(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load token %s: %w", id, err)
	}
	if token == nil {
		return nil, fmt.Errorf("token %s: %w", id, entity.ErrNotFound)
	}
	return token, nil
}

func requireFactory(ctx context.Context, st entity.Store, id string) (*entity.Factory, error) {
	factory, err := st.Factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load factory %s: %w", id, err)
	}
	if factory == nil {
		return nil, fmt.Errorf("factory %s: %w", id, entity.ErrNotFound)
	}
	return factory, nil
}

func requireBundle(ctx context.Context, st entity.Store) (*entity.Bundle, error) {
	bundle, err := st.Bundle(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	if bundle == nil {
		return nil, fmt.Errorf("bundle: %w", entity.ErrNotFound)
	}
	return bundle, nil
}

func saveAll(ctx context.Context, st entity.Store, pair *entity.Pair, factory *entity.Factory, token0, token1 *entity.Token) error {
	if err := st.SavePair(ctx, pair); err != nil {
		return fmt.Errorf("failed to save pair %s: %w", pair.ID, err)
	}
	if err := st.SaveFactory(ctx, factory); err != nil {
		return fmt.Errorf("failed to save factory: %w", err)
	}
	if err := st.SaveToken(ctx, token0); err != nil {
		return fmt.Errorf("failed to save token %s: %w", token0.ID, err)
	}
	if err := st.SaveToken(ctx, token1); err != nil {
		return fmt.Errorf("failed to save token %s: %w", token1.ID, err)
	}
	return nil
}
