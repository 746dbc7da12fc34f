package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

type fakeRawSource struct {
	rows       []domain.RawWalletEvent
	err        error
	lastWallet string
}

func (f *fakeRawSource) RawEventsByWallet(_ context.Context, wallet string) ([]domain.RawWalletEvent, error) {
	f.lastWallet = wallet
	return f.rows, f.err
}

func testNormalizer(src domain.RawEventSource) *Normalizer {
	return NewNormalizer(src, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func row(tx string, kind domain.EventKind, outcome int, tokens, usdc, ts int64) domain.RawWalletEvent {
	return domain.RawWalletEvent{
		ConditionID: "0xcond",
		Outcome:     outcome,
		Kind:        kind,
		TokenAmount: tokens,
		USDCAmount:  usdc,
		TxHash:      tx,
		Timestamp:   ts,
	}
}

func TestNormalizer_SignConventionsAndScaling(t *testing.T) {
	src := &fakeRawSource{rows: []domain.RawWalletEvent{
		row("0x1", domain.EventBuy, 0, 100_000_000, 60_000_000, 1000),
		row("0x2", domain.EventSell, 0, 40_000_000, 32_000_000, 2000),
	}}

	events, dropped, err := testNormalizer(src).Load(context.Background(), "0xWallet")
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, events, 2)

	// Buy: 100 tokens in, $60 out.
	assert.InDelta(t, 100.0, events[0].TokenDelta, 1e-9)
	assert.InDelta(t, -60.0, events[0].USDDelta, 1e-9)
	// Sell: 40 tokens out, $32 in.
	assert.InDelta(t, -40.0, events[1].TokenDelta, 1e-9)
	assert.InDelta(t, 32.0, events[1].USDDelta, 1e-9)

	assert.Equal(t, "0xwallet", events[0].Wallet)
	assert.Equal(t, "0xwallet", src.lastWallet)
}

func TestNormalizer_DropsExactDuplicates(t *testing.T) {
	// The same fill delivered three times by upstream reprocessing must
	// count once; a different kind under the same hash is a distinct event.
	src := &fakeRawSource{rows: []domain.RawWalletEvent{
		row("0x1", domain.EventBuy, 0, 100_000_000, 60_000_000, 1000),
		row("0x1", domain.EventBuy, 0, 100_000_000, 60_000_000, 1000),
		row("0x1", domain.EventBuy, 0, 100_000_000, 60_000_000, 1000),
		row("0x1", domain.EventSell, 1, 50_000_000, 20_000_000, 1000),
	}}

	events, dropped, err := testNormalizer(src).Load(context.Background(), "0xw")
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Len(t, events, 2)
}

func TestNormalizer_OrdersByTimestampThenSeq(t *testing.T) {
	src := &fakeRawSource{rows: []domain.RawWalletEvent{
		row("0x3", domain.EventSell, 0, 1_000_000, 1_000_000, 3000),
		row("0x1", domain.EventBuy, 0, 1_000_000, 1_000_000, 1000),
		row("0x2a", domain.EventBuy, 1, 1_000_000, 1_000_000, 2000),
		row("0x2b", domain.EventSell, 1, 1_000_000, 1_000_000, 2000),
	}}

	events, _, err := testNormalizer(src).Load(context.Background(), "0xw")
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, "0x1", events[0].TxHash)
	// Equal timestamps keep ingestion order via the sequence tiebreak.
	assert.Equal(t, "0x2a", events[1].TxHash)
	assert.Equal(t, "0x2b", events[2].TxHash)
	assert.Equal(t, "0x3", events[3].TxHash)
}

func TestNormalizer_SkipsMalformedRows(t *testing.T) {
	src := &fakeRawSource{rows: []domain.RawWalletEvent{
		row("0x1", domain.EventBuy, 2, 1_000_000, 1_000_000, 1000), // bad outcome index
		row("0x2", domain.EventBuy, 0, -1, 1_000_000, 1000),        // negative amount
		row("0x3", domain.EventKind("transfer"), 0, 1, 1, 1000),    // unknown kind
		row("0x4", domain.EventBuy, 0, 1_000_000, 1_000_000, 1000),
	}}

	events, dropped, err := testNormalizer(src).Load(context.Background(), "0xw")
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, events, 1)
	assert.Equal(t, "0x4", events[0].TxHash)
}

func TestNormalizer_EmptyHistory(t *testing.T) {
	events, dropped, err := testNormalizer(&fakeRawSource{}).Load(context.Background(), "0xw")
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Empty(t, events)
}

func TestNormalizer_SourceErrorWrapped(t *testing.T) {
	src := &fakeRawSource{err: domain.ErrDataUnavailable}

	_, _, err := testNormalizer(src).Load(context.Background(), "0xw")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}
