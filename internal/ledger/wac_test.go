package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/galley-erp/galley/internal/money"
)

func TestAverageFirstReceiptTakesReceiptPrice(t *testing.T) {
	qty, wac, err := Average(decimal.Zero, decimal.Zero, money.Must("100"), money.Must("10.00"))
	require.NoError(t, err)
	require.True(t, qty.Equal(money.Must("100")), "qty %s", qty)
	require.True(t, wac.Equal(money.Must("10.00")), "wac %s", wac)
}

func TestAverageWeighted(t *testing.T) {
	// 100 @ 10.00 + 50 @ 12.00 -> 150 @ 10.6667
	qty, wac, err := Average(money.Must("100"), money.Must("10.00"), money.Must("50"), money.Must("12.00"))
	require.NoError(t, err)
	require.True(t, qty.Equal(money.Must("150")), "qty %s", qty)
	require.True(t, wac.Equal(money.Must("10.6667")), "wac %s", wac)
}

func TestAverageRoundsOnlyFinalResult(t *testing.T) {
	// 3 @ 0.3333 + 3 @ 0.3334: the intermediate total value keeps full
	// precision, only the final average is rounded to four digits.
	qty, wac, err := Average(money.Must("3"), money.Must("0.3333"), money.Must("3"), money.Must("0.3334"))
	require.NoError(t, err)
	require.True(t, qty.Equal(money.Must("6")))
	require.True(t, wac.Equal(money.Must("0.3334")), "wac %s", wac)
}

func TestAverageDeterministic(t *testing.T) {
	a1, w1, err := Average(money.Must("7"), money.Must("3.1415"), money.Must("11"), money.Must("2.7182"))
	require.NoError(t, err)
	a2, w2, err := Average(money.Must("7"), money.Must("3.1415"), money.Must("11"), money.Must("2.7182"))
	require.NoError(t, err)
	require.Equal(t, a1.String(), a2.String())
	require.Equal(t, w1.String(), w2.String())
}

func TestAverageRejectsInvalidInputs(t *testing.T) {
	_, _, err := Average(money.Must("1"), money.Must("1"), decimal.Zero, money.Must("1"))
	require.ErrorIs(t, err, ErrInvalidReceipt)

	_, _, err = Average(money.Must("1"), money.Must("1"), money.Must("-2"), money.Must("1"))
	require.ErrorIs(t, err, ErrInvalidReceipt)

	_, _, err = Average(money.Must("-1"), money.Must("1"), money.Must("2"), money.Must("1"))
	require.ErrorIs(t, err, ErrInvalidReceipt)

	_, _, err = Average(money.Must("1"), money.Must("1"), money.Must("2"), money.Must("-1"))
	require.ErrorIs(t, err, ErrInvalidReceipt)
}

func TestReceiveUpdatesLineInPlace(t *testing.T) {
	line := StockLine{LocationID: 1, ItemID: 1, OnHand: money.Must("100"), WAC: money.Must("10.00")}
	require.NoError(t, Receive(&line, money.Must("50"), money.Must("12.00")))
	require.True(t, line.OnHand.Equal(money.Must("150")))
	require.True(t, line.WAC.Equal(money.Must("10.6667")))

	// Value conservation: 150 × 10.6667 == 1600.005 ≈ 1000 + 600 modulo rounding.
	diff := line.Value().Sub(money.Must("1600")).Abs()
	require.True(t, diff.LessThanOrEqual(money.Must("0.01")), "value drift %s", diff)
}
