package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/galley-erp/galley/internal/money"
)

// ErrInvalidReceipt indicates WAC inputs outside the valid domain.
var ErrInvalidReceipt = errors.New("ledger: receipt quantity must be positive and values non-negative")

// Average computes the quantity and weighted average cost of a stock line
// after receiving receivedQty units at receiptPrice.
//
// newQty is exact. newWAC is the weighted average of the existing holding
// and the receipt, rounded to money.CostScale only at the end; intermediate
// sums keep full precision so the result is reproducible bit for bit. A
// receipt onto an empty line takes the receipt price directly — no 0/0
// division.
func Average(currentQty, currentWAC, receivedQty, receiptPrice decimal.Decimal) (newQty, newWAC decimal.Decimal, err error) {
	if !money.IsPositive(receivedQty) {
		return decimal.Decimal{}, decimal.Decimal{}, ErrInvalidReceipt
	}
	if money.IsNegative(currentQty) || money.IsNegative(currentWAC) || money.IsNegative(receiptPrice) {
		return decimal.Decimal{}, decimal.Decimal{}, ErrInvalidReceipt
	}

	newQty = currentQty.Add(receivedQty)
	if money.IsZero(currentQty) {
		return newQty, receiptPrice, nil
	}

	totalValue := currentQty.Mul(currentWAC).Add(receivedQty.Mul(receiptPrice))
	newWAC = money.RoundCost(totalValue.Div(newQty))
	return newQty, newWAC, nil
}

// Receive applies Average to a stock line in place.
func Receive(line *StockLine, qty, price decimal.Decimal) error {
	newQty, newWAC, err := Average(line.OnHand, line.WAC, qty, price)
	if err != nil {
		return err
	}
	line.OnHand = newQty
	line.WAC = newWAC
	return nil
}
