package settlement

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Book is a seller's listing. Price is in display units (dollars); all
// settlement arithmetic happens on integer minor units via PriceCents.
// The Sold flag is owned exclusively by purchase transitions and is never
// set directly by calling code.
type Book struct {
	ID       uuid.UUID
	SellerID uuid.UUID
	Title    string
	Author   string
	Price    decimal.Decimal
	Sold     bool
}

// PriceCents converts the decimal price to integer minor currency units.
// The conversion is exact for prices with at most two decimal places;
// anything smaller than a cent is truncated.
func (b Book) PriceCents() int64 {
	return b.Price.Mul(decimal.NewFromInt(100)).IntPart()
}

// IsAvailable reports whether the book can be purchased: it must not be
// sold and must have no purchase in a non-terminal (pending) state.
// Cancelled purchases do not block availability. The result is derived on
// demand from the rows passed in, never cached across a transition.
func IsAvailable(book Book, purchases []Purchase) bool {
	if book.Sold {
		return false
	}

	for _, purchase := range purchases {
		if purchase.Status == StatusPending {
			return false
		}
	}

	return true
}
