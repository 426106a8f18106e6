// Package stock provides the per-store stock ledger: Stock rows holding the
// on-hand quantity and current prices, and the StockStatus batches that feed them.
package stock

import (
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
)

// BuyingMethod tells how clients may buy the product.
type BuyingMethod string

const (
	BuyByUnit BuyingMethod = "unit"
	BuyByBox  BuyingMethod = "box"
	BuyByBoth BuyingMethod = "both"
)

// Valid reports whether m is a known buying method.
func (m BuyingMethod) Valid() bool {
	switch m {
	case BuyByUnit, BuyByBox, BuyByBoth:
		return true
	}
	return false
}

// Stock is the on-hand inventory of one product at one store.
//
// Quantity equals the sum of the batch quantities minus every consumption
// recorded against the stock and is never negative. Version guards every
// write with a compare-and-swap.
type Stock struct {
	entity.BaseEntity

	StoreID   id.ID `db:"store_id" json:"storeId"`
	ProductID id.ID `db:"product_id" json:"productId"`

	Quantity     int64       `db:"quantity" json:"quantity"`
	BuyingPrice  types.Money `db:"buying_price" json:"buyingPrice"`
	SellingPrice types.Money `db:"selling_price" json:"sellingPrice"`

	// QuantityLimit caps a single sale; 0 means unlimited
	QuantityLimit int64        `db:"quantity_limit" json:"quantityLimit"`
	BuyingMethod  BuyingMethod `db:"buying_method" json:"buyingMethod"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Batch is one StockStatus entry: a replenishment of a Stock.
type Batch struct {
	ID             id.ID       `db:"id" json:"id"`
	StockID        id.ID       `db:"stock_id" json:"stockId"`
	Date           time.Time   `db:"date" json:"date"`
	BuyingPrice    types.Money `db:"buying_price" json:"buyingPrice"`
	SellingPrice   types.Money `db:"selling_price" json:"sellingPrice"`
	Quantity       int64       `db:"quantity" json:"quantity"`
	ExpirationDate *time.Time  `db:"expiration_date" json:"expirationDate,omitempty"`
}

// BatchInput describes units entering a stock.
type BatchInput struct {
	Quantity       int64
	BuyingPrice    types.Money
	SellingPrice   types.Money
	ExpirationDate *time.Time
}

// Validate checks the batch values: positive quantity and prices, buying below selling.
func (in BatchInput) Validate() error {
	if in.Quantity <= 0 {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", in.Quantity)
	}
	return validatePrices(in.BuyingPrice, in.SellingPrice)
}

func validatePrices(buying, selling types.Money) error {
	if !buying.IsPositive() || !selling.IsPositive() {
		return apperror.NewValidation("prices must be positive").
			WithDetail("buyingPrice", buying.String()).
			WithDetail("sellingPrice", selling.String())
	}
	if !buying.LessThan(selling) {
		return apperror.NewValidation("buying price must be lower than selling price").
			WithDetail("buyingPrice", buying.String()).
			WithDetail("sellingPrice", selling.String())
	}
	return nil
}

// mutation is the single funnel for quantity changes.
type mutation struct {
	delta      int64
	checkLimit bool
}

// apply changes Quantity by m.delta, refusing to go below zero and, for
// sales, refusing withdrawals above the per-sale limit.
func (s *Stock) apply(m mutation) error {
	if m.delta < 0 {
		if err := s.checkWithdrawal(-m.delta, m.checkLimit); err != nil {
			return err
		}
	}
	s.Quantity += m.delta
	return nil
}

// CanSell reports whether qty units may leave the stock in one sale,
// without changing it.
func (s *Stock) CanSell(qty int64) error {
	return s.checkWithdrawal(qty, true)
}

func (s *Stock) checkWithdrawal(want int64, checkLimit bool) error {
	if checkLimit && s.QuantityLimit > 0 && want > s.QuantityLimit {
		return apperror.NewQuantityLimitExceeded(s.ID.String(), want, s.QuantityLimit)
	}
	if want > s.Quantity {
		return apperror.NewInsufficientStock(s.ID.String(), want, s.Quantity)
	}
	return nil
}
