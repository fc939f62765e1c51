package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/orderflow/fulfillment-system/shared/models"
)

// StockInventory is an in-memory InventoryService. Behavior is
// deterministic: calls fail only when stock genuinely runs out or a
// product is unknown.
type StockInventory struct {
	mu           sync.Mutex
	stock        map[string]int
	reservations map[string]reservation
	nextSeq      int
}

type reservation struct {
	productID string
	quantity  int
	orderID   models.ID
	confirmed bool
}

// NewStockInventory creates an inventory seeded with the given stock
// levels per product id.
func NewStockInventory(stock map[string]int) *StockInventory {
	s := make(map[string]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &StockInventory{
		stock:        s,
		reservations: make(map[string]reservation),
	}
}

// Check reports availability for every line item. Items are checked
// concurrently; an unknown product is reported as unavailable, not an
// error.
func (inv *StockInventory) Check(ctx context.Context, items []models.LineItem) ([]Availability, error) {
	result := make([]Availability, len(items))

	gr, ctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		gr.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			inv.mu.Lock()
			inStock := inv.stock[item.ProductID]
			inv.mu.Unlock()

			result[i] = Availability{
				ProductID: item.ProductID,
				Available: inStock >= item.Quantity,
				InStock:   inStock,
			}
			return nil
		})
	}
	if err := gr.Wait(); err != nil {
		return nil, errors.Wrap(err, "availability check aborted")
	}

	return result, nil
}

// Reserve reserves all items or none. On any shortfall the already
// decremented stock is restored before returning ErrInsufficientStock.
func (inv *StockInventory) Reserve(ctx context.Context, items []models.LineItem, orderID models.ID) ([]string, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, item := range items {
		if inv.stock[item.ProductID] < item.Quantity {
			return nil, errors.Wrapf(ErrInsufficientStock, "product %s", item.ProductID)
		}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		inv.stock[item.ProductID] -= item.Quantity
		inv.nextSeq++
		id := fmt.Sprintf("rsv-%06d", inv.nextSeq)
		inv.reservations[id] = reservation{
			productID: item.ProductID,
			quantity:  item.Quantity,
			orderID:   orderID,
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// Confirm converts reservations into permanent allocations
func (inv *StockInventory) Confirm(ctx context.Context, reservationIDs []string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, id := range reservationIDs {
		rsv, ok := inv.reservations[id]
		if !ok {
			return errors.Wrapf(ErrReservationFailed, "reservation %s not found", id)
		}
		rsv.confirmed = true
		inv.reservations[id] = rsv
	}
	return nil
}

// Release returns reserved stock. Unknown or already-released ids are
// ignored.
func (inv *StockInventory) Release(ctx context.Context, reservationIDs []string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, id := range reservationIDs {
		rsv, ok := inv.reservations[id]
		if !ok {
			continue
		}
		inv.stock[rsv.productID] += rsv.quantity
		delete(inv.reservations, id)
	}
	return nil
}

// StockLevel returns current stock for a product, for inspection
func (inv *StockInventory) StockLevel(productID string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.stock[productID]
}
