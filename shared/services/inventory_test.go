package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/fulfillment-system/shared/models"
)

func testStock() map[string]int {
	return map[string]int{
		"widget-basic": 10,
		"gadget-mini":  3,
	}
}

func lineItem(productID string, quantity int) models.LineItem {
	return models.LineItem{
		ProductID: productID,
		Name:      productID,
		Quantity:  quantity,
		UnitPrice: models.NewMoney(1000, "USD"),
	}
}

func TestStockInventory_Check(t *testing.T) {
	inv := NewStockInventory(testStock())

	availability, err := inv.Check(context.Background(), []models.LineItem{
		lineItem("widget-basic", 5),
		lineItem("gadget-mini", 4),
		lineItem("nonexistent", 1),
	})
	require.NoError(t, err)
	require.Len(t, availability, 3)

	byProduct := make(map[string]Availability, len(availability))
	for _, av := range availability {
		byProduct[av.ProductID] = av
	}

	assert.True(t, byProduct["widget-basic"].Available)
	assert.Equal(t, 10, byProduct["widget-basic"].InStock)
	assert.False(t, byProduct["gadget-mini"].Available)
	assert.Equal(t, 3, byProduct["gadget-mini"].InStock)
	assert.False(t, byProduct["nonexistent"].Available)
	assert.Equal(t, 0, byProduct["nonexistent"].InStock)
}

func TestStockInventory_ReserveDecrementsStock(t *testing.T) {
	inv := NewStockInventory(testStock())
	orderID := models.GenerateUUID()

	ids, err := inv.Reserve(context.Background(), []models.LineItem{
		lineItem("widget-basic", 2),
		lineItem("gadget-mini", 1),
	}, orderID)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "rsv-000001", ids[0])
	assert.Equal(t, "rsv-000002", ids[1])

	assert.Equal(t, 8, inv.StockLevel("widget-basic"))
	assert.Equal(t, 2, inv.StockLevel("gadget-mini"))
}

func TestStockInventory_ReserveIsAllOrNothing(t *testing.T) {
	inv := NewStockInventory(testStock())

	ids, err := inv.Reserve(context.Background(), []models.LineItem{
		lineItem("widget-basic", 2),
		lineItem("gadget-mini", 4), // more than in stock
	}, models.GenerateUUID())
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Empty(t, ids)

	// nothing was decremented
	assert.Equal(t, 10, inv.StockLevel("widget-basic"))
	assert.Equal(t, 3, inv.StockLevel("gadget-mini"))
}

func TestStockInventory_ReleaseRestoresStock(t *testing.T) {
	inv := NewStockInventory(testStock())

	ids, err := inv.Reserve(context.Background(), []models.LineItem{
		lineItem("widget-basic", 4),
	}, models.GenerateUUID())
	require.NoError(t, err)
	assert.Equal(t, 6, inv.StockLevel("widget-basic"))

	require.NoError(t, inv.Release(context.Background(), ids))
	assert.Equal(t, 10, inv.StockLevel("widget-basic"))

	// releasing again is a no-op, not a double credit
	require.NoError(t, inv.Release(context.Background(), ids))
	assert.Equal(t, 10, inv.StockLevel("widget-basic"))

	// unknown ids are ignored
	require.NoError(t, inv.Release(context.Background(), []string{"rsv-999999"}))
	assert.Equal(t, 10, inv.StockLevel("widget-basic"))
}

func TestStockInventory_ConfirmUnknownReservation(t *testing.T) {
	inv := NewStockInventory(testStock())

	err := inv.Confirm(context.Background(), []string{"rsv-999999"})
	assert.ErrorIs(t, err, ErrReservationFailed)
}

func TestStockInventory_ConfirmedReservationSurvivesRelease(t *testing.T) {
	inv := NewStockInventory(testStock())

	ids, err := inv.Reserve(context.Background(), []models.LineItem{
		lineItem("widget-basic", 4),
	}, models.GenerateUUID())
	require.NoError(t, err)
	require.NoError(t, inv.Confirm(context.Background(), ids))

	// a confirmed allocation can still be released, e.g. when the
	// fulfillment is cancelled after confirmation
	require.NoError(t, inv.Release(context.Background(), ids))
	assert.Equal(t, 10, inv.StockLevel("widget-basic"))
}
