package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/orders"
)

func newTestOrder(userID, paymentRef string, items ...orders.Item) *orders.Order {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	tax := subtotal.Mul(decimal.RequireFromString("0.18")).Round(2)
	req := orders.CreateRequest{
		Items:            items,
		Subtotal:         subtotal,
		Discount:         decimal.Zero,
		Shipping:         decimal.Zero,
		Tax:              tax,
		Total:            subtotal.Add(tax),
		ShippingAddress:  "Av. Sol 1, Wanchaq, Cusco, Cusco",
		FullName:         "Ana Quispe",
		Phone:            "987654321",
		PaymentReference: paymentRef,
	}
	return orders.New(userID, req, time.Now().UTC().Truncate(time.Microsecond))
}

func item(variantID string, qty int) orders.Item {
	return orders.Item{
		ProductID: "p-" + variantID,
		VariantID: variantID,
		Name:      "Runner",
		Size:      "42",
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("100.00"),
	}
}

// runContract exercises behaviour every OrderRepository must share.
func runContract(t *testing.T, newRepo func(t *testing.T) OrderRepository) {
	t.Run("create decrements stock and writes outbox", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.SetStock(ctx, "v-1", 5))
		require.NoError(t, repo.SetStock(ctx, "v-2", 5))

		o := newTestOrder("user-1", "pi_"+uuid.NewString(), item("v-1", 2), item("v-2", 1), item("v-1", 1))
		require.NoError(t, repo.CreateOrder(ctx, o))

		stock, err := repo.GetStock(ctx, "v-1")
		require.NoError(t, err)
		assert.Equal(t, 2, stock)
		stock, err = repo.GetStock(ctx, "v-2")
		require.NoError(t, err)
		assert.Equal(t, 4, stock)

		fetched, err := repo.GetOrderByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.OrderNumber, fetched.OrderNumber)
		assert.Equal(t, orders.StatusPending, fetched.Status)
		assert.True(t, o.Total.Equal(fetched.Total))
		assert.Len(t, fetched.Items, 3)

		events, err := repo.GetUnprocessedEvents(ctx, 100)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, orders.EventOrderCreated, events[0].EventType)
		assert.Equal(t, o.ID.String(), events[0].AggregateID)

		var ev orders.Event
		require.NoError(t, json.Unmarshal(events[0].Payload, &ev))
		assert.Equal(t, o.OrderNumber, ev.OrderNumber)

		require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
		events, err = repo.GetUnprocessedEvents(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("insufficient stock changes nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.SetStock(ctx, "v-1", 5))
		require.NoError(t, repo.SetStock(ctx, "v-2", 1))

		o := newTestOrder("user-1", "pi_"+uuid.NewString(), item("v-1", 2), item("v-2", 2))
		err := repo.CreateOrder(ctx, o)
		assert.ErrorIs(t, err, orders.ErrInsufficientStock)

		stock, err := repo.GetStock(ctx, "v-1")
		require.NoError(t, err)
		assert.Equal(t, 5, stock)
		_, err = repo.GetOrderByID(ctx, o.ID)
		assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	})

	t.Run("unknown variant", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.CreateOrder(context.Background(), newTestOrder("user-1", "pi_"+uuid.NewString(), item("missing", 1)))
		assert.ErrorIs(t, err, orders.ErrVariantNotFound)
	})

	t.Run("duplicate payment reference", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.SetStock(ctx, "v-1", 5))

		ref := "pi_" + uuid.NewString()
		first := newTestOrder("user-1", ref, item("v-1", 1))
		require.NoError(t, repo.CreateOrder(ctx, first))

		err := repo.CreateOrder(ctx, newTestOrder("user-1", ref, item("v-1", 1)))
		assert.ErrorIs(t, err, orders.ErrDuplicatePayment)

		stock, err := repo.GetStock(ctx, "v-1")
		require.NoError(t, err)
		assert.Equal(t, 4, stock)

		byRef, err := repo.GetOrderByPaymentReference(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, first.ID, byRef.ID)
	})

	t.Run("concurrent checkouts for the last unit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.SetStock(ctx, "v-last", 1))

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.CreateOrder(ctx, newTestOrder("user-1", "pi_"+uuid.NewString(), item("v-last", 1)))
			}(i)
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, orders.ErrInsufficientStock)
		}
		assert.Equal(t, 1, created)

		stock, err := repo.GetStock(ctx, "v-last")
		require.NoError(t, err)
		assert.Equal(t, 0, stock)
	})

	t.Run("cancel shipped order restores stock", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.SetStock(ctx, "v-1", 3))

		o := newTestOrder("user-1", "pi_"+uuid.NewString(), item("v-1", 2))
		require.NoError(t, repo.CreateOrder(ctx, o))

		for _, to := range []orders.Status{orders.StatusProcessing, orders.StatusShipped} {
			from := o.Status
			require.NoError(t, o.Advance(to, time.Now().UTC()))
			require.NoError(t, repo.UpdateStatus(ctx, o, from))
		}

		from := o.Status
		require.NoError(t, o.Cancel(time.Now().UTC()))
		require.NoError(t, repo.CancelOrder(ctx, o, from))

		stock, err := repo.GetStock(ctx, "v-1")
		require.NoError(t, err)
		assert.Equal(t, 3, stock)

		fetched, err := repo.GetOrderByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusCancelled, fetched.Status)
		assert.NotNil(t, fetched.CancelledAt)

		// a stale second cancel is refused and restores nothing
		err = repo.CancelOrder(ctx, o, from)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
		stock, err = repo.GetStock(ctx, "v-1")
		require.NoError(t, err)
		assert.Equal(t, 3, stock)
	})

	t.Run("stale status update is refused", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.SetStock(ctx, "v-1", 3))

		o := newTestOrder("user-1", "pi_"+uuid.NewString(), item("v-1", 1))
		require.NoError(t, repo.CreateOrder(ctx, o))

		require.NoError(t, o.Advance(orders.StatusProcessing, time.Now().UTC()))
		require.NoError(t, repo.UpdateStatus(ctx, o, orders.StatusPending))

		err := repo.UpdateStatus(ctx, o, orders.StatusPending)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	})

	t.Run("lookup and list", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.SetStock(ctx, "v-1", 10))

		userID := "user-" + uuid.NewString()
		first := newTestOrder(userID, "pi_"+uuid.NewString(), item("v-1", 1))
		require.NoError(t, repo.CreateOrder(ctx, first))
		second := newTestOrder(userID, "pi_"+uuid.NewString(), item("v-1", 1))
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		require.NoError(t, repo.CreateOrder(ctx, second))

		list, err := repo.ListOrdersByUserID(ctx, userID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)

		byNumber, err := repo.GetOrderByNumber(ctx, first.OrderNumber)
		require.NoError(t, err)
		assert.Equal(t, first.ID, byNumber.ID)

		_, err = repo.GetOrderByNumber(ctx, "ORD-00000000-NOPE")
		assert.ErrorIs(t, err, orders.ErrOrderNotFound)
		_, err = repo.GetStock(ctx, "nope")
		assert.ErrorIs(t, err, orders.ErrVariantNotFound)
	})
}
