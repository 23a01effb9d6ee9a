package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
	"pgregory.net/rapid"
)

func intPtr(v int) *int { return &v }

var orderRef = Reference{Type: "order", ID: "ORD-TEST"}

func TestDeduct_ClampsAtZero(t *testing.T) {
	store := newMemoryStore()
	id := uuid.New()
	store.set(id, intPtr(5))
	svc := NewService(store, logger.Discard())
	ctx := context.Background()

	first := svc.Deduct(ctx, []Adjustment{{BundleID: id, Quantity: 3}}, orderRef)
	require.True(t, first.Success)
	assert.Equal(t, 2, *store.get(id))
	assert.False(t, first.Applied[0].IsNowOutOfStock)

	second := svc.Deduct(ctx, []Adjustment{{BundleID: id, Quantity: 5}}, orderRef)
	require.True(t, second.Success)
	assert.Equal(t, 0, *store.get(id))
	assert.True(t, second.Applied[0].IsNowOutOfStock)
	assert.Equal(t, 2, *second.Applied[0].PreviousStock)
}

func TestDeduct_UnlimitedIsUntouched(t *testing.T) {
	store := newMemoryStore()
	id := uuid.New()
	store.set(id, nil)
	svc := NewService(store, logger.Discard())

	result := svc.Deduct(context.Background(), []Adjustment{{BundleID: id, Quantity: 10_000}}, orderRef)

	assert.True(t, result.Success)
	require.Len(t, result.Applied, 1)
	assert.True(t, result.Applied[0].Unlimited)
	assert.Nil(t, store.get(id))
	assert.Zero(t, store.appliedN)
}

func TestDeduct_PartialFailureDoesNotBlockOthers(t *testing.T) {
	store := newMemoryStore()
	ok1, missing, broken, ok2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	store.set(ok1, intPtr(4))
	store.set(broken, intPtr(4))
	store.set(ok2, intPtr(1))
	store.failFor[broken] = errStoreDown
	svc := NewService(store, logger.Discard())

	result := svc.Deduct(context.Background(), []Adjustment{
		{BundleID: ok1, Quantity: 1},
		{BundleID: missing, Quantity: 1},
		{BundleID: broken, Quantity: 1},
		{BundleID: ok2, Quantity: 1},
		{BundleID: ok1, Quantity: 0},
	}, orderRef)

	assert.False(t, result.Success)
	assert.Len(t, result.Applied, 2)
	require.Len(t, result.Failed, 3)
	assert.Equal(t, ErrBundleNotFound.Error(), result.Failed[0].Reason)
	assert.Equal(t, ErrInvalidQuantity.Error(), result.Failed[2].Reason)
	assert.Equal(t, 3, *store.get(ok1))
	assert.Equal(t, 0, *store.get(ok2))

	retry := result.FailedAdjustments()
	assert.Equal(t, []Adjustment{{BundleID: missing, Quantity: 1}, {BundleID: broken, Quantity: 1}, {BundleID: ok1, Quantity: 0}}, retry)
}

func TestRestore(t *testing.T) {
	store := newMemoryStore()
	id, unlimited := uuid.New(), uuid.New()
	store.set(id, intPtr(0))
	store.set(unlimited, nil)
	svc := NewService(store, logger.Discard())

	result := svc.Restore(context.Background(), []Adjustment{
		{BundleID: id, Quantity: 3},
		{BundleID: unlimited, Quantity: 3},
	}, orderRef)

	assert.True(t, result.Success)
	assert.Equal(t, 3, *store.get(id))
	assert.Nil(t, store.get(unlimited))
}

func TestRestoreOutstanding_ReturnsOnlyWhatWasTaken(t *testing.T) {
	store := newMemoryStore()
	clamped, plenty, unlimited := uuid.New(), uuid.New(), uuid.New()
	store.set(clamped, intPtr(2))
	store.set(plenty, intPtr(10))
	store.set(unlimited, nil)
	svc := NewService(store, logger.Discard())
	ctx := context.Background()

	svc.Deduct(ctx, []Adjustment{
		{BundleID: clamped, Quantity: 5},
		{BundleID: plenty, Quantity: 3},
		{BundleID: unlimited, Quantity: 4},
	}, orderRef)

	result, err := svc.RestoreOutstanding(ctx, orderRef)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Applied, 2)
	assert.Equal(t, 2, *store.get(clamped))
	assert.Equal(t, 10, *store.get(plenty))

	again, err := svc.RestoreOutstanding(ctx, orderRef)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Empty(t, again.Applied)
	assert.Equal(t, 10, *store.get(plenty))
}

func TestDeduct_ConcurrentCallersNeverGoNegative(t *testing.T) {
	store := newMemoryStore()
	id := uuid.New()
	store.set(id, intPtr(10))
	svc := NewService(store, logger.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Deduct(context.Background(), []Adjustment{{BundleID: id, Quantity: 1}}, orderRef)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, *store.get(id))
}

func TestDeduct_StockNeverNegativeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newMemoryStore()
		id := uuid.New()
		initial := rapid.IntRange(0, 100).Draw(t, "initial")
		store.set(id, intPtr(initial))
		svc := NewService(store, logger.Discard())

		requests := rapid.SliceOfN(rapid.IntRange(1, 60), 1, 20).Draw(t, "requests")
		expected := initial
		for _, qty := range requests {
			svc.Deduct(context.Background(), []Adjustment{{BundleID: id, Quantity: qty}}, orderRef)
			expected -= qty
			if expected < 0 {
				expected = 0
			}

			got := *store.get(id)
			if got < 0 {
				t.Fatalf("stock went negative: %d", got)
			}
			if got != expected {
				t.Fatalf("stock %d, want %d", got, expected)
			}
		}
	})
}

func TestDeduct_UnlimitedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newMemoryStore()
		id := uuid.New()
		store.set(id, nil)
		svc := NewService(store, logger.Discard())

		qty := rapid.IntRange(1, 1_000_000).Draw(t, "qty")
		result := svc.Deduct(context.Background(), []Adjustment{{BundleID: id, Quantity: qty}}, orderRef)

		if !result.Success || store.get(id) != nil {
			t.Fatalf("unlimited bundle changed: success=%v stock=%v", result.Success, store.get(id))
		}
	})
}
