package sse

import (
	"context"
	"testing"
	"time"

	"ms-invites/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyPurchaseReachesSubscriber(t *testing.T) {
	emitter := NewPurchaseEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := emitter.SubscribeToUser(ctx, "user-1")
	require.Equal(t, 1, emitter.ClientCount("user-1"))

	emitter.NotifyPurchase("user-1", models.PurchaseRecord{CheckoutSessionID: "cs_1"})

	select {
	case record := <-ch:
		assert.Equal(t, "cs_1", record.CheckoutSessionID)
	case <-time.After(time.Second):
		t.Fatal("expected a purchase push")
	}
}

func TestNotifyPurchaseOnlyTargetsOwner(t *testing.T) {
	emitter := NewPurchaseEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other := emitter.SubscribeToUser(ctx, "user-2")

	emitter.NotifyPurchase("user-1", models.PurchaseRecord{CheckoutSessionID: "cs_1"})

	select {
	case <-other:
		t.Fatal("user-2 received user-1's purchase")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeCleanupOnContextCancel(t *testing.T) {
	emitter := NewPurchaseEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := emitter.SubscribeToUser(ctx, "user-1")
	cancel()

	require.Eventually(t, func() bool {
		return emitter.ClientCount("user-1") == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)
}

func TestNotifyPurchaseDoesNotBlockOnFullBuffer(t *testing.T) {
	emitter := NewPurchaseEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitter.SubscribeToUser(ctx, "user-1")

	// More pushes than the channel buffers; the extras are dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			emitter.NotifyPurchase("user-1", models.PurchaseRecord{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyPurchase blocked on a full client buffer")
	}
}
