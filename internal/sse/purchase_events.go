package sse

import (
	"context"
	"sync"

	"ms-invites/internal/models"
)

// PurchaseEventEmitter manages SSE connections and broadcasting for
// finalized purchases, keyed by the buying user.
type PurchaseEventEmitter struct {
	userClients     map[string][]chan models.PurchaseRecord
	userClientMutex sync.RWMutex
}

func NewPurchaseEventEmitter() *PurchaseEventEmitter {
	return &PurchaseEventEmitter{
		userClients: make(map[string][]chan models.PurchaseRecord),
	}
}

// SubscribeToUser adds a client to the user's purchase stream. The channel
// is closed and removed when ctx is cancelled.
func (e *PurchaseEventEmitter) SubscribeToUser(ctx context.Context, userID string) chan models.PurchaseRecord {
	clientChan := make(chan models.PurchaseRecord, 10)

	e.userClientMutex.Lock()
	e.userClients[userID] = append(e.userClients[userID], clientChan)
	e.userClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeUserClient(userID, clientChan)
	}()

	return clientChan
}

// NotifyPurchase broadcasts a finalized purchase to the owner's open
// streams. Sends are non-blocking; a slow client misses the push and falls
// back to the verify-session poll.
func (e *PurchaseEventEmitter) NotifyPurchase(userID string, record models.PurchaseRecord) {
	e.userClientMutex.RLock()
	clients := e.userClients[userID]
	e.userClientMutex.RUnlock()

	for _, clientChan := range clients {
		select {
		case clientChan <- record:
		default:
		}
	}
}

func (e *PurchaseEventEmitter) removeUserClient(userID string, clientChan chan models.PurchaseRecord) {
	e.userClientMutex.Lock()
	defer e.userClientMutex.Unlock()

	clients := e.userClients[userID]
	for i, ch := range clients {
		if ch == clientChan {
			e.userClients[userID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.userClients[userID]) == 0 {
		delete(e.userClients, userID)
	}
}

// ClientCount returns how many streams a user currently has open.
func (e *PurchaseEventEmitter) ClientCount(userID string) int {
	e.userClientMutex.RLock()
	defer e.userClientMutex.RUnlock()
	return len(e.userClients[userID])
}
