package sse

import (
	"context"
	"sync"

	"travel-booking/internal/models"
)

// MarketEventEmitter fans marketplace changes out to connected SSE
// clients. Catalog events go to every subscriber (viewers filter by
// city on their side); booking events go only to the owning agent's
// subscribers. Delivery is best-effort, at-most-once: a slow client's
// full buffer drops the event rather than blocking the emitter.
type MarketEventEmitter struct {
	catalogClients []chan models.PackageEvent
	catalogMutex   sync.RWMutex

	agentClients map[string][]chan models.BookingEvent
	agentMutex   sync.RWMutex
}

func NewMarketEventEmitter() *MarketEventEmitter {
	return &MarketEventEmitter{
		agentClients: make(map[string][]chan models.BookingEvent),
	}
}

// SubscribeToCatalog adds a client to the catalog change stream until
// ctx is done.
func (e *MarketEventEmitter) SubscribeToCatalog(ctx context.Context) chan models.PackageEvent {
	clientChan := make(chan models.PackageEvent, 10)

	e.catalogMutex.Lock()
	e.catalogClients = append(e.catalogClients, clientChan)
	e.catalogMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeCatalogClient(clientChan)
	}()

	return clientChan
}

// SubscribeToAgent adds a client to the booking stream for one agent's
// packages until ctx is done.
func (e *MarketEventEmitter) SubscribeToAgent(ctx context.Context, agentID string) chan models.BookingEvent {
	clientChan := make(chan models.BookingEvent, 10)

	e.agentMutex.Lock()
	e.agentClients[agentID] = append(e.agentClients[agentID], clientChan)
	e.agentMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeAgentClient(agentID, clientChan)
	}()

	return clientChan
}

// EmitPackageEvent broadcasts a catalog change to all subscribers.
// Sends happen under the read lock: unsubscribe closes channels under
// the write lock, so no send can race a close. The sends never block,
// so holding the lock is cheap.
func (e *MarketEventEmitter) EmitPackageEvent(event models.PackageEvent) {
	e.catalogMutex.RLock()
	defer e.catalogMutex.RUnlock()

	for _, clientChan := range e.catalogClients {
		select {
		case clientChan <- event:
		default:
			// Buffer full, skip this client.
		}
	}
}

// EmitBookingEvent notifies the owning agent's subscribers.
func (e *MarketEventEmitter) EmitBookingEvent(event models.BookingEvent) {
	e.agentMutex.RLock()
	defer e.agentMutex.RUnlock()

	for _, clientChan := range e.agentClients[event.AgentID] {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *MarketEventEmitter) removeCatalogClient(clientChan chan models.PackageEvent) {
	e.catalogMutex.Lock()
	defer e.catalogMutex.Unlock()

	for i, ch := range e.catalogClients {
		if ch == clientChan {
			e.catalogClients = append(e.catalogClients[:i], e.catalogClients[i+1:]...)
			close(clientChan)
			break
		}
	}
}

func (e *MarketEventEmitter) removeAgentClient(agentID string, clientChan chan models.BookingEvent) {
	e.agentMutex.Lock()
	defer e.agentMutex.Unlock()

	clients := e.agentClients[agentID]
	for i, ch := range clients {
		if ch == clientChan {
			e.agentClients[agentID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.agentClients[agentID]) == 0 {
		delete(e.agentClients, agentID)
	}
}

// CatalogClientCount returns the number of connected catalog viewers.
func (e *MarketEventEmitter) CatalogClientCount() int {
	e.catalogMutex.RLock()
	defer e.catalogMutex.RUnlock()
	return len(e.catalogClients)
}

// AgentClientCount returns the number of clients watching one agent's
// bookings.
func (e *MarketEventEmitter) AgentClientCount(agentID string) int {
	e.agentMutex.RLock()
	defer e.agentMutex.RUnlock()
	return len(e.agentClients[agentID])
}
