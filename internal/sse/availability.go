package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ms-registration/internal/registration/quota"
)

// AvailabilityUpdate is pushed to stream subscribers after a registration
// changes the remaining seats of an event.
type AvailabilityUpdate struct {
	EventID string               `json:"event_id"`
	Tiers   []quota.Availability `json:"tiers"`
	At      time.Time            `json:"at"`
}

// AvailabilityEmitter fans availability updates out to per-event subscribers.
type AvailabilityEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan AvailabilityUpdate
}

func NewAvailabilityEmitter() *AvailabilityEmitter {
	return &AvailabilityEmitter{clients: make(map[string][]chan AvailabilityUpdate)}
}

// Subscribe registers a client until ctx is done, then closes its channel.
func (e *AvailabilityEmitter) Subscribe(ctx context.Context, eventID string) <-chan AvailabilityUpdate {
	ch := make(chan AvailabilityUpdate, 10)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()
	return ch
}

// Emit never blocks: a subscriber with a full buffer misses the update.
func (e *AvailabilityEmitter) Emit(update AvailabilityUpdate) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[update.EventID] {
		select {
		case ch <- update:
		default:
		}
	}
}

func (e *AvailabilityEmitter) remove(eventID string, ch chan AvailabilityUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

func (e *AvailabilityEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}

// Stream writes the initial snapshot and every later update as SSE frames
// until the client goes away.
func (e *AvailabilityEmitter) Stream(w http.ResponseWriter, r *http.Request, initial AvailabilityUpdate, heartbeat time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}
	// the server write timeout would otherwise cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates := e.Subscribe(r.Context(), initial.EventID)
	if err := writeFrame(w, initial); err != nil {
		return err
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return nil
		case update, open := <-updates:
			if !open {
				return nil
			}
			if err := writeFrame(w, update); err != nil {
				return err
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, update AvailabilityUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: availability\ndata: %s\n\n", body)
	return err
}
