package services

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// IntentStatusEvent what the websocket push carries on every status change
type IntentStatusEvent struct {
	IntentID      string `json:"intent_id"`
	Status        string `json:"status"`
	TxHash        string `json:"tx_hash,omitempty"`
	Confirmations uint64 `json:"confirmations,omitempty"`
	Required      uint64 `json:"confirmations_required,omitempty"`
	DonationID    string `json:"donation_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Subscriber one websocket subscription. gorilla/websocket permits a single
// concurrent writer per connection, so every write goes through Send.
type Subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send writes one event to the connection
func (s *Subscriber) Send(event *IntentStatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(event)
}

func (s *Subscriber) close() {
	s.conn.Close()
}

// PushService fans intent status changes out to websocket subscribers.
// Subscribers register per intent; slow or dead connections are dropped
// rather than allowed to stall the rest.
type PushService struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscriber]bool
}

// NewPushService creates a new push service
func NewPushService() *PushService {
	return &PushService{
		subscribers: make(map[string]map[*Subscriber]bool),
	}
}

// Subscribe registers a connection for one intent's status events and returns
// the handle all writes to that connection must go through
func (s *PushService) Subscribe(intentID string, conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{conn: conn}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers[intentID] == nil {
		s.subscribers[intentID] = make(map[*Subscriber]bool)
	}
	s.subscribers[intentID][sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (s *PushService) Unsubscribe(intentID string, sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subs, ok := s.subscribers[intentID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(s.subscribers, intentID)
		}
	}
}

// Broadcast sends a status event to every subscriber of the intent
func (s *PushService) Broadcast(event *IntentStatusEvent) {
	s.mu.Lock()
	subs := make([]*Subscriber, 0, len(s.subscribers[event.IntentID]))
	for sub := range s.subscribers[event.IntentID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Send(event); err != nil {
			log.Printf("⚠️ Dropping websocket subscriber for intent %s: %v", event.IntentID, err)
			s.Unsubscribe(event.IntentID, sub)
			sub.close()
		}
	}
}
