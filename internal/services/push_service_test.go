package services_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"donation-backend/internal/services"
)

// watcher goroutines and donor-triggered verifications broadcast to the same
// connection; writes must come out one at a time
func TestBroadcastSerializesConcurrentWrites(t *testing.T) {
	push := services.NewPushService()
	upgrader := websocket.Upgrader{}
	ready := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		sub := push.Subscribe("intent-1", conn)
		if err := sub.Send(&services.IntentStatusEvent{IntentID: "intent-1", Status: "created"}); err != nil {
			t.Errorf("initial send: %v", err)
		}
		close(ready)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	<-ready

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			push.Broadcast(&services.IntentStatusEvent{IntentID: "intent-1", Status: "confirming"})
		}()
	}
	wg.Wait()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < writers+1; i++ {
		var event services.IntentStatusEvent
		if err := client.ReadJSON(&event); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if event.IntentID != "intent-1" {
			t.Fatalf("read %d: unexpected intent %s", i, event.IntentID)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	push := services.NewPushService()
	upgrader := websocket.Upgrader{}
	ready := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		sub := push.Subscribe("intent-2", conn)
		push.Unsubscribe("intent-2", sub)
		push.Broadcast(&services.IntentStatusEvent{IntentID: "intent-2", Status: "confirmed"})
		if err := sub.Send(&services.IntentStatusEvent{IntentID: "intent-2", Status: "done"}); err != nil {
			t.Errorf("send after unsubscribe: %v", err)
		}
		close(ready)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	<-ready

	// only the direct send arrives; the broadcast went to no one
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event services.IntentStatusEvent
	if err := client.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	if event.Status != "done" {
		t.Errorf("status = %s: broadcast reached an unsubscribed connection", event.Status)
	}
}
