package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"donation-backend/internal/config"
	"donation-backend/internal/metrics"
)

// TxObservation a passive watcher sighting of a transaction touching a
// tracked deposit address. Observations are hints, never truth: every one
// still goes through full chain verification.
type TxObservation struct {
	NetworkID   string `json:"network_id"`
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash"`
	BlockHeight uint64 `json:"block_height"`
}

// NATSClient subscription client for the watcher observation feed
type NATSClient struct {
	conn          *nats.Conn
	subjectPrefix string
	subs          []*nats.Subscription
}

// NewNATSClient connects to the observation feed. Returns nil without error
// when the feed is disabled; callers treat a nil client as "manual
// verification only".
func NewNATSClient() (*NATSClient, error) {
	cfg := config.AppConfig.NATS
	if !cfg.Enabled || cfg.URL == "" {
		log.Println("ℹ️ NATS watcher feed disabled")
		return nil, nil
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reconnectWait := time.Duration(cfg.ReconnectWait) * time.Second
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(timeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			metrics.NATSConnectionStatus.Set(0)
			log.Printf("⚠️ NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			metrics.NATSConnectionStatus.Set(1)
			log.Printf("✅ NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			metrics.NATSConnectionStatus.Set(0)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	log.Printf("✅ NATS connected to %s", conn.ConnectedUrl())

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "watch"
	}

	return &NATSClient{
		conn:          conn,
		subjectPrefix: prefix,
	}, nil
}

// SubscribeObservations subscribes to the per-network observation subject.
// Malformed messages are counted and dropped.
func (c *NATSClient) SubscribeObservations(networkID string, handler func(*TxObservation)) error {
	subject := fmt.Sprintf("%s.%s.tx", c.subjectPrefix, networkID)

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var obs TxObservation
		if err := json.Unmarshal(msg.Data, &obs); err != nil {
			log.Printf("⚠️ Dropping malformed observation on %s: %v", subject, err)
			return
		}
		if obs.NetworkID == "" {
			obs.NetworkID = networkID
		}
		metrics.WatcherObservationsTotal.WithLabelValues(obs.NetworkID).Inc()
		handler(&obs)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.subs = append(c.subs, sub)
	log.Printf("✅ Subscribed to watcher feed %s", subject)
	return nil
}

// Close drains subscriptions and closes the connection
func (c *NATSClient) Close() {
	if c == nil || c.conn == nil {
		return
	}
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
	metrics.NATSConnectionStatus.Set(0)
}
