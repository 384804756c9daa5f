package trigger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"auction_watcher/internal/domain"
)

// WatchChangedMessage is published on every local watch-list edit.
type WatchChangedMessage struct {
	Origin         string    `json:"origin"`
	SearchWords    []string  `json:"search_words"`
	BlacklistedIDs []string  `json:"blacklisted_ids"`
	Timestamp      time.Time `json:"timestamp"`
}

// NATSBridge shares watch-list edits between processes. Messages published by
// this bridge are ignored on receipt.
type NATSBridge struct {
	conn     *nats.Conn
	subject  string
	origin   string
	onRemote func(domain.WatchConfiguration)
	logger   *slog.Logger

	sub *nats.Subscription
}

func NewNATSBridge(conn *nats.Conn, subject string, onRemote func(domain.WatchConfiguration), logger *slog.Logger) *NATSBridge {
	return &NATSBridge{
		conn:     conn,
		subject:  subject,
		origin:   uuid.NewString(),
		onRemote: onRemote,
		logger:   logger.With("component", "nats_bridge"),
	}
}

func (b *NATSBridge) Start() error {
	sub, err := b.conn.Subscribe(b.subject, b.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.subject, err)
	}
	b.sub = sub

	b.logger.Info("listening for watch-list changes", "subject", b.subject, "origin", b.origin)
	return nil
}

// Announce publishes cfg as a local change. Failures are logged only.
func (b *NATSBridge) Announce(cfg domain.WatchConfiguration) {
	data, err := json.Marshal(WatchChangedMessage{
		Origin:         b.origin,
		SearchWords:    cfg.SearchTerms,
		BlacklistedIDs: cfg.Blacklist,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error("failed to encode watch change", "error", err)
		return
	}

	if err := b.conn.Publish(b.subject, data); err != nil {
		b.logger.Warn("failed to announce watch change", "error", err)
	}
}

func (b *NATSBridge) Close() {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Warn("failed to unsubscribe", "error", err)
		}
	}
}

func (b *NATSBridge) handle(msg *nats.Msg) {
	var message WatchChangedMessage
	if err := json.Unmarshal(msg.Data, &message); err != nil {
		b.logger.Warn("dropping malformed watch change", "error", err)
		return
	}
	if message.Origin == b.origin {
		return
	}

	b.logger.Info("remote watch-list change", "origin", message.Origin, "search_words", message.SearchWords)
	b.onRemote(domain.WatchConfiguration{
		SearchTerms: message.SearchWords,
		Blacklist:   message.BlacklistedIDs,
	})
}
