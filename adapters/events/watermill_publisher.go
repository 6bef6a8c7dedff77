package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// LoginEvent is published after a wallet login succeeded
type LoginEvent struct {
	Address   string    `json:"address"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// LoginFailedEvent is published after a wallet login was rejected.
// The reason never reaches the client; this is where it goes instead.
type LoginFailedEvent struct {
	Address string             `json:"address"`
	Reason  core.FailureReason `json:"reason"`
	At      time.Time          `json:"at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address string    `json:"address"`
	TokenID string    `json:"token_id"`
	At      time.Time `json:"at"`
}

// Topics names the topics events are published to
type Topics struct {
	Login       string
	LoginFailed string
	Logout      string
}

// DefaultTopics derives the topic names from a prefix such as "walletauth"
func DefaultTopics(prefix string) Topics {
	return Topics{
		Login:       prefix + ".login",
		LoginFailed: prefix + ".login_failed",
		Logout:      prefix + ".logout",
	}
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topics    Topics
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topics Topics) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topics:    topics,
		now:       time.Now,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, address string, sessionID string) error {
	return p.publish(ctx, p.topics.Login, sessionID, LoginEvent{
		Address:   address,
		SessionID: sessionID,
		At:        p.now(),
	})
}

// PublishLoginFailure publishes a rejected login with its reason
func (p *WatermillPublisher) PublishLoginFailure(ctx context.Context, address string, reason core.FailureReason) error {
	return p.publish(ctx, p.topics.LoginFailed, watermill.NewUUID(), LoginFailedEvent{
		Address: address,
		Reason:  reason,
		At:      p.now(),
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	return p.publish(ctx, p.topics.Logout, tokenID, LogoutEvent{
		Address: address,
		TokenID: tokenID,
		At:      p.now(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

var _ ports.EventPublisher = NopPublisher{}

func (NopPublisher) PublishLogin(context.Context, string, string) error { return nil }

func (NopPublisher) PublishLoginFailure(context.Context, string, core.FailureReason) error {
	return nil
}

func (NopPublisher) PublishLogout(context.Context, string, string) error { return nil }
