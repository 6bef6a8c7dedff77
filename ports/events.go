package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogin(ctx context.Context, address string, sessionID string) error
	PublishLoginFailure(ctx context.Context, address string, reason core.FailureReason) error
	PublishLogout(ctx context.Context, address string, tokenID string) error
}
