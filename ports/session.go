package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// SessionIssuer mints credentials for an address that has proven wallet ownership
type SessionIssuer interface {
	IssueSession(ctx context.Context, address string) (*core.SessionTokens, error)
}
