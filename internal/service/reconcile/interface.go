package reconcile

import (
	"context"

	"payment-mail-reconciler-go/internal/mailbox"
)

//go:generate mockgen -destination=mocks/mock_mailbox.go -package=mocks -source=interface.go

// Mailbox is the source of unread notifications.
type Mailbox interface {
	FetchUnread(ctx context.Context) (*mailbox.FetchResult, error)
	MarkRead(ctx context.Context, accountID string, messageIDs ...string) error
}
