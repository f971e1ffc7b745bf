// Package mailbox reads unread payment notifications from configured mail
// accounts and flags them seen once the caller has persisted them.
package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Provider selects the protocol used to reach an account.
type Provider string

const (
	ProviderIMAP  Provider = "imap"
	ProviderGmail Provider = "gmail"
)

// Account holds connection settings for one mailbox
type Account struct {
	ID       string
	Provider Provider
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	Folder   string

	// Gmail API credentials
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// FetchedEmail is a raw message pulled from a mailbox. It is never persisted.
type FetchedEmail struct {
	AccountID  string
	MessageID  string // IMAP UID or Gmail message id
	From       string
	Subject    string
	ReceivedAt time.Time
	Raw        []byte
}

// Source is an open session against a single account.
type Source interface {
	FetchUnread(ctx context.Context, senders []string) ([]FetchedEmail, error)
	MarkRead(ctx context.Context, messageIDs ...string) error
	Close() error
}

// SourceFactory opens a Source for an account.
type SourceFactory func(ctx context.Context, acct Account, timeout time.Duration) (Source, error)

// AccountFailure records why an account contributed no emails.
type AccountFailure struct {
	AccountID string
	Err       error
}

// FetchResult is the merged output of one scan across all accounts.
type FetchResult struct {
	Emails   []FetchedEmail
	Failures []AccountFailure
}

// Options tunes a Client
type Options struct {
	Senders     []string
	Timeout     time.Duration
	Concurrency int
}

// Client scans a fixed set of accounts
type Client struct {
	accounts    []Account
	senders     []string
	timeout     time.Duration
	concurrency int
	open        SourceFactory
}

// NewClient creates a client over accounts. A nil factory uses OpenSource.
func NewClient(accounts []Account, opts Options, open SourceFactory) *Client {
	if open == nil {
		open = OpenSource
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	senders := make([]string, 0, len(opts.Senders))
	for _, s := range opts.Senders {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			senders = append(senders, s)
		}
	}

	return &Client{
		accounts:    accounts,
		senders:     senders,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		open:        open,
	}
}

// OpenSource dials an account using its configured provider.
func OpenSource(ctx context.Context, acct Account, timeout time.Duration) (Source, error) {
	switch acct.Provider {
	case "", ProviderIMAP:
		return dialIMAP(acct, timeout)
	case ProviderGmail:
		return dialGmail(ctx, acct)
	default:
		return nil, fmt.Errorf("unknown mailbox provider %q", acct.Provider)
	}
}

// Accounts returns the configured account ids.
func (c *Client) Accounts() []string {
	ids := make([]string, len(c.accounts))
	for i, a := range c.accounts {
		ids[i] = a.ID
	}
	return ids
}

// FetchUnread searches every account in parallel for unread messages from
// the sender allowlist. A failing account is logged and reported in
// Failures; it never aborts the others.
func (c *Client) FetchUnread(ctx context.Context) (*FetchResult, error) {
	result := &FetchResult{}
	if len(c.accounts) == 0 || len(c.senders) == 0 {
		return result, nil
	}

	perAccount := make([][]FetchedEmail, len(c.accounts))
	errs := make([]error, len(c.accounts))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i := range c.accounts {
		i := i
		g.Go(func() error {
			perAccount[i], errs[i] = c.fetchAccount(ctx, c.accounts[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, acct := range c.accounts {
		if errs[i] != nil {
			logrus.WithField("account", acct.ID).Errorf("Mailbox scan failed: %v", errs[i])
			result.Failures = append(result.Failures, AccountFailure{AccountID: acct.ID, Err: errs[i]})
			continue
		}
		logrus.WithField("account", acct.ID).Infof("Fetched %d unread payment emails", len(perAccount[i]))
		result.Emails = append(result.Emails, perAccount[i]...)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Client) fetchAccount(ctx context.Context, acct Account) ([]FetchedEmail, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var emails []FetchedEmail
	err := c.withSource(ctx, acct, func(src Source) error {
		var err error
		emails, err = src.FetchUnread(ctx, c.senders)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := range emails {
		emails[i].AccountID = acct.ID
	}
	return emails, nil
}

// MarkRead flags messages of one account seen over a single session. It is
// the only mutation made to a mailbox.
func (c *Client) MarkRead(ctx context.Context, accountID string, messageIDs ...string) error {
	acct, ok := c.account(accountID)
	if !ok {
		return fmt.Errorf("unknown mailbox account %q", accountID)
	}
	if len(messageIDs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.withSource(ctx, acct, func(src Source) error {
		return src.MarkRead(ctx, messageIDs...)
	})
}

// withSource opens a session, runs fn and closes the session. Protocol
// libraries that ignore ctx are abandoned when ctx expires.
func (c *Client) withSource(ctx context.Context, acct Account, fn func(Source) error) error {
	type opened struct {
		src Source
		err error
	}
	dial := make(chan opened, 1)
	go func() {
		src, err := c.open(ctx, acct, c.timeout)
		dial <- opened{src, err}
	}()

	var src Source
	select {
	case o := <-dial:
		if o.err != nil {
			return fmt.Errorf("failed to connect: %w", o.err)
		}
		src = o.src
	case <-ctx.Done():
		go func() {
			if o := <-dial; o.src != nil {
				o.src.Close()
			}
		}()
		return fmt.Errorf("connect: %w", ctx.Err())
	}

	done := make(chan error, 1)
	go func() { done <- fn(src) }()

	select {
	case err := <-done:
		if cerr := src.Close(); cerr != nil {
			logrus.WithField("account", acct.ID).Warnf("Failed to close mailbox session: %v", cerr)
		}
		return err
	case <-ctx.Done():
		go func() {
			<-done
			src.Close()
		}()
		return ctx.Err()
	}
}

func (c *Client) account(id string) (Account, bool) {
	for _, a := range c.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}
