package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// gmailSource implements Source using the Gmail API
type gmailSource struct {
	service *gmail.Service
	user    string
}

func dialGmail(ctx context.Context, acct Account) (*gmailSource, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     acct.ClientID,
		ClientSecret: acct.ClientSecret,
		Scopes:       []string{gmail.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: acct.RefreshToken})

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	user := acct.Username
	if user == "" {
		user = "me"
	}
	return &gmailSource{service: service, user: user}, nil
}

// FetchUnread lists unread messages from senders and downloads them raw.
func (s *gmailSource) FetchUnread(ctx context.Context, senders []string) ([]FetchedEmail, error) {
	var emails []FetchedEmail

	call := s.service.Users.Messages.List(s.user).Q(gmailQuery(senders))
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			email, err := s.fetch(ctx, m.Id)
			if err != nil {
				logrus.Warnf("Failed to get Gmail message %s: %v", m.Id, err)
				continue
			}
			emails = append(emails, email)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return emails, nil
}

func (s *gmailSource) fetch(ctx context.Context, id string) (FetchedEmail, error) {
	msg, err := s.service.Users.Messages.Get(s.user, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return FetchedEmail{}, err
	}

	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return FetchedEmail{}, fmt.Errorf("failed to decode raw message: %w", err)
	}

	from, subject := envelopeOf(raw)
	return FetchedEmail{
		MessageID:  msg.Id,
		From:       from,
		Subject:    subject,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
		Raw:        raw,
	}, nil
}

// MarkRead removes the UNREAD label from messages in one batchModify call
func (s *gmailSource) MarkRead(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	req := &gmail.BatchModifyMessagesRequest{Ids: messageIDs, RemoveLabelIds: []string{"UNREAD"}}
	if err := s.service.Users.Messages.BatchModify(s.user, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to mark %d Gmail message(s) read: %w", len(messageIDs), err)
	}
	return nil
}

// Close is a no-op for the Gmail API
func (s *gmailSource) Close() error {
	return nil
}

// gmailQuery builds `is:unread from:(a OR b)`.
func gmailQuery(senders []string) string {
	return fmt.Sprintf("is:unread from:(%s)", strings.Join(senders, " OR "))
}

func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// envelopeOf reads the From address and Subject from raw message headers.
func envelopeOf(raw []byte) (string, string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return "", ""
	}
	defer mr.Close()

	var from string
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		from = addrs[0].Address
	}
	subject, _ := mr.Header.Subject()
	return from, subject
}
