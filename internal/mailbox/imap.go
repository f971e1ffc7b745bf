package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

const defaultFolder = "INBOX"

// imapSource implements Source over an authenticated IMAP session
type imapSource struct {
	client *client.Client
	folder string
}

func dialIMAP(acct Account, timeout time.Duration) (*imapSource, error) {
	port := acct.Port
	if port == 0 {
		port = 993
		if !acct.TLS {
			port = 143
		}
	}
	addr := net.JoinHostPort(acct.Host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	var (
		c   *client.Client
		err error
	)
	if acct.TLS {
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: acct.Host})
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	c.Timeout = timeout

	if err := c.Login(acct.Username, acct.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	folder := acct.Folder
	if folder == "" {
		folder = defaultFolder
	}
	return &imapSource{client: c, folder: folder}, nil
}

// FetchUnread returns unseen messages from any of senders. Bodies are read
// with BODY.PEEK so fetching never sets \Seen.
func (s *imapSource) FetchUnread(ctx context.Context, senders []string) ([]FetchedEmail, error) {
	if _, err := s.client.Select(s.folder, false); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", s.folder, err)
	}

	uids, err := s.client.UidSearch(unreadFromCriteria(senders))
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(uids) == 0 {
		return []FetchedEmail{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	emails := make([]FetchedEmail, 0, len(uids))
	for msg := range messages {
		email, err := toFetchedEmail(msg, section)
		if err != nil {
			logrus.Warnf("Failed to read IMAP message %d: %v", msg.Uid, err)
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return emails, nil
}

// MarkRead adds \Seen to every given UID with one UID STORE.
func (s *imapSource) MarkRead(ctx context.Context, messageIDs ...string) error {
	seqset, err := uidSet(messageIDs)
	if err != nil {
		return err
	}
	if seqset.Empty() {
		return nil
	}
	if _, err := s.client.Select(s.folder, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", s.folder, err)
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to flag %d message(s) seen: %w", len(messageIDs), err)
	}
	return nil
}

func uidSet(messageIDs []string) (*imap.SeqSet, error) {
	seqset := new(imap.SeqSet)
	for _, id := range messageIDs {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil || uid == 0 {
			return nil, fmt.Errorf("invalid IMAP uid %q", id)
		}
		seqset.AddNum(uint32(uid))
	}
	return seqset, nil
}

// Close logs out of the IMAP server
func (s *imapSource) Close() error {
	return s.client.Logout()
}

// unreadFromCriteria builds UNSEEN (FROM a OR FROM b OR ...).
func unreadFromCriteria(senders []string) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	from := fromAny(senders)
	criteria.Header = from.Header
	criteria.Or = from.Or
	return criteria
}

func fromAny(senders []string) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	switch len(senders) {
	case 0:
	case 1:
		c.Header.Add("From", senders[0])
	default:
		c.Or = [][2]*imap.SearchCriteria{{fromAny(senders[:1]), fromAny(senders[1:])}}
	}
	return c
}

func toFetchedEmail(msg *imap.Message, section *imap.BodySectionName) (FetchedEmail, error) {
	email := FetchedEmail{
		MessageID:  strconv.FormatUint(uint64(msg.Uid), 10),
		ReceivedAt: msg.InternalDate,
	}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			email.From = msg.Envelope.From[0].Address()
		}
		if email.ReceivedAt.IsZero() {
			email.ReceivedAt = msg.Envelope.Date
		}
	}

	r := msg.GetBody(section)
	if r == nil {
		return email, fmt.Errorf("server returned no body")
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return email, fmt.Errorf("failed to read body: %w", err)
	}
	email.Raw = raw
	return email, nil
}
