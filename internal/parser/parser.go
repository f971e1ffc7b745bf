// Package parser turns raw payment-processor notification emails into
// canonical payment candidates.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment-mail-reconciler-go/internal/model"
)

// Outcome classifies the result of parsing one email.
type Outcome string

const (
	OutcomeParsed        Outcome = "parsed"
	OutcomeNotRecognized Outcome = "not_recognized"
	OutcomeMalformed     Outcome = "malformed"
)

// ParsedPayment is a payment candidate extracted from a notification email.
type ParsedPayment struct {
	Amount     decimal.Decimal
	Method     model.PaymentMethod
	PayerName  string
	Timestamp  time.Time
	ExternalID string
	Note       string
	Sender     string
	Subject    string
}

// Result is the outcome of Parse. Payment is set only for OutcomeParsed.
type Result struct {
	Outcome Outcome
	Reason  string
	Payment *ParsedPayment
}

// Parser dispatches emails to a processor template by sender address.
type Parser struct {
	bySender map[string]*template
	loc      *time.Location
}

// New builds a parser from a sender address to processor mapping. Body dates
// carry no zone and are read as wall-clock time in loc; nil means UTC.
func New(senders map[string]string, loc *time.Location) (*Parser, error) {
	if loc == nil {
		loc = time.UTC
	}
	p := &Parser{bySender: make(map[string]*template, len(senders)), loc: loc}
	for addr, processor := range senders {
		tmpl, ok := templates[model.PaymentMethod(strings.ToLower(strings.TrimSpace(processor)))]
		if !ok {
			return nil, fmt.Errorf("unknown processor %q for sender %s", processor, addr)
		}
		p.bySender[normalizeSender(addr)] = tmpl
	}
	return p, nil
}

// Senders returns the sorted sender allowlist.
func (p *Parser) Senders() []string {
	out := make([]string, 0, len(p.bySender))
	for addr := range p.bySender {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Parse extracts a payment from raw message bytes sent by from. receivedAt
// is used as the transaction time when neither the body nor the Date header
// carries one.
func (p *Parser) Parse(from string, raw []byte, receivedAt time.Time) Result {
	sender := normalizeSender(from)
	tmpl, ok := p.bySender[sender]
	if !ok {
		return Result{Outcome: OutcomeNotRecognized, Reason: "sender is not a known payment processor"}
	}

	msg, err := readMessage(raw)
	if err != nil {
		return Result{Outcome: OutcomeMalformed, Reason: fmt.Sprintf("unreadable message: %v", err)}
	}

	var payer, rawAmount string
	for _, re := range tmpl.incoming {
		for _, text := range []string{msg.subject, msg.body} {
			if m := re.FindStringSubmatch(text); m != nil {
				rawAmount = m[re.SubexpIndex("amount")]
				if i := re.SubexpIndex("payer"); i >= 0 {
					payer = m[i]
				}
				break
			}
		}
		if rawAmount != "" {
			break
		}
	}
	if rawAmount == "" {
		return Result{Outcome: OutcomeNotRecognized, Reason: "no incoming payment in message"}
	}

	amount, err := parseAmount(rawAmount)
	if err != nil {
		return Result{Outcome: OutcomeMalformed, Reason: err.Error()}
	}

	ts := parseDate(tmpl, msg.body, p.loc)
	if ts.IsZero() {
		ts = msg.date
	}
	if ts.IsZero() {
		ts = receivedAt
	}
	if ts.IsZero() {
		return Result{Outcome: OutcomeMalformed, Reason: "no transaction timestamp"}
	}

	pp := &ParsedPayment{
		Amount:    amount,
		Method:    tmpl.method,
		PayerName: cleanName(payer),
		Timestamp: ts,
		Note:      strings.TrimSpace(group(tmpl.note, msg.body, "note")),
		Sender:    sender,
		Subject:   msg.subject,
	}
	if ref := strings.TrimSpace(group(tmpl.reference, msg.body, "ref")); ref != "" {
		pp.ExternalID = ref
	} else {
		pp.ExternalID = contentID(sender, amount, ts, msg.subject)
	}
	return Result{Outcome: OutcomeParsed, Payment: pp}
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimRight(s, ".,")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if frac := s[i+1:]; len(frac) > 2 || strings.ContainsAny(frac, ".,") {
			return decimal.Zero, fmt.Errorf("%w: %q has more than two decimal places", model.ErrInvalidAmount, s)
		}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrInvalidAmount, d.String())
	}
	return d.Round(2), nil
}

func parseDate(tmpl *template, body string, loc *time.Location) time.Time {
	s := strings.TrimSpace(group(tmpl.date, body, "date"))
	if s == "" {
		return time.Time{}
	}
	for _, layout := range tmpl.dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	logrus.Debugf("Unparseable %s date %q", tmpl.method, s)
	return time.Time{}
}

// contentID derives a stable id for notifications without a processor
// reference.
func contentID(sender string, amount decimal.Decimal, ts time.Time, subject string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		sender,
		amount.StringFixed(2),
		ts.UTC().Format(time.RFC3339),
		subject,
	}, "|")))
	return "h:" + hex.EncodeToString(sum[:])[:32]
}

func normalizeSender(from string) string {
	from = strings.TrimSpace(from)
	if strings.Contains(from, "<") {
		if addr, err := mail.ParseAddress(from); err == nil {
			from = addr.Address
		}
	}
	return strings.ToLower(from)
}

func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " .,:;!\"'")
}

type message struct {
	subject string
	date    time.Time
	body    string
}

func readMessage(raw []byte) (*message, error) {
	e, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, err
	}

	h := mail.Header{Header: e.Header}
	msg := &message{}
	if msg.subject, err = h.Subject(); err != nil {
		msg.subject = h.Get("Subject")
	}
	if d, err := h.Date(); err == nil {
		msg.date = d
	}

	var plain, html string
	if err := collectText(e, &plain, &html); err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(plain) != "":
		msg.body = strings.ReplaceAll(plain, "\r\n", "\n")
	case html != "":
		msg.body = htmlToPlainText(html)
	}
	return msg, nil
}

// collectText keeps the first text/plain and text/html parts found.
func collectText(e *gomessage.Entity, plain, html *string) error {
	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil && !gomessage.IsUnknownCharset(err) {
				return fmt.Errorf("failed to read part: %w", err)
			}
			if err := collectText(part, plain, html); err != nil {
				return err
			}
		}
	}

	ct, _, _ := e.Header.ContentType()
	if ct == "" {
		ct = "text/plain"
	}
	if ct != "text/plain" && ct != "text/html" {
		return nil
	}
	body, err := io.ReadAll(e.Body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if ct == "text/plain" && *plain == "" {
		*plain = string(body)
	}
	if ct == "text/html" && *html == "" {
		*html = string(body)
	}
	return nil
}
