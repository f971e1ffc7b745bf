package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-mail-reconciler-go/internal/model"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := New(map[string]string{
		"venmo@venmo.com":       "venmo",
		"cash@square.com":       "cash_app",
		"no-reply@zellepay.com": "zelle",
		"service@paypal.com":    "paypal",
	}, time.UTC)
	require.NoError(t, err)
	return p
}

func rawEmail(headers map[string]string, body string) []byte {
	var b strings.Builder
	for _, k := range []string{"From", "Subject", "Date", "MIME-Version", "Content-Type"} {
		if v, ok := headers[k]; ok {
			b.WriteString(k + ": " + v + "\r\n")
		}
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func TestParseVenmo(t *testing.T) {
	p := newTestParser(t)
	raw := rawEmail(map[string]string{
		"From":         "Venmo <venmo@venmo.com>",
		"Subject":      "Jane Doe paid you $1,200.00",
		"Date":         "Fri, 01 Mar 2024 10:00:00 +0000",
		"Content-Type": "text/plain; charset=utf-8",
	}, "Jane Doe paid you $1,200.00\nNote: March rent\nDate: Mar 1, 2024 at 9:15 AM\nTransaction ID: 3998877665544\n")

	res := p.Parse("Venmo <venmo@venmo.com>", raw, time.Time{})
	require.Equal(t, OutcomeParsed, res.Outcome, res.Reason)

	pp := res.Payment
	assert.True(t, decimal.RequireFromString("1200.00").Equal(pp.Amount))
	assert.Equal(t, model.MethodVenmo, pp.Method)
	assert.Equal(t, "Jane Doe", pp.PayerName)
	assert.Equal(t, "March rent", pp.Note)
	assert.Equal(t, "3998877665544", pp.ExternalID)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC), pp.Timestamp)
}

func TestParseCashAppHTMLOnly(t *testing.T) {
	p := newTestParser(t)
	raw := rawEmail(map[string]string{
		"From":         "cash@square.com",
		"Subject":      "Cash App payment received",
		"Date":         "Sat, 02 Mar 2024 12:30:00 +0000",
		"Content-Type": "text/html; charset=utf-8",
	}, "<html><body><p>John Smith sent you $850</p><p>For: rent &amp; parking</p><p>Identifier #D7XQ2PK</p></body></html>")

	res := p.Parse("cash@square.com", raw, time.Time{})
	require.Equal(t, OutcomeParsed, res.Outcome, res.Reason)
	assert.Equal(t, model.MethodCashApp, res.Payment.Method)
	assert.Equal(t, "John Smith", res.Payment.PayerName)
	assert.Equal(t, "rent & parking", res.Payment.Note)
	assert.Equal(t, "D7XQ2PK", res.Payment.ExternalID)
	assert.True(t, decimal.NewFromInt(850).Equal(res.Payment.Amount))
	assert.Equal(t, time.Date(2024, 3, 2, 12, 30, 0, 0, time.UTC), res.Payment.Timestamp.UTC())
}

func TestParseZelleWithoutReferenceHashesContent(t *testing.T) {
	p := newTestParser(t)
	body := "--b1\n" +
		"Content-Type: text/plain; charset=utf-8\n\n" +
		"JANE DOE sent you money.\nMemo: rent march\n" +
		"--b1\n" +
		"Content-Type: text/html; charset=utf-8\n\n" +
		"<p>ignored</p>\n" +
		"--b1--\n"
	headers := map[string]string{
		"From":         "no-reply@zellepay.com",
		"Subject":      "You received $1,200.00 from JANE DOE",
		"Date":         "Mon, 04 Mar 2024 08:00:00 -0500",
		"MIME-Version": "1.0",
		"Content-Type": `multipart/alternative; boundary="b1"`,
	}
	raw := rawEmail(headers, body)

	first := p.Parse("no-reply@zellepay.com", raw, time.Now())
	require.Equal(t, OutcomeParsed, first.Outcome, first.Reason)
	assert.Equal(t, model.MethodZelle, first.Payment.Method)
	assert.Equal(t, "JANE DOE", first.Payment.PayerName)
	assert.Equal(t, "rent march", first.Payment.Note)
	assert.True(t, strings.HasPrefix(first.Payment.ExternalID, "h:"))
	assert.Len(t, first.Payment.ExternalID, 34)

	again := p.Parse("no-reply@zellepay.com", raw, time.Now().Add(time.Hour))
	require.Equal(t, OutcomeParsed, again.Outcome)
	assert.Equal(t, first.Payment.ExternalID, again.Payment.ExternalID)

	headers["Subject"] = "You received $1,200.00 from JANE DOE (2)"
	other := p.Parse("no-reply@zellepay.com", rawEmail(headers, body), time.Now())
	require.Equal(t, OutcomeParsed, other.Outcome)
	assert.NotEqual(t, first.Payment.ExternalID, other.Payment.ExternalID)
}

func TestParsePayPalFallsBackToReceiptTime(t *testing.T) {
	p := newTestParser(t)
	received := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	raw := rawEmail(map[string]string{
		"From":    "service@paypal.com",
		"Subject": "You've got money",
	}, "Hello,\nMaria Lopez sent you $100.00 USD\nTransaction ID: 7AB12345CD678901E\n")

	res := p.Parse("service@paypal.com", raw, received)
	require.Equal(t, OutcomeParsed, res.Outcome, res.Reason)
	assert.Equal(t, "Maria Lopez", res.Payment.PayerName)
	assert.Equal(t, "7AB12345CD678901E", res.Payment.ExternalID)
	assert.Equal(t, received, res.Payment.Timestamp)
}

func TestParseBodyDateUsesLedgerZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	p, err := New(map[string]string{"venmo@venmo.com": "venmo"}, ny)
	require.NoError(t, err)

	raw := rawEmail(map[string]string{
		"From":    "venmo@venmo.com",
		"Subject": "Jane Doe paid you $1,200.00",
		"Date":    "Fri, 01 Mar 2024 15:00:00 +0000",
	}, "Jane Doe paid you $1,200.00\nDate: Mar 1, 2024\nTransaction ID: 3998877665545\n")

	res := p.Parse("venmo@venmo.com", raw, time.Time{})
	require.Equal(t, OutcomeParsed, res.Outcome, res.Reason)
	assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, ny).Equal(res.Payment.Timestamp), res.Payment.Timestamp.String())
	assert.Equal(t, model.Period("2024-03"), model.PeriodOf(res.Payment.Timestamp, ny))
}

func TestParseRejections(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name    string
		from    string
		subject string
		body    string
		outcome Outcome
	}{
		{
			name:    "unknown sender",
			from:    "friend@example.com",
			subject: "Jane Doe paid you $10.00",
			body:    "Jane Doe paid you $10.00",
			outcome: OutcomeNotRecognized,
		},
		{
			name:    "outgoing payment",
			from:    "service@paypal.com",
			subject: "Receipt for your payment",
			body:    "You sent $20.00 USD to Bob",
			outcome: OutcomeNotRecognized,
		},
		{
			name:    "more than two decimal places",
			from:    "venmo@venmo.com",
			subject: "Jane Doe paid you $1,200.005",
			body:    "Jane Doe paid you $1,200.005",
			outcome: OutcomeMalformed,
		},
		{
			name:    "zero amount",
			from:    "venmo@venmo.com",
			subject: "Jane Doe paid you $0.00",
			body:    "Jane Doe paid you $0.00",
			outcome: OutcomeMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawEmail(map[string]string{
				"From":    tt.from,
				"Subject": tt.subject,
				"Date":    "Fri, 01 Mar 2024 10:00:00 +0000",
			}, tt.body)
			res := p.Parse(tt.from, raw, time.Now())
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Nil(t, res.Payment)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestNewRejectsUnknownProcessor(t *testing.T) {
	_, err := New(map[string]string{"pay@example.com": "bitcoin"}, nil)
	assert.Error(t, err)
}

func TestSendersAreNormalizedAndSorted(t *testing.T) {
	p, err := New(map[string]string{
		"Venmo <VENMO@venmo.com>": "venmo",
		"cash@square.com":         "CASH_APP",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cash@square.com", "venmo@venmo.com"}, p.Senders())
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("1,200.5")
	require.NoError(t, err)
	assert.Equal(t, "1200.50", d.StringFixed(2))

	_, err = parseAmount("1,200.005")
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = parseAmount("1.200.00")
	assert.Error(t, err)

	d, err = parseAmount("850.")
	require.NoError(t, err, "sentence-ending period")
	assert.Equal(t, "850.00", d.StringFixed(2))
}

func TestHTMLToPlainText(t *testing.T) {
	in := "<style>p{color:red}</style><div>Line&nbsp;one</div><br/><span>two</span>   <b>parts</b>"
	assert.Equal(t, "Line one\ntwo parts", htmlToPlainText(in))
}
