package parser

import (
	"regexp"

	"payment-mail-reconciler-go/internal/model"
)

// template describes the fixed notification layout of one processor.
// incoming must capture "amount" and may capture "payer"; reference, note
// and date capture the group of the same name.
type template struct {
	method      model.PaymentMethod
	incoming    []*regexp.Regexp
	reference   *regexp.Regexp
	note        *regexp.Regexp
	date        *regexp.Regexp
	dateLayouts []string
}

// amountPattern captures greedily; parseAmount rejects what is not a
// two-decimal currency amount.
const amountPattern = `\$\s?(?P<amount>[0-9][0-9.,]*)`

var commonDateLayouts = []string{
	"Jan 2, 2006 at 3:04 PM",
	"Jan 2, 2006 at 3:04PM",
	"January 2, 2006 at 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
	"2006-01-02",
}

var templates = map[model.PaymentMethod]*template{
	model.MethodVenmo: {
		method: model.MethodVenmo,
		incoming: []*regexp.Regexp{
			regexp.MustCompile(`(?im)^\s*(?P<payer>[^\r\n$]+?) paid you ` + amountPattern),
		},
		reference:   regexp.MustCompile(`(?i)(?:transaction|payment) id[:#\s]*(?P<ref>[0-9]{6,})`),
		note:        regexp.MustCompile(`(?im)^\s*note:[ \t]*(?P<note>[^\r\n]+)$`),
		date:        regexp.MustCompile(`(?im)^\s*date:[ \t]*(?P<date>[^\r\n]+?)[ \t]*$`),
		dateLayouts: commonDateLayouts,
	},
	model.MethodCashApp: {
		method: model.MethodCashApp,
		incoming: []*regexp.Regexp{
			regexp.MustCompile(`(?im)^\s*(?P<payer>[^\r\n$]+?) sent you ` + amountPattern),
		},
		reference:   regexp.MustCompile(`(?i)identifier[:\s]*#?(?P<ref>[A-Z0-9]{5,})`),
		note:        regexp.MustCompile(`(?im)^\s*for:?[ \t]+(?P<note>[^\r\n]+)$`),
		date:        regexp.MustCompile(`(?im)^\s*date:[ \t]*(?P<date>[^\r\n]+?)[ \t]*$`),
		dateLayouts: commonDateLayouts,
	},
	model.MethodZelle: {
		method: model.MethodZelle,
		incoming: []*regexp.Regexp{
			regexp.MustCompile(`(?i)you received ` + amountPattern + ` from (?P<payer>[^\r\n.]+)`),
			regexp.MustCompile(`(?im)^\s*(?P<payer>[^\r\n$]+?) sent you ` + amountPattern),
		},
		reference:   regexp.MustCompile(`(?i)confirmation(?: number| code)?[:#\s]*(?P<ref>[A-Z0-9][A-Z0-9-]{5,})`),
		note:        regexp.MustCompile(`(?im)^\s*memo:[ \t]*(?P<note>[^\r\n]+)$`),
		date:        regexp.MustCompile(`(?im)^\s*(?:date|sent on):[ \t]*(?P<date>[^\r\n]+?)[ \t]*$`),
		dateLayouts: commonDateLayouts,
	},
	model.MethodPayPal: {
		method: model.MethodPayPal,
		incoming: []*regexp.Regexp{
			regexp.MustCompile(`(?im)^\s*(?P<payer>[^\r\n$]+?) sent you ` + amountPattern),
		},
		reference:   regexp.MustCompile(`(?i)transaction id[:\s]*(?P<ref>[A-Z0-9]{12,20})`),
		note:        regexp.MustCompile(`(?im)^\s*note from [^\r\n:]+:[ \t]*(?P<note>[^\r\n]+)$`),
		date:        regexp.MustCompile(`(?im)^\s*transaction date:[ \t]*(?P<date>[^\r\n]+?)[ \t]*$`),
		dateLayouts: commonDateLayouts,
	},
}

// group returns the named capture of re in s, or "".
func group(re *regexp.Regexp, s, name string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if i := re.SubexpIndex(name); i >= 0 && i < len(m) {
		return m[i]
	}
	return ""
}
