package core

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Known checked-property names declared by the policy enclave.
const (
	PropertyMaxLeverage  = "MaxLeverage"
	PropertyAllowedPairs = "AllowedPairs"
	PropertyMaxOrderSize = "MaxOrderSize"
)

// ParsedProperty is one checked-property string split into its identifier and raw argument text.
//
// "MaxLeverage(5)" parses to {Name: "MaxLeverage", Args: "5", HasArgs: true}
// "KycVerified" parses to {Name: "KycVerified"}
type ParsedProperty struct {
	Name    string
	Args    string
	HasArgs bool
}

// ParseProperty parses a compact property string of the form Name or Name(args).
//
// The name is the full token before the first "(", so "MaxLeverageOverride(3)" never yields
// "MaxLeverage". Arguments are taken verbatim between the first "(" and the final ")";
// nested parentheses are not interpreted. A token with an opening "(" but no closing ")"
// is malformed and keeps the whole string as its name.
func ParseProperty(s string) ParsedProperty {
	s = strings.TrimSpace(s)

	open := strings.IndexByte(s, '(')
	if open < 0 {
		return ParsedProperty{Name: s}
	}
	if !strings.HasSuffix(s, ")") {
		return ParsedProperty{Name: s}
	}

	return ParsedProperty{
		Name:    strings.TrimSpace(s[:open]),
		Args:    s[open+1 : len(s)-1],
		HasArgs: true,
	}
}

// ParseProperties parses every entry of a checked-properties list, preserving order.
func ParseProperties(properties []string) []ParsedProperty {
	parsed := make([]ParsedProperty, 0, len(properties))
	for _, p := range properties {
		parsed = append(parsed, ParseProperty(p))
	}
	return parsed
}

// FindProperty returns the first property whose parsed name equals name exactly.
func FindProperty(properties []string, name string) (ParsedProperty, bool) {
	for _, p := range properties {
		parsed := ParseProperty(p)
		if parsed.Name == name {
			return parsed, true
		}
	}
	return ParsedProperty{}, false
}

// String reassembles the compact form.
func (p ParsedProperty) String() string {
	if !p.HasArgs {
		return p.Name
	}
	return p.Name + "(" + p.Args + ")"
}

// Int interprets the argument as a base-10 integer, e.g. MaxLeverage(10).
func (p ParsedProperty) Int() (int64, bool) {
	if !p.HasArgs {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(p.Args), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Decimal interprets the argument as an exact decimal amount, e.g. MaxOrderSize(2500.50).
func (p ParsedProperty) Decimal() (decimal.Decimal, bool) {
	if !p.HasArgs {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(p.Args))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// List interprets the argument as a JSON array of strings, e.g. AllowedPairs(["BTC-USDT"]).
func (p ParsedProperty) List() ([]string, bool) {
	if !p.HasArgs {
		return nil, false
	}
	var items []string
	if err := json.Unmarshal([]byte(p.Args), &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []string{}
	}
	return items, true
}
