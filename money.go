package farez

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ExtractAmount returns the decimal amount held by v.
//
// v may be nil, a bare number, a numeric string, or a currency-amount object
// with an "amount" key. Anything missing, null, unparseable or of the wrong
// shape yields zero. ExtractAmount never fails; callers rely on zero meaning
// absent.
func ExtractAmount(v any) decimal.Decimal {
	d, _ := parseAmount(v)
	return d
}

// parseAmount is ExtractAmount that also reports whether a present value
// failed to parse. Absent values are not a parse failure.
func parseAmount(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, true
	case Money:
		return x.Amount, x.Malformed == ""
	case *Money:
		if x == nil {
			return decimal.Zero, true
		}
		return x.Amount, x.Malformed == ""
	case decimal.Decimal:
		return x, true
	case map[string]any:
		return parseAmount(x["amount"])
	case json.Number:
		return parseDecimal(x.String())
	case string:
		if strings.TrimSpace(x) == "" {
			return decimal.Zero, true
		}
		return parseDecimal(x)
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s, err := cast.ToStringE(x)
		if err != nil {
			return decimal.Zero, false
		}
		return parseDecimal(s)
	default:
		return decimal.Zero, false
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Round2 rounds half away from zero to two decimal places, which is
// half-up for the non-negative amounts fares carry.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Money is a currency-amount object such as {"amount": 12.5, "currency": "USD"}.
type Money struct {
	Amount   decimal.Decimal
	Currency string
	// Present is false when the field was absent or null.
	Present bool
	// Malformed holds the raw amount text when it could not be parsed.
	Malformed string
}

// UnmarshalJSON decodes the object, a bare amount, or null. It never fails
// on bad amounts; see Malformed.
func (m *Money) UnmarshalJSON(data []byte) error {
	*m = Money{}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	m.Present = true
	amount := raw
	if obj, ok := raw.(map[string]any); ok {
		amount = obj["amount"]
		m.Currency = cast.ToString(obj["currency"])
	}
	d, ok := parseAmount(amount)
	if !ok {
		m.Malformed = render(amount)
	}
	m.Amount = d
	return nil
}

// MarshalJSON encodes the money as a currency-amount object.
func (m Money) MarshalJSON() ([]byte, error) {
	if !m.Present {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Amount   json.Number `json:"amount"`
		Currency string      `json:"currency,omitempty"`
	}{Amount: json.Number(m.Amount.String()), Currency: m.Currency})
}

// IsZeroOrAbsent reports whether the money is missing, null or zero.
func (m *Money) IsZeroOrAbsent() bool {
	return m == nil || !m.Present || m.Amount.IsZero()
}

// String renders the amount with two decimals and the currency.
func (m Money) String() string {
	if !m.Present {
		return "null"
	}
	if m.Currency == "" {
		return m.Amount.StringFixed(2)
	}
	return m.Amount.StringFixed(2) + " " + m.Currency
}
