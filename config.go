package farez

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Booking flows an offer may declare.
const (
	BookingFlowBook = "book"
	BookingFlowHold = "hold"
)

// Request header names mapped by Config.WithHeaders.
const (
	HeaderAgencyCurrency = "AgencyCurrency"
	HeaderAgency         = "Agency"
)

// Config carries the per-test-case expectations the engine validates
// against. It is built once at the orchestration boundary and passed by
// value.
type Config struct {
	// Currency is the code every monetary field must carry.
	Currency string `yaml:"currency" validate:"omitempty,len=3,uppercase"`
	// Agency must appear in every decoded offer id.
	Agency string `yaml:"agency"`
	// BookingFlow is the flow this fixture exercises.
	BookingFlow string `yaml:"booking_flow" validate:"omitempty,oneof=book hold"`
	// RoundingTolerance bounds cross-response aggregate differences.
	RoundingTolerance string `yaml:"rounding_tolerance" validate:"omitempty,numeric"`
	// CurrencyExemptFees are fee codes allowed a settlement currency.
	CurrencyExemptFees []string `yaml:"currency_exempt_fees" validate:"dive,required"`
	// WarningSuffixes mark completeness findings that only warn.
	WarningSuffixes []string `yaml:"warning_suffixes" validate:"dive,required"`
	// ExpectedStatus is the HTTP status a response must have for its
	// stage to run. Zero disables the status check.
	ExpectedStatus int `yaml:"expected_status" validate:"omitempty,min=100,max=599"`
	// RejectionStatus is the HTTP status a refused request must have.
	// Zero disables the check.
	RejectionStatus int `yaml:"rejection_status" validate:"omitempty,min=100,max=599"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BookingFlow:        BookingFlowBook,
		RoundingTolerance:  "0.01",
		CurrencyExemptFees: []string{"CancelFee", "ChangeFee"},
		WarningSuffixes:    []string{".departureTerminal", ".arrivalTerminal", ".fareBasisCode"},
		ExpectedStatus:     200,
		RejectionStatus:    400,
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithHeaders overlays the request headers that carry expectations.
// Header names match case-insensitively.
func (c Config) WithHeaders(headers map[string]string) Config {
	for k, v := range headers {
		switch {
		case strings.EqualFold(k, HeaderAgencyCurrency):
			c.Currency = strings.TrimSpace(v)
		case strings.EqualFold(k, HeaderAgency):
			c.Agency = strings.TrimSpace(v)
		}
	}
	return c
}

var configValidator = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if t := c.tolerance(); t.IsNegative() {
		return fmt.Errorf("invalid config: rounding tolerance %s is negative", t)
	}
	return nil
}

// tolerance returns the rounding tolerance, 0.01 when unset or unparseable.
func (c Config) tolerance() decimal.Decimal {
	if d, err := decimal.NewFromString(c.RoundingTolerance); err == nil {
		return d
	}
	return decimal.New(1, -2)
}

// flow returns the configured booking flow, "book" when unset.
func (c Config) flow() string {
	if c.BookingFlow == "" {
		return BookingFlowBook
	}
	return strings.ToLower(c.BookingFlow)
}

func (c Config) exemptFee(code string) bool {
	for _, fee := range c.CurrencyExemptFees {
		if strings.EqualFold(fee, code) {
			return true
		}
	}
	return false
}
