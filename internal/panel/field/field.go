// Package field describes input fields as explicit, validated configuration
// values instead of free-form property bags.
package field

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/marketfund/internal/amount"
	"github.com/alanyoungcy/marketfund/internal/domain"
)

// Type is the HTML-level input type of a field.
type Type string

const (
	TypeText   Type = "text"
	TypeNumber Type = "number"
)

// Config is the complete set of properties a front end needs to paint an
// input. Zero values are the input defaults.
type Config struct {
	Type         Type   `json:"type"`
	Name         string `json:"name"`
	Value        string `json:"value"`
	Placeholder  string `json:"placeholder,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
	AutoFocus    bool   `json:"auto_focus,omitempty"`
	ReadOnly     bool   `json:"read_only,omitempty"`
	FocusOutline bool   `json:"focus_outline,omitempty"`
	Disabled     bool   `json:"disabled,omitempty"`
}

// Validate rejects configurations a front end could not render.
func (c Config) Validate() error {
	switch c.Type {
	case TypeText, TypeNumber:
	default:
		return fmt.Errorf("field: %w: unknown type %q", domain.ErrInvalidField, c.Type)
	}
	if c.Name == "" {
		return fmt.Errorf("field: %w: name is required", domain.ErrInvalidField)
	}
	return nil
}

// BigNumber is a numeric field bound to a token's decimals. It holds the
// parsed value; text that fails to parse never replaces it.
type BigNumber struct {
	name     string
	decimals uint8
	value    *big.Int
}

// NewBigNumber creates a field with a zero value.
func NewBigNumber(name string, decimals uint8) *BigNumber {
	return &BigNumber{name: name, decimals: decimals, value: amount.Zero()}
}

// Value returns a copy of the current value.
func (f *BigNumber) Value() *big.Int { return amount.Copy(f.value) }

// Decimals returns the precision the field is bound to.
func (f *BigNumber) Decimals() uint8 { return f.decimals }

// Set replaces the value. Nil resets to zero.
func (f *BigNumber) Set(v *big.Int) { f.value = amount.Copy(v) }

// SetText parses text with the field's decimals and stores the result.
func (f *BigNumber) SetText(text string) error {
	v, err := amount.Parse(text, f.decimals)
	if err != nil {
		return err
	}
	f.value = v
	return nil
}

// Config renders the field with the given placeholder.
func (f *BigNumber) Config(placeholder string, disabled bool) Config {
	return Config{
		Type:        TypeNumber,
		Name:        f.name,
		Value:       amount.FormatInput(f.value, f.decimals),
		Placeholder: placeholder,
		Disabled:    disabled,
	}
}
