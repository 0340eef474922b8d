package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal lets yaml carry exact prices and sizes. Values are decoded from
// scalar nodes only, so `spread: 0.02` and `spread: "0.02"` both work while
// lists and maps are rejected; an empty scalar reads as zero.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("decimal value must be a yaml scalar, got %v", node.Kind)
	}
	if node.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("parse decimal %q: %w", node.Value, err)
	}
	d.Decimal = parsed
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
