// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/zeebo/errs"
)

// Cost is a USD amount. It is fixed-point all the way down: the store does
// not accept binary floats, and clients receive a plain JSON number.
type Cost struct {
	decimal.Decimal
}

// NewCost parses s as a decimal amount.
func NewCost(s string) (Cost, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Cost{}, errs.Wrap(err)
	}
	return Cost{Decimal: d}, nil
}

// CostFromDecimal wraps d.
func CostFromDecimal(d decimal.Decimal) Cost { return Cost{Decimal: d} }

// MarshalJSON writes the amount as an unquoted JSON number.
func (c Cost) MarshalJSON() ([]byte, error) {
	return []byte(c.Decimal.String()), nil
}

// UnmarshalJSON accepts both a JSON number and a quoted decimal string.
// Anything that is not valid JSON, mismatched quotes included, is rejected.
func (c *Cost) UnmarshalJSON(data []byte) error {
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		var quoted string
		if err := json.Unmarshal(data, &quoted); err != nil {
			return errs.Wrap(err)
		}
		number = json.Number(quoted)
	}
	d, err := decimal.NewFromString(number.String())
	if err != nil {
		return errs.Wrap(err)
	}
	c.Decimal = d
	return nil
}
