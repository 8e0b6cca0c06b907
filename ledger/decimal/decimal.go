// Package decimal implements a fixed-scale (1e8) USD amount backed by
// math/big, persisted as a decimal string via database/sql's Scanner and
// driver.Valuer, the way pipeline.BigInt wraps *big.Int for JSON instead of
// SQL. Every USD-denominated field in the ledger uses this type so
// arithmetic never touches float64.
package decimal

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// Scale is the number of fractional decimal digits every USD value carries
// internally: the 8-digit precision of the ledger's formatDecimal(8)
// bookkeeping (SPEC_FULL.md §3), which also leaves headroom below float64's
// ~15 significant digits at the FromFloat64 boundary.
const Scale = 8

var scaleFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(Scale), nil)

// USD is a fixed-point decimal amount, stored internally as value * 1e8.
type USD struct {
	scaled *big.Int
}

// Zero is the additive identity.
func Zero() USD { return USD{scaled: new(big.Int)} }

// FromFloat64 converts f (already a USD amount, not scaled) to a USD value,
// rounding to Scale fractional digits. Used only at the PriceOracle
// boundary, where an upstream API returns a float.
func FromFloat64(f float64) USD {
	scaled := new(big.Float).Mul(big.NewFloat(f), new(big.Float).SetInt(scaleFactor))
	// Int truncates toward zero; shifting by half a unit first rounds half
	// away from zero instead.
	if f < 0 {
		scaled.Sub(scaled, big.NewFloat(0.5))
	} else {
		scaled.Add(scaled, big.NewFloat(0.5))
	}
	i, _ := scaled.Int(nil)
	return USD{scaled: i}
}

// FromScaledString parses a raw integer string already expressed in units
// of 1e-8 USD (the wire/DB representation).
func FromScaledString(s string) (USD, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return USD{}, fmt.Errorf("decimal: invalid scaled amount %q", s)
	}
	return USD{scaled: n}, nil
}

func (u USD) normalized() *big.Int {
	if u.scaled == nil {
		return new(big.Int)
	}
	return u.scaled
}

// Add returns u + other.
func (u USD) Add(other USD) USD {
	return USD{scaled: new(big.Int).Add(u.normalized(), other.normalized())}
}

// Sub returns u - other.
func (u USD) Sub(other USD) USD {
	return USD{scaled: new(big.Int).Sub(u.normalized(), other.normalized())}
}

// Cmp returns -1, 0 or 1 as u is less than, equal to, or greater than other.
func (u USD) Cmp(other USD) int {
	return u.normalized().Cmp(other.normalized())
}

// IsNegative reports whether u < 0.
func (u USD) IsNegative() bool {
	return u.normalized().Sign() < 0
}

// IsZero reports whether u == 0.
func (u USD) IsZero() bool {
	return u.normalized().Sign() == 0
}

// Min returns the smaller of u and other.
func Min(u, other USD) USD {
	if u.Cmp(other) <= 0 {
		return u
	}
	return other
}

// MulRatio multiplies u by a ratio expressed as numerator/denominator
// (integers), used for LTV-percent and utilization-scale (1e6) conversions
// without floating point.
func (u USD) MulRatio(numerator, denominator int64) USD {
	if denominator == 0 {
		return Zero()
	}
	n := new(big.Int).Mul(u.normalized(), big.NewInt(numerator))
	return USD{scaled: n.Div(n, big.NewInt(denominator))}
}

// String renders u as a decimal string with Scale fractional digits.
func (u USD) String() string {
	n := u.normalized()
	neg := n.Sign() < 0
	abs := new(big.Int).Abs(n)
	intPart := new(big.Int)
	frac := new(big.Int)
	intPart.QuoRem(abs, scaleFactor, frac)
	s := fmt.Sprintf("%s.%0*s", intPart.String(), Scale, frac.String())
	if neg {
		s = "-" + s
	}
	return s
}

// Scan implements sql.Scanner, reading the raw scaled integer string stored
// by Value.
func (u *USD) Scan(value interface{}) error {
	if value == nil {
		u.scaled = new(big.Int)
		return nil
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("decimal: unsupported scan type %T", value)
	}
	if raw == "" {
		u.scaled = new(big.Int)
		return nil
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("decimal: invalid scaled amount %q", raw)
	}
	u.scaled = n
	return nil
}

// Value implements driver.Valuer, persisting the raw scaled integer as a
// string so the database never rounds it.
func (u USD) Value() (driver.Value, error) {
	return u.normalized().String(), nil
}
