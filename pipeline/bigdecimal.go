package pipeline

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// BigInt marshals as a decimal string per §6 ("Integers wider than 53 bits
// ... are decimal strings"), and unmarshals from either a JSON string or a
// JSON number so both this package's own output and a counterpart's numeric
// encoding round-trip.
type BigInt struct {
	*big.Int
}

// NewBigInt wraps v.
func NewBigInt(v *big.Int) BigInt {
	if v == nil {
		return BigInt{big.NewInt(0)}
	}
	return BigInt{new(big.Int).Set(v)}
}

// BigIntFromUint64 wraps a uint64 value.
func BigIntFromUint64(v uint64) BigInt {
	return BigInt{new(big.Int).SetUint64(v)}
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	if b.Int == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(b.Int.String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("pipeline: invalid decimal integer %q", s)
		}
		b.Int = v
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("pipeline: value is neither decimal string nor number: %s", data)
	}
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return fmt.Errorf("pipeline: invalid numeric integer %q", n.String())
	}
	b.Int = v
	return nil
}
