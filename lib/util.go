package lib

import "encoding/hex"

// MarshalJSON implements json.Marshaler, rendering as a hex string so wire
// structures stay human-inspectable, mirroring the teacher's HexBytes type.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	return []byte(`"` + hex.EncodeToString(h) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*h = nil
		return nil
	}
	s = s[1 : len(s)-1]
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = b
	return nil
}

func (h HexBytes) String() string { return hex.EncodeToString(h) }

// BytesToString renders a byte slice as the canonical map key used for
// public-key-keyed and address-keyed collections throughout the core.
func BytesToString(b []byte) string { return hex.EncodeToString(b) }

// StringToBytes is the inverse of BytesToString.
func StringToBytes(s string) ([]byte, error) { return hex.DecodeString(s) }

// Uint64ReducePercentage returns pct percent of v (v*pct/100), rounding down.
func Uint64ReducePercentage(v uint64, pct uint64) uint64 {
	return v * pct / 100
}

// MinUint64 returns the smaller of two uint64s.
func MinUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// MaxUint64 returns the larger of two uint64s.
func MaxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
