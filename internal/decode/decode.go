// Package decode turns raw characteristic payloads into display strings.
//
// All built-in decoders read big-endian values from the start of the buffer
// and ignore trailing bytes. A buffer shorter than the decoder width yields a
// *FormatError.
package decode

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Func decodes one notification payload into its display value
type Func func(data []byte) (string, error)

// FormatError reports a payload that is too short for its decoder
type FormatError struct {
	Decoder string
	Want    int
	Got     int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: payload too short: want %d bytes, got %d", e.Decoder, e.Want, e.Got)
}

const (
	Sint16  = "sint16"
	Sint32  = "sint32"
	Float64 = "float64"
)

// Sint16Hundredths decodes a signed 16-bit big-endian value scaled by 1/100
func Sint16Hundredths(data []byte) (string, error) {
	if len(data) < 2 {
		return "", &FormatError{Decoder: Sint16, Want: 2, Got: len(data)}
	}
	v := int16(binary.BigEndian.Uint16(data))
	return formatShortest(float64(v) / 100), nil
}

// Sint32Thousandths decodes a signed 32-bit big-endian value scaled by 1/1000
func Sint32Thousandths(data []byte) (string, error) {
	if len(data) < 4 {
		return "", &FormatError{Decoder: Sint32, Want: 4, Got: len(data)}
	}
	v := int32(binary.BigEndian.Uint32(data))
	return formatShortest(float64(v) / 1000), nil
}

// Float64Fixed6 decodes an IEEE-754 big-endian double with exactly 6 fractional digits
func Float64Fixed6(data []byte) (string, error) {
	if len(data) < 8 {
		return "", &FormatError{Decoder: Float64, Want: 8, Got: len(data)}
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(data))
	switch {
	case math.IsNaN(v):
		return "NaN", nil
	case math.IsInf(v, 1):
		return "Infinity", nil
	case math.IsInf(v, -1):
		return "-Infinity", nil
	}
	return fixed6(v), nil
}

// fixed6 formats v with 6 fractional digits, rounding exact ties away from zero.
// Magnitudes of 1e21 and above fall back to exponent notation.
func fixed6(v float64) string {
	abs := math.Abs(v)
	if abs >= 1e21 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	r := new(big.Rat).SetFloat64(abs)
	r.Mul(r, big.NewRat(1_000_000, 1))
	r.Add(r, big.NewRat(1, 2))
	digits := new(big.Int).Quo(r.Num(), r.Denom()).String()
	if len(digits) < 7 {
		digits = strings.Repeat("0", 7-len(digits)) + digits
	}

	s := digits[:len(digits)-6] + "." + digits[len(digits)-6:]
	if v < 0 {
		s = "-" + s
	}
	return s
}

// formatShortest prints the shortest decimal that round-trips, never in exponent form
func formatShortest(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var builtins = map[string]Func{
	Sint16:   Sint16Hundredths,
	"int16":  Sint16Hundredths,
	Sint32:   Sint32Thousandths,
	"int32":  Sint32Thousandths,
	Float64:  Float64Fixed6,
	"double": Float64Fixed6,
}

// Lookup returns the built-in decoder registered under name (case-insensitive)
func Lookup(name string) (Func, error) {
	fn, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown decoder %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return fn, nil
}

// Names returns the sorted names of all built-in decoders including aliases
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Width returns the minimal payload size of a built-in decoder, or 0 if unknown
func Width(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Sint16, "int16":
		return 2
	case Sint32, "int32":
		return 4
	case Float64, "double":
		return 8
	default:
		return 0
	}
}
