package frequency

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// UnitSuffix is the unit token the counter appends to a reading.
const UnitSuffix = "Hz"

var ErrParse = errors.New("unparseable frequency response")

// ParseError reports a response line that did not contain a usable number.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot parse frequency from %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("cannot parse frequency from %q", e.Input)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse turns a raw response line such as "10000.00012 Hz\r\n" into Hz.
func Parse(raw string) (float64, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimSuffix(clean, UnitSuffix)
	clean = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, clean)

	if clean == "" {
		return 0, &ParseError{Input: raw, Err: errors.New("empty response")}
	}

	// ParseFloat also takes hexadecimal floats such as "0x1p4".
	if digits := strings.TrimLeft(clean, "+-"); strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, &ParseError{Input: raw, Err: errors.New("not a decimal number")}
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, &ParseError{Input: raw, Err: err}
	}

	// ParseFloat accepts "NaN" and "Inf", neither of which the counter produces.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Input: raw, Err: errors.New("non-finite value")}
	}

	return v, nil
}
