// Package frequency parses frequency counter responses and classifies readings
// against a target frequency and tolerance window.
package frequency

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ToleranceUnit selects how a tolerance magnitude is interpreted.
type ToleranceUnit int

const (
	// Absolute tolerances are expressed in Hz.
	Absolute ToleranceUnit = iota
	// RelativePPM tolerances are parts-per-million of the target frequency.
	RelativePPM
)

var ErrInvalidParameters = errors.New("invalid test parameters")

// String returns the unit label used in configuration files and the HTTP API.
func (u ToleranceUnit) String() string {
	switch u {
	case Absolute:
		return "Hz"
	case RelativePPM:
		return "ppm"
	default:
		return fmt.Sprintf("ToleranceUnit(%d)", int(u))
	}
}

// ParseToleranceUnit accepts "Hz" or "ppm" (case-insensitive).
func ParseToleranceUnit(s string) (ToleranceUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hz", "":
		return Absolute, nil
	case "ppm":
		return RelativePPM, nil
	default:
		return Absolute, fmt.Errorf("%w: unknown tolerance unit %q", ErrInvalidParameters, s)
	}
}

// MarshalText lets the unit travel as "Hz"/"ppm" in JSON and YAML.
func (u ToleranceUnit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *ToleranceUnit) UnmarshalText(b []byte) error {
	parsed, err := ParseToleranceUnit(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// TestParameters describes the pass/fail window a reading is evaluated against.
type TestParameters struct {
	TargetHz           float64       `json:"target_hz"`
	ToleranceMagnitude float64       `json:"tolerance"`
	ToleranceUnit      ToleranceUnit `json:"tolerance_unit"`
}

// DefaultParameters matches the production tester's power-on settings.
func DefaultParameters() TestParameters {
	return TestParameters{
		TargetHz:           10_000.0,
		ToleranceMagnitude: 10.0,
		ToleranceUnit:      Absolute,
	}
}

// Validate enforces target > 0 and tolerance >= 0.
func (p TestParameters) Validate() error {
	if math.IsNaN(p.TargetHz) || math.IsInf(p.TargetHz, 0) || p.TargetHz <= 0 {
		return fmt.Errorf("%w: target frequency must be greater than zero, got %v", ErrInvalidParameters, p.TargetHz)
	}
	if math.IsNaN(p.ToleranceMagnitude) || math.IsInf(p.ToleranceMagnitude, 0) || p.ToleranceMagnitude < 0 {
		return fmt.Errorf("%w: tolerance must not be negative, got %v", ErrInvalidParameters, p.ToleranceMagnitude)
	}
	if p.ToleranceUnit != Absolute && p.ToleranceUnit != RelativePPM {
		return fmt.Errorf("%w: unknown tolerance unit %v", ErrInvalidParameters, p.ToleranceUnit)
	}
	return nil
}

// Window returns the absolute half-width of the tolerance window in Hz.
func (p TestParameters) Window() float64 {
	if p.ToleranceUnit == RelativePPM {
		return (p.ToleranceMagnitude / 1_000_000) * p.TargetHz
	}
	return p.ToleranceMagnitude
}
