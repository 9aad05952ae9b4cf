// Package control is the booth's Control Channel. Remote controllers send
// OSC messages over UDP; the Listener decodes them into Triggers and pushes
// them into a bounded Queue which the engine drains one Trigger per tick.
// The channel never interprets triggers and never blocks its producers:
// malformed messages are discarded and overflow is dropped.
package control

import (
	"errors"
	"fmt"
	"math"
)

const (
	NameStart    = "start"
	NameReset    = "reset"
	NameNext     = "next"
	NameGain     = "gain"
	NameExponent = "exponent"
)

var (
	// ErrUnknownAddress is returned for OSC addresses the booth does not serve.
	ErrUnknownAddress = errors.New("control: unknown address")
	// ErrMalformed is returned for messages with unusable arguments.
	ErrMalformed = errors.New("control: malformed message")
)

// Trigger is one named remote signal with optional numeric arguments.
type Trigger struct {
	Name string    `json:"name"`
	Args []float64 `json:"args,omitempty"`
}

// Arg returns argument i if present.
func (t Trigger) Arg(i int) (float64, bool) {
	if i < 0 || i >= len(t.Args) {
		return 0, false
	}
	return t.Args[i], true
}

func (t Trigger) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	return fmt.Sprintf("%s%v", t.Name, t.Args)
}

// Validate checks the name and argument shape:
//
//	start [n]        n, if given, is an integer countdown start in 1..60
//	reset, next      arguments ignored (button controllers send 1.0/0.0)
//	gain <f>         f finite and >= 0
//	exponent <f>     f finite and > 0
func (t Trigger) Validate() error {
	for _, a := range t.Args {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("%w: %s has non-finite argument", ErrMalformed, t.Name)
		}
	}
	switch t.Name {
	case NameStart:
		if n, ok := t.Arg(0); ok {
			if n != math.Trunc(n) || n < 1 || n > 60 {
				return fmt.Errorf("%w: start countdown %v", ErrMalformed, n)
			}
		}
	case NameReset, NameNext:
	case NameGain:
		v, ok := t.Arg(0)
		if !ok || v < 0 {
			return fmt.Errorf("%w: gain needs one argument >= 0", ErrMalformed)
		}
	case NameExponent:
		v, ok := t.Arg(0)
		if !ok || v <= 0 {
			return fmt.Errorf("%w: exponent needs one argument > 0", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAddress, t.Name)
	}
	return nil
}

// Parse builds a validated Trigger from a name and arguments, as typed on
// the command line or posted to the HTTP API.
func Parse(name string, args ...float64) (Trigger, error) {
	t := Trigger{Name: name, Args: args}
	if err := t.Validate(); err != nil {
		return Trigger{}, err
	}
	return t, nil
}
