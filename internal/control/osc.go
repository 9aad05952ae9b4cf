package control

import (
	"fmt"
	"strings"

	"github.com/hypebeast/go-osc/osc"
)

// OSC addresses, relative to the configured prefix.
var addressNames = map[string]string{
	"/start":           NameStart,
	"/reset":           NameReset,
	"/next":            NameNext,
	"/filter/gain":     NameGain,
	"/filter/exponent": NameExponent,
}

var nameAddresses = map[string]string{
	NameStart:    "/start",
	NameReset:    "/reset",
	NameNext:     "/next",
	NameGain:     "/filter/gain",
	NameExponent: "/filter/exponent",
}

// Decode turns one OSC message into a validated Trigger. prefix, if set, is
// stripped from the address first ("/booth" makes "/booth/start" a start).
func Decode(msg *osc.Message, prefix string) (Trigger, error) {
	addr := msg.Address
	if prefix != "" {
		rest, ok := strings.CutPrefix(addr, strings.TrimSuffix(prefix, "/"))
		if !ok {
			return Trigger{}, fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
		}
		addr = rest
	}
	name, ok := addressNames[addr]
	if !ok {
		return Trigger{}, fmt.Errorf("%w: %s", ErrUnknownAddress, msg.Address)
	}

	t := Trigger{Name: name}
	for i, a := range msg.Arguments {
		v, ok := numeric(a)
		if !ok {
			if name == NameReset || name == NameNext {
				continue
			}
			return Trigger{}, fmt.Errorf("%w: %s argument %d has type %T", ErrMalformed, msg.Address, i, a)
		}
		t.Args = append(t.Args, v)
	}
	if name == NameReset || name == NameNext {
		t.Args = nil
	}
	if err := t.Validate(); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// Encode builds the OSC message for t. Integral start counts go out as
// int32 and everything else as float32, the types most controllers expect.
func Encode(t Trigger, prefix string) (*osc.Message, error) {
	addr, ok := nameAddresses[t.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAddress, t.Name)
	}
	msg := osc.NewMessage(strings.TrimSuffix(prefix, "/") + addr)
	for _, a := range t.Args {
		if t.Name == NameStart {
			msg.Append(int32(a))
		} else {
			msg.Append(float32(a))
		}
	}
	return msg, nil
}

func numeric(a interface{}) (float64, bool) {
	switch v := a.(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// messages flattens a packet into its messages, bundles included.
func messages(p osc.Packet) []*osc.Message {
	switch v := p.(type) {
	case *osc.Message:
		return []*osc.Message{v}
	case *osc.Bundle:
		out := append([]*osc.Message(nil), v.Messages...)
		for _, b := range v.Bundles {
			out = append(out, messages(b)...)
		}
		return out
	default:
		return nil
	}
}
