// Envelope is the wire unit for application messages carried over a
// negotiated connection: the event name followed by its arguments, encoded as
// a UTF-8 JSON array ["event", arg0, arg1, ...].
//
// Arguments are kept as compact JSON, so decoding an encoded envelope yields
// an identical value.

package envelope

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrMalformed is returned by Decode for payloads that are not a JSON array
// led by a string event name.
var ErrMalformed = errors.New("malformed envelope")

type Envelope struct {
	Event string
	Args  []json.RawMessage
}

func New(event string, args ...any) (Envelope, error) {
	e := Envelope{
		Event: event,
		Args:  make([]json.RawMessage, 0, len(args)),
	}

	for i, arg := range args {
		raw, err := marshal(arg)
		if err != nil {
			return Envelope{}, errors.Wrapf(err, "argument %d of %q", i, event)
		}

		e.Args = append(e.Args, raw)
	}

	return e, nil
}

func (e Envelope) Encode() ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(e.Args)+1)

	name, err := marshal(e.Event)
	if err != nil {
		return nil, err
	}

	parts = append(parts, name)
	parts = append(parts, e.Args...)

	return marshal(parts)
}

func Decode(data []byte) (Envelope, error) {
	var parts []json.RawMessage

	if err := json.Unmarshal(data, &parts); err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}

	if len(parts) == 0 {
		return Envelope{}, errors.Wrap(ErrMalformed, "empty array")
	}

	var event string

	if err := json.Unmarshal(parts[0], &event); err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, "event name is not a string")
	}

	e := Envelope{
		Event: event,
		Args:  make([]json.RawMessage, 0, len(parts)-1),
	}

	for _, part := range parts[1:] {
		canonical, err := marshal(part)
		if err != nil {
			return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
		}

		e.Args = append(e.Args, canonical)
	}

	return e, nil
}

// Values decodes every argument into its generic JSON form: strings, float64
// numbers, bools, nil, []any and map[string]any.
func (e Envelope) Values() ([]any, error) {
	values := make([]any, len(e.Args))

	for i := range e.Args {
		if err := e.Bind(i, &values[i]); err != nil {
			return nil, err
		}
	}

	return values, nil
}

// Bind decodes argument i into v.
func (e Envelope) Bind(i int, v any) error {
	if i < 0 || i >= len(e.Args) {
		return errors.Errorf("envelope %q has no argument %d", e.Event, i)
	}

	return errors.Wrapf(json.Unmarshal(e.Args[i], v), "argument %d of %q", i, e.Event)
}

// marshal is json.Marshal without HTML escaping, which would otherwise
// rewrite '<', '>' and '&' inside arguments on every re-encode.
func marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
