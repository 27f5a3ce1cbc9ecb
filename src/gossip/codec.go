package gossip

import (
	"bytes"
	"io"

	"github.com/ugorji/go/codec"
)

var (
	msgpackHandle = &codec.MsgpackHandle{}
	jsonHandle    = &codec.JsonHandle{}
)

func init() {
	msgpackHandle.Canonical = true
	jsonHandle.Canonical = true
}

// MsgpackHandle returns the handle used to frame envelopes on the wire.
func MsgpackHandle() *codec.MsgpackHandle {
	return msgpackHandle
}

// Marshal returns the msgpack encoding of the Envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	if err := e.Encode(b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal ...
func (e *Envelope) Unmarshal(data []byte) error {
	return e.Decode(bytes.NewReader(data))
}

// Encode writes the msgpack encoding of the Envelope to w.
func (e *Envelope) Encode(w io.Writer) error {
	return codec.NewEncoder(w, msgpackHandle).Encode(e)
}

// Decode reads a msgpack encoded Envelope from r.
func (e *Envelope) Decode(r io.Reader) error {
	return codec.NewDecoder(r, msgpackHandle).Decode(e)
}

// MarshalJSON - canonical json encoding of the Envelope
func (e *Envelope) MarshalJSON() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle)

	// the alias drops the method set and avoids recursing into MarshalJSON
	type alias Envelope
	if err := enc.Encode((*alias)(e)); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalJSON ...
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	dec := codec.NewDecoder(bytes.NewReader(data), jsonHandle)
	return dec.Decode((*alias)(e))
}
