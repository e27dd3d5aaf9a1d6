// Package payload models the three sign-data payload shapes and reduces each
// to the segment that the digest assembler commits to.
package payload

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a payload variant on the wire.
type Kind string

const (
	KindText   Kind = "text"
	KindBinary Kind = "binary"
	KindCell   Kind = "cell"
)

var (
	ErrUnknownType = errors.New("payload: unknown type")
	ErrMalformed   = errors.New("payload: malformed")
)

// Payload is one of Text, Binary or Cell. The set is closed: isPayload is
// unexported so no other package can add a variant.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Text is a UTF-8 message shown to the user verbatim.
type Text struct {
	Text string
}

// Binary is arbitrary data; it travels as base64 and is held here decoded.
type Binary struct {
	Bytes []byte
}

// Cell is a bag of cells (base64) together with the TL-B schema describing it.
// The schema is committed to as opaque text and never parsed.
type Cell struct {
	Schema string
	Cell   string
}

func (Text) Kind() Kind   { return KindText }
func (Binary) Kind() Kind { return KindBinary }
func (Cell) Kind() Kind   { return KindCell }

func (Text) isPayload()   {}
func (Binary) isPayload() {}
func (Cell) isPayload()   {}

// BinaryFromBase64 builds a Binary payload from its boundary encoding.
func BinaryFromBase64(b64 string) (Binary, error) {
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Binary{}, fmt.Errorf("%w: binary bytes: %v", ErrMalformed, err)
	}
	return Binary{Bytes: b}, nil
}

// wire is the JSON shape shared by all variants.
type wire struct {
	Type   Kind    `json:"type"`
	Text   *string `json:"text,omitempty"`
	Bytes  *string `json:"bytes,omitempty"`
	Schema *string `json:"schema,omitempty"`
	Cell   *string `json:"cell,omitempty"`
}

// Marshal encodes p in its tagged JSON form.
func Marshal(p Payload) ([]byte, error) {
	var w wire
	switch v := p.(type) {
	case Text:
		w = wire{Type: KindText, Text: &v.Text}
	case Binary:
		b := base64.StdEncoding.EncodeToString(v.Bytes)
		w = wire{Type: KindBinary, Bytes: &b}
	case Cell:
		w = wire{Type: KindCell, Schema: &v.Schema, Cell: &v.Cell}
	case nil:
		return nil, fmt.Errorf("%w: nil payload", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, p)
	}
	return json.Marshal(w)
}

// Unmarshal decodes a tagged JSON payload. Binary bytes are base64-decoded
// here so that malformed input fails before any digest is built.
func Unmarshal(data []byte) (Payload, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch w.Type {
	case KindText:
		if w.Text == nil {
			return nil, fmt.Errorf("%w: text payload without text", ErrMalformed)
		}
		return Text{Text: *w.Text}, nil
	case KindBinary:
		if w.Bytes == nil {
			return nil, fmt.Errorf("%w: binary payload without bytes", ErrMalformed)
		}
		return BinaryFromBase64(*w.Bytes)
	case KindCell:
		if w.Schema == nil || w.Cell == nil {
			return nil, fmt.Errorf("%w: cell payload needs schema and cell", ErrMalformed)
		}
		return Cell{Schema: *w.Schema, Cell: *w.Cell}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, w.Type)
	}
}

// Envelope wraps a Payload so it can sit inside other JSON documents.
type Envelope struct {
	Value Payload
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return Marshal(e.Value)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	p, err := Unmarshal(data)
	if err != nil {
		return err
	}
	e.Value = p
	return nil
}
