package payload

import (
	"crypto/sha256"
	"fmt"

	"github.com/oktsec/signdata/internal/cell"
)

// Segment is the canonical, payload-specific input to the digest.
// Bytes is set for text and binary; SchemaHash and CellHash for cell.
type Segment struct {
	Kind       Kind
	Bytes      []byte
	SchemaHash [32]byte
	CellHash   [32]byte
}

// Canonicalize reduces p to its Segment. codec is only consulted for Cell.
func Canonicalize(p Payload, codec cell.Codec) (Segment, error) {
	switch v := p.(type) {
	case Text:
		return Segment{Kind: KindText, Bytes: []byte(v.Text)}, nil
	case Binary:
		return Segment{Kind: KindBinary, Bytes: v.Bytes}, nil
	case Cell:
		if codec == nil {
			return Segment{}, fmt.Errorf("%w: no cell codec configured", ErrMalformed)
		}
		h, err := cell.Hash(codec, v.Cell)
		if err != nil {
			return Segment{}, err
		}
		if len(h) != cell.HashLen {
			return Segment{}, fmt.Errorf("%w: cell hash is %d bytes", ErrMalformed, len(h))
		}
		seg := Segment{Kind: KindCell, SchemaHash: sha256.Sum256([]byte(v.Schema))}
		copy(seg.CellHash[:], h)
		return seg, nil
	case nil:
		return Segment{}, fmt.Errorf("%w: nil payload", ErrMalformed)
	default:
		return Segment{}, fmt.Errorf("%w: %T", ErrUnknownType, p)
	}
}
