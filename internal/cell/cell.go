// Package cell is the structural-data collaborator: it turns a base64 bag of
// cells into opaque bytes and those bytes into the root cell's content hash.
// Cell layout is never interpreted here beyond what the BoC decoder requires.
package cell

import (
	"encoding/base64"
	"errors"
	"fmt"

	toncell "github.com/xssnick/tonutils-go/tvm/cell"
)

// HashLen is the size of a cell representation hash.
const HashLen = 32

var ErrInvalidCell = errors.New("cell: invalid bag of cells")

// Codec decodes boundary-encoded blobs and hashes them.
type Codec interface {
	Decode(b64 string) ([]byte, error)
	ContentHash(blob []byte) ([]byte, error)
}

// BoC implements Codec for serialized TON bags of cells.
type BoC struct{}

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

// Decode accepts standard or URL-safe base64, padded or not.
func (BoC) Decode(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCell)
	}
	var first error
	for _, enc := range encodings {
		data, err := enc.DecodeString(b64)
		if err == nil {
			return data, nil
		}
		if first == nil {
			first = err
		}
	}
	return nil, fmt.Errorf("%w: base64: %v", ErrInvalidCell, first)
}

// ContentHash parses blob as a bag of cells and returns the root hash.
// The BoC parser panics on some truncated inputs; those are reported as
// ErrInvalidCell.
func (BoC) ContentHash(blob []byte) (h []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("%w: %v", ErrInvalidCell, r)
		}
	}()

	root, err := toncell.FromBOC(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCell, err)
	}
	h = root.Hash()
	if len(h) != HashLen {
		return nil, fmt.Errorf("%w: hash is %d bytes", ErrInvalidCell, len(h))
	}
	return h, nil
}

// Hash decodes and hashes in one step.
func Hash(c Codec, b64 string) ([]byte, error) {
	blob, err := c.Decode(b64)
	if err != nil {
		return nil, err
	}
	return c.ContentHash(blob)
}
