// Package digest assembles the byte sequence a sign-data signature covers and
// reduces it to the 32-byte value handed to the signing primitive.
//
// Layout (all integers big-endian):
//
//	0xff 0xff
//	"ton-connect/sign-data/"
//	workchain       int32
//	account hash    [32]byte
//	len(domain)     uint32
//	domain          encoded DNS name
//	timestamp       uint64
//	kind tag        "txt" | "bin" | "cel"
//	text, binary:   len uint32 || bytes
//	cell:           sha256(schema) [32]byte || cell hash [32]byte
//
// The result is sha256 over the whole sequence.
package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/oktsec/signdata/internal/address"
	"github.com/oktsec/signdata/internal/payload"
)

// Size is the length of a digest.
const Size = sha256.Size

// Prefix is the domain-separation tag that starts every digest input.
var Prefix = append([]byte{0xff, 0xff}, "ton-connect/sign-data/"...)

var kindTags = map[payload.Kind][]byte{
	payload.KindText:   []byte("txt"),
	payload.KindBinary: []byte("bin"),
	payload.KindCell:   []byte("cel"),
}

// Message returns the pre-hash byte sequence.
func Message(acct address.Account, domain []byte, timestamp uint64, seg payload.Segment) ([]byte, error) {
	tag, ok := kindTags[seg.Kind]
	if !ok {
		return nil, fmt.Errorf("digest: %w %q", payload.ErrUnknownType, seg.Kind)
	}

	var buf bytes.Buffer
	buf.Grow(len(Prefix) + 4 + address.HashLen + 4 + len(domain) + 8 + 3 + 4 + len(seg.Bytes) + 64)

	buf.Write(Prefix)
	buf.Write(acct.Bytes())
	writeUint32(&buf, uint32(len(domain)))
	buf.Write(domain)
	writeUint64(&buf, timestamp)
	buf.Write(tag)

	switch seg.Kind {
	case payload.KindText, payload.KindBinary:
		writeUint32(&buf, uint32(len(seg.Bytes)))
		buf.Write(seg.Bytes)
	case payload.KindCell:
		buf.Write(seg.SchemaHash[:])
		buf.Write(seg.CellHash[:])
	}
	return buf.Bytes(), nil
}

// Assemble returns sha256(Message(...)).
func Assemble(acct address.Account, domain []byte, timestamp uint64, seg payload.Segment) ([Size]byte, error) {
	msg, err := Message(acct, domain, timestamp, seg)
	if err != nil {
		return [Size]byte{}, err
	}
	return sha256.Sum256(msg), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
