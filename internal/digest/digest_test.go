package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktsec/signdata/internal/address"
	"github.com/oktsec/signdata/internal/dnsname"
	"github.com/oktsec/signdata/internal/payload"
)

func testAccount(b byte) address.Account {
	var a address.Account
	for i := range a.Hash {
		a.Hash[i] = b
	}
	return a
}

func TestMessage_TextLayout(t *testing.T) {
	acct := testAccount(0x11)
	domain := dnsname.MustEncode("tonkeeper.com")
	seg := payload.Segment{Kind: payload.KindText, Bytes: []byte("hi")}

	msg, err := Message(acct, domain, 1700000000, seg)
	require.NoError(t, err)

	r := bytes.NewReader(msg)
	next := func(n int) []byte {
		b := make([]byte, n)
		_, err := r.Read(b)
		require.NoError(t, err)
		return b
	}

	assert.Equal(t, Prefix, next(len(Prefix)))
	assert.Equal(t, []byte{0, 0, 0, 0}, next(4))
	assert.Equal(t, acct.Hash[:], next(32))
	assert.Equal(t, uint32(len(domain)), binary.BigEndian.Uint32(next(4)))
	assert.Equal(t, domain, next(len(domain)))
	assert.Equal(t, uint64(1700000000), binary.BigEndian.Uint64(next(8)))
	assert.Equal(t, []byte("txt"), next(3))
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(next(4)))
	assert.Equal(t, []byte("hi"), next(2))
	assert.Zero(t, r.Len())
}

func TestMessage_CellLayout(t *testing.T) {
	seg := payload.Segment{Kind: payload.KindCell}
	seg.SchemaHash[0] = 0xaa
	seg.CellHash[0] = 0xbb

	msg, err := Message(testAccount(1), []byte{0}, 5, seg)
	require.NoError(t, err)

	tail := msg[len(msg)-67:]
	assert.Equal(t, []byte("cel"), tail[:3])
	assert.Equal(t, byte(0xaa), tail[3])
	assert.Equal(t, byte(0xbb), tail[35])
}

func TestAssemble(t *testing.T) {
	acct := testAccount(0x22)
	domain := dnsname.MustEncode("example.org")
	seg := payload.Segment{Kind: payload.KindBinary, Bytes: []byte{1, 2, 3}}

	d, err := Assemble(acct, domain, 42, seg)
	require.NoError(t, err)

	msg, err := Message(acct, domain, 42, seg)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256(msg), d)
}

func TestAssemble_FieldSensitivity(t *testing.T) {
	acct := testAccount(0x33)
	domain := dnsname.MustEncode("example.org")
	seg := payload.Segment{Kind: payload.KindText, Bytes: []byte("abc")}

	base, err := Assemble(acct, domain, 100, seg)
	require.NoError(t, err)

	otherWC := acct
	otherWC.Workchain = -1
	otherHash := acct
	otherHash.Hash[31] ^= 1

	variants := map[string]func() ([Size]byte, error){
		"workchain": func() ([Size]byte, error) { return Assemble(otherWC, domain, 100, seg) },
		"hash":      func() ([Size]byte, error) { return Assemble(otherHash, domain, 100, seg) },
		"domain": func() ([Size]byte, error) {
			return Assemble(acct, dnsname.MustEncode("example.com"), 100, seg)
		},
		"timestamp": func() ([Size]byte, error) { return Assemble(acct, domain, 101, seg) },
		"text": func() ([Size]byte, error) {
			return Assemble(acct, domain, 100, payload.Segment{Kind: payload.KindText, Bytes: []byte("abd")})
		},
		"kind": func() ([Size]byte, error) {
			return Assemble(acct, domain, 100, payload.Segment{Kind: payload.KindBinary, Bytes: []byte("abc")})
		},
	}
	for name, fn := range variants {
		t.Run(name, func(t *testing.T) {
			d, err := fn()
			require.NoError(t, err)
			assert.NotEqual(t, base, d)
		})
	}
}

func TestAssemble_LengthPrefixPreventsShifting(t *testing.T) {
	// Moving a byte between domain and payload must not produce the same input.
	acct := testAccount(0)
	a, err := Message(acct, []byte("ab\x00"), 1, payload.Segment{Kind: payload.KindText, Bytes: []byte("c")})
	require.NoError(t, err)
	b, err := Message(acct, []byte("a\x00"), 1, payload.Segment{Kind: payload.KindText, Bytes: []byte("bc")})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAssemble_UnknownKind(t *testing.T) {
	_, err := Assemble(testAccount(0), []byte{0}, 1, payload.Segment{Kind: "image"})
	require.ErrorIs(t, err, payload.ErrUnknownType)
}
