package address

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawAddr = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

func TestParseRaw(t *testing.T) {
	acct, err := Parse(rawAddr)
	require.NoError(t, err)
	assert.Equal(t, int32(0), acct.Workchain)
	assert.Equal(t, byte(0x83), acct.Hash[0])
	assert.Equal(t, byte(0xa8), acct.Hash[31])
	assert.Equal(t, rawAddr, acct.Raw())
}

func TestParseRaw_Masterchain(t *testing.T) {
	acct, err := Parse("-1:" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), acct.Workchain)

	b := acct.Bytes()
	require.Len(t, b, 36)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, b[:4])
	assert.True(t, bytes.Equal(acct.Hash[:], b[4:]))
}

func TestParseFriendlyRoundTrip(t *testing.T) {
	acct, err := Parse(rawAddr)
	require.NoError(t, err)

	for _, tc := range []struct {
		bounce, testnet bool
	}{{true, false}, {false, false}, {true, true}} {
		friendly := Friendly(acct, tc.bounce, tc.testnet)
		assert.Len(t, friendly, 48)

		parsed, err := Parse(friendly)
		require.NoError(t, err, friendly)
		assert.Equal(t, acct, parsed)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"   ",
		"not-an-address",
		"0:abc",
		"0:" + strings.Repeat("zz", 32),
		"EQD4FPq-PRD4YtG87wgL7AErgQwHUMFQ-JxyYw8jzBPhqjf", // truncated
		" " + rawAddr,
		rawAddr + "\n",
		"\t" + rawAddr + " ",
	} {
		_, err := Parse(s)
		require.ErrorIs(t, err, ErrInvalidAddress, s)
	}
}

func TestParse_BadChecksum(t *testing.T) {
	acct, err := Parse(rawAddr)
	require.NoError(t, err)
	friendly := Friendly(acct, true, false)

	// flip a character inside the hash portion
	b := []byte(friendly)
	if b[10] == 'A' {
		b[10] = 'B'
	} else {
		b[10] = 'A'
	}
	_, err = Parse(string(b))
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParser(t *testing.T) {
	var p Parser
	acct, err := p.Parse(rawAddr)
	require.NoError(t, err)
	assert.Equal(t, rawAddr, acct.Raw())
}
