// Package address parses TON account addresses into the (workchain, hash) pair
// that sign-data digests commit to.
package address

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	tonaddr "github.com/xssnick/tonutils-go/address"
)

// HashLen is the size of an account hash.
const HashLen = 32

var ErrInvalidAddress = errors.New("address: invalid account address")

// Account is the structural form of an address.
type Account struct {
	Workchain int32
	Hash      [HashLen]byte
}

// Bytes returns the big-endian workchain followed by the account hash.
func (a Account) Bytes() []byte {
	out := make([]byte, 4+HashLen)
	binary.BigEndian.PutUint32(out, uint32(a.Workchain))
	copy(out[4:], a.Hash[:])
	return out
}

// Raw returns the "<workchain>:<hex hash>" form.
func (a Account) Raw() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

// Parse accepts both the raw form ("0:<64 hex>") and the user-friendly base64
// form (bounceable or not, checksum verified). Surrounding whitespace is
// rejected rather than trimmed.
func Parse(text string) (Account, error) {
	s := text
	if s == "" {
		return Account{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.TrimSpace(s) != s {
		return Account{}, fmt.Errorf("%w %q: surrounding whitespace", ErrInvalidAddress, text)
	}

	var (
		a   *tonaddr.Address
		err error
	)
	if strings.Contains(s, ":") {
		a, err = tonaddr.ParseRawAddr(s)
	} else {
		a, err = tonaddr.ParseAddr(s)
	}
	if err != nil {
		return Account{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, text, err)
	}

	data := a.Data()
	if len(data) != HashLen {
		return Account{}, fmt.Errorf("%w %q: hash is %d bytes", ErrInvalidAddress, text, len(data))
	}

	acct := Account{Workchain: a.Workchain()}
	copy(acct.Hash[:], data)
	return acct, nil
}

// Parser adapts Parse to the interface consumed by the signing service.
type Parser struct{}

// Parse implements the address parser collaborator.
func (Parser) Parse(text string) (Account, error) {
	return Parse(text)
}

// Friendly renders acct in user-friendly form. Used by the CLI to show both
// spellings of the signing account.
func Friendly(acct Account, bounceable, testnet bool) string {
	a := tonaddr.NewAddress(0, byte(acct.Workchain), acct.Hash[:])
	a.SetBounce(bounceable)
	a.SetTestnetOnly(testnet)
	return a.String()
}
