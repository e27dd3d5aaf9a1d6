// Package dnsname encodes human-readable domain names into the null-terminated,
// reversed-label wire form that is mixed into sign-data digests.
//
//	tonkeeper.com  ->  "com\x00tonkeeper\x00"
//	.              ->  "\x00"
package dnsname

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

const (
	// MaxLabelLen is the largest label, in bytes, after punycode conversion.
	MaxLabelLen = 63
	// MaxEncodedLen is the largest encoded name, terminators included.
	MaxEncodedLen = 126
)

var (
	ErrEmptyName    = errors.New("dnsname: empty domain name")
	ErrEmptyLabel   = errors.New("dnsname: empty label")
	ErrInvalidLabel = errors.New("dnsname: invalid label")
	ErrNameTooLarge = errors.New("dnsname: encoded name too large")
)

// Encode canonicalizes domain into wire form. Labels are lowercased, non-ASCII
// labels are converted to punycode one at a time, and the result lists labels
// from the top-level domain down, each followed by a zero byte.
func Encode(domain string) ([]byte, error) {
	if domain == "" {
		return nil, ErrEmptyName
	}

	name := strings.TrimSuffix(domain, ".")
	if name == "" {
		return []byte{0}, nil
	}

	raw := strings.Split(name, ".")
	labels := make([]string, len(raw))
	for i, l := range raw {
		if l == "" {
			return nil, fmt.Errorf("%w at position %d in %q", ErrEmptyLabel, i, domain)
		}
		enc, err := encodeLabel(l)
		if err != nil {
			return nil, err
		}
		labels[i] = enc
	}

	size := 0
	for _, l := range labels {
		size += len(l) + 1
	}
	if size > MaxEncodedLen {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrNameTooLarge, size, MaxEncodedLen)
	}

	out := make([]byte, 0, size)
	for i := len(labels) - 1; i >= 0; i-- {
		out = append(out, labels[i]...)
		out = append(out, 0)
	}
	return out, nil
}

// MustEncode is like Encode but panics on error. Intended for constants in tests
// and examples.
func MustEncode(domain string) []byte {
	b, err := Encode(domain)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeLabel(label string) (string, error) {
	if !utf8.ValidString(label) {
		return "", fmt.Errorf("%w %q: not valid UTF-8", ErrInvalidLabel, label)
	}
	l := strings.ToLower(label)

	if !isASCII(l) {
		p, err := idna.Punycode.ToASCII(l)
		if err != nil {
			return "", fmt.Errorf("%w %q: %v", ErrInvalidLabel, label, err)
		}
		l = p
	}

	if len(l) == 0 || len(l) > MaxLabelLen {
		return "", fmt.Errorf("%w %q: length %d outside 1..%d", ErrInvalidLabel, label, len(l), MaxLabelLen)
	}
	for i := 0; i < len(l); i++ {
		// printable ASCII, space excluded
		if c := l[i]; c < 0x21 || c > 0x7e {
			return "", fmt.Errorf("%w %q: disallowed byte 0x%02x", ErrInvalidLabel, label, c)
		}
	}
	return l, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
