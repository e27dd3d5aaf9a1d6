// Package sdk is the public Go API for signdata: signing and verifying
// domain-bound wallet data, and a client for a signdata verification server.
//
// Signing locally:
//
//	res, err := sdk.Sign(sdk.Request{
//		Payload:   sdk.Text{Text: "Confirm login"},
//		Domain:    "tonkeeper.com",
//		SecretKey: kp.PrivateKey,
//		Address:   kp.Address,
//	})
//	ok := sdk.VerifySignData(res, kp.PublicKey)
//
// Verifying through a server:
//
//	c := sdk.NewClient("http://localhost:8080")
//	resp, err := c.Verify(ctx, res)
package sdk

import (
	"github.com/oktsec/signdata/internal/dnsname"
	"github.com/oktsec/signdata/internal/identity"
	"github.com/oktsec/signdata/internal/payload"
	"github.com/oktsec/signdata/internal/signdata"
)

type (
	// Payload is one of Text, Binary or Cell.
	Payload = payload.Payload
	Text    = payload.Text
	Binary  = payload.Binary
	// Cell carries a base64 bag-of-cells and the TL-B schema that describes it.
	Cell = payload.Cell

	Request = signdata.Request
	Result  = signdata.Result

	Keypair = identity.Keypair
)

// Sign signs req at the current time.
func Sign(req Request) (*Result, error) {
	return signdata.Sign(req)
}

// VerifySignData reports whether res carries a valid signature by publicKey.
// It never returns an error; malformed results verify as false.
func VerifySignData(res *Result, publicKey []byte) bool {
	return signdata.VerifySignData(res, publicKey)
}

// EncodeDNSName returns the wire form of domain that signatures bind to.
func EncodeDNSName(domain string) ([]byte, error) {
	return dnsname.Encode(domain)
}

// LoadKeypair loads <dir>/<name>.key written by `signdata keygen`.
func LoadKeypair(dir, name string) (*Keypair, error) {
	return identity.LoadKeypair(dir, name)
}
