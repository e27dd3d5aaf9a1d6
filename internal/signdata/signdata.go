// Package signdata produces and checks domain-bound sign-data signatures.
//
// Sign captures the time once, parses the account, canonicalizes the domain
// and payload, assembles the digest and signs it. VerifySignData replays the
// same construction from the fields carried in a Result and reports a plain
// boolean; malformed input is never surfaced as an error there.
package signdata

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oktsec/signdata/internal/address"
	"github.com/oktsec/signdata/internal/cell"
	"github.com/oktsec/signdata/internal/digest"
	"github.com/oktsec/signdata/internal/dnsname"
	"github.com/oktsec/signdata/internal/payload"
)

// Clock supplies the signing time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// FixedClock always reports the same unix second.
func FixedClock(unix int64) Clock {
	return ClockFunc(func() time.Time { return time.Unix(unix, 0) })
}

// AddressParser turns address text into an account.
type AddressParser interface {
	Parse(text string) (address.Account, error)
}

var (
	errNegativeTimestamp  = errors.New("negative timestamp")
	errSignatureLineBreak = errors.New("signature contains a line break")
)

// Service is safe for concurrent use; it holds no per-call state.
type Service struct {
	clock  Clock
	addrs  AddressParser
	codec  cell.Codec
	prim   Primitive
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithClock(c Clock) Option                 { return func(s *Service) { s.clock = c } }
func WithAddressParser(p AddressParser) Option { return func(s *Service) { s.addrs = p } }
func WithCellCodec(c cell.Codec) Option        { return func(s *Service) { s.codec = c } }
func WithPrimitive(p Primitive) Option         { return func(s *Service) { s.prim = p } }
func WithLogger(l *slog.Logger) Option         { return func(s *Service) { s.logger = l } }

// New returns a Service using the wall clock, TON address parsing, the BoC
// codec and Ed25519 unless overridden.
func New(opts ...Option) *Service {
	s := &Service{
		clock:  ClockFunc(time.Now),
		addrs:  address.Parser{},
		codec:  cell.BoC{},
		prim:   Ed25519{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign signs req.Payload for req.Domain on behalf of req.Address.
func (s *Service) Sign(req Request) (*Result, error) {
	ts := s.clock.Now().Unix()

	d, err := s.digest(req.Address, req.Domain, ts, req.Payload)
	if err != nil {
		s.logger.Debug("sign rejected", "stage", StageOf(err), "domain", req.Domain, "error", err)
		return nil, err
	}

	sig, err := s.prim.SignDetached(d[:], req.SecretKey)
	if err != nil {
		return nil, &StageError{Stage: StageSign, Err: err}
	}

	s.logger.Debug("signed", "kind", req.Payload.Kind(), "domain", req.Domain, "timestamp", ts)
	return &Result{
		Signature: base64.StdEncoding.EncodeToString(sig),
		Address:   req.Address,
		Timestamp: ts,
		Domain:    req.Domain,
		Payload:   req.Payload,
	}, nil
}

// VerifySignData reports whether res carries a valid signature by publicKey
// over its own address, domain, timestamp and payload.
func (s *Service) VerifySignData(res *Result, publicKey []byte) bool {
	if res == nil {
		return false
	}
	d, err := s.Digest(res)
	if err != nil {
		s.logger.Debug("verify: digest failed", "stage", StageOf(err), "error", err)
		return false
	}
	sig, err := DecodeSignature(res.Signature)
	if err != nil {
		s.logger.Debug("verify: signature not base64", "error", err)
		return false
	}
	ok := s.prim.VerifyDetached(d[:], sig, publicKey)
	if !ok {
		s.logger.Debug("verify: signature mismatch", "domain", res.Domain, "timestamp", res.Timestamp)
	}
	return ok
}

// DecodeSignature decodes the canonical base64 spelling of a signature.
// Line breaks and non-zero padding bits are rejected, so each signature has
// exactly one accepted text form.
func DecodeSignature(s string) ([]byte, error) {
	if strings.ContainsAny(s, "\r\n") {
		return nil, errSignatureLineBreak
	}
	return base64.StdEncoding.Strict().DecodeString(s)
}

// Digest recomputes the digest a Result's signature must cover.
func (s *Service) Digest(res *Result) ([digest.Size]byte, error) {
	return s.digest(res.Address, res.Domain, res.Timestamp, res.Payload)
}

func (s *Service) digest(addr, domain string, ts int64, p payload.Payload) ([digest.Size]byte, error) {
	var zero [digest.Size]byte

	acct, err := s.addrs.Parse(addr)
	if err != nil {
		return zero, &StageError{Stage: StageAddress, Err: err}
	}
	dom, err := dnsname.Encode(domain)
	if err != nil {
		return zero, &StageError{Stage: StageDomain, Err: err}
	}
	if ts < 0 {
		return zero, &StageError{Stage: StageTimestamp, Err: errNegativeTimestamp}
	}
	seg, err := payload.Canonicalize(p, s.codec)
	if err != nil {
		return zero, &StageError{Stage: StagePayload, Err: err}
	}
	d, err := digest.Assemble(acct, dom, uint64(ts), seg)
	if err != nil {
		return zero, &StageError{Stage: StageDigest, Err: err}
	}
	return d, nil
}

var std = New()

// Sign signs with the default Service.
func Sign(req Request) (*Result, error) { return std.Sign(req) }

// VerifySignData verifies with the default Service.
func VerifySignData(res *Result, publicKey []byte) bool { return std.VerifySignData(res, publicKey) }
