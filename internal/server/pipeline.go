package server

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oktsec/signdata/internal/address"
	"github.com/oktsec/signdata/internal/audit"
	"github.com/oktsec/signdata/internal/config"
	"github.com/oktsec/signdata/internal/dnsname"
	"github.com/oktsec/signdata/internal/identity"
	"github.com/oktsec/signdata/internal/metrics"
	"github.com/oktsec/signdata/internal/replay"
	"github.com/oktsec/signdata/internal/signdata"
)

const tracerName = "github.com/oktsec/signdata/internal/server"

// Decision is the relying party's verdict on a submitted result.
type Decision string

const (
	DecisionVerified         Decision = "verified"
	DecisionInvalidSignature Decision = "invalid_signature"
	DecisionStale            Decision = "stale"
	DecisionFuture           Decision = "future"
	DecisionReplayed         Decision = "replayed"
	DecisionDomainNotAllowed Decision = "domain_not_allowed"
	DecisionMalformed        Decision = "malformed"
	DecisionUnknownKey       Decision = "unknown_key"
	DecisionRevokedKey       Decision = "revoked_key"
	DecisionRateLimited      Decision = "rate_limited"
)

// VerifyRequest carries a result and a way to find the signer's key: an
// explicit public key, a key name from the key store, or neither, in which
// case the key bound to the result's address is used.
type VerifyRequest struct {
	Result    *signdata.Result
	PublicKey string // base64
	KeyName   string
}

// Outcome is what the pipeline decided about one VerifyRequest.
type Outcome struct {
	Verified    bool
	Decision    Decision
	Fingerprint string
	Digest      string
	Detail      string
}

// Pipeline runs the acceptance checks around signature verification. It is
// safe for concurrent use; the acceptance policy can be swapped at runtime.
type Pipeline struct {
	svc     *signdata.Service
	keys    *identity.KeyStore
	guard   replay.Guard
	audit   *audit.Store
	metrics *metrics.Metrics
	limiter *RateLimiter
	tracer  trace.Tracer
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.RWMutex
	policy  replay.Policy
	allowed map[string]struct{}
}

// PipelineDeps are the collaborators a Pipeline needs. Audit may be nil.
type PipelineDeps struct {
	Service *signdata.Service
	Keys    *identity.KeyStore
	Guard   replay.Guard
	Audit   *audit.Store
	Metrics *metrics.Metrics
	Limiter *RateLimiter
	Now     func() time.Time
	Logger  *slog.Logger
}

// NewPipeline creates a pipeline and applies vc as its acceptance policy.
func NewPipeline(deps PipelineDeps, vc config.VerifyConfig) (*Pipeline, error) {
	p := &Pipeline{
		svc:     deps.Service,
		keys:    deps.Keys,
		guard:   deps.Guard,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		limiter: deps.Limiter,
		tracer:  otel.Tracer(tracerName),
		now:     deps.Now,
		logger:  deps.Logger,
	}
	if p.keys == nil {
		p.keys = identity.NewKeyStore()
	}
	if p.guard == nil {
		p.guard = replay.NewMemory()
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	if p.limiter == nil {
		p.limiter = NewRateLimiter(0, 0)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.svc == nil {
		p.svc = signdata.New(signdata.WithLogger(p.logger))
	}
	if err := p.UpdatePolicy(vc); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePolicy replaces the freshness window and domain allow-list.
// Allowed domains are compared in canonical form, so spelling variants of
// the same name match.
func (p *Pipeline) UpdatePolicy(vc config.VerifyConfig) error {
	allowed := make(map[string]struct{}, len(vc.AllowedDomains))
	for _, d := range vc.AllowedDomains {
		enc, err := dnsname.Encode(d)
		if err != nil {
			return fmt.Errorf("allowed domain %q: %w", d, err)
		}
		allowed[string(enc)] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = replay.Policy{MaxAge: vc.MaxAge(), MaxFuture: vc.MaxFuture()}
	p.allowed = allowed
	return nil
}

func (p *Pipeline) snapshot() (replay.Policy, map[string]struct{}) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.policy, p.allowed
}

// Verify decides req. The returned error is reserved for infrastructure
// failures (replay store unavailable); every property of the submitted
// result is reported through Outcome.
func (p *Pipeline) Verify(ctx context.Context, req VerifyRequest) (Outcome, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "signdata.verify")
	defer span.End()

	out, entry, err := p.decide(ctx, req)

	kind := entry.PayloadType
	if kind == "" {
		kind = "unknown"
	}
	elapsed := time.Since(start)
	p.metrics.ObserveVerify(kind, string(out.Decision), elapsed)

	span.SetAttributes(
		attribute.String("signdata.decision", string(out.Decision)),
		attribute.String("signdata.payload_type", kind),
		attribute.String("signdata.domain", entry.Domain),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification pipeline failed")
		return out, err
	}

	if p.audit != nil {
		entry.ID = uuid.New().String()
		entry.Timestamp = p.now().UTC().Format(time.RFC3339)
		entry.RequestID = RequestID(ctx)
		entry.Verified = out.Verified
		entry.Decision = string(out.Decision)
		entry.PubkeyFingerprint = out.Fingerprint
		entry.Digest = out.Digest
		entry.LatencyMs = elapsed.Milliseconds()
		p.audit.Log(entry)
	}

	p.logger.Debug("verification decided",
		"decision", out.Decision,
		"address", entry.Address,
		"domain", entry.Domain,
		"detail", out.Detail,
	)
	return out, nil
}

func (p *Pipeline) decide(ctx context.Context, req VerifyRequest) (Outcome, audit.Entry, error) {
	res := req.Result
	if res == nil || res.Payload == nil {
		return reject(DecisionMalformed, "result and payload are required"), audit.Entry{}, nil
	}
	entry := audit.Entry{
		Address:     res.Address,
		Domain:      res.Domain,
		PayloadType: string(res.Payload.Kind()),
		SignedAt:    res.Timestamp,
	}

	acct, err := address.Parse(res.Address)
	if err != nil {
		return reject(DecisionMalformed, err.Error()), entry, nil
	}
	entry.Address = acct.Raw()

	pub, out, ok := p.resolveKey(req)
	if !ok {
		return out, entry, nil
	}
	fp := identity.Fingerprint(pub)

	if !p.limiter.Allow(acct.Raw()) {
		return withKey(reject(DecisionRateLimited, "too many verifications for this address"), fp), entry, nil
	}

	policy, allowed := p.snapshot()
	dom, err := dnsname.Encode(res.Domain)
	if err != nil {
		return withKey(reject(DecisionMalformed, err.Error()), fp), entry, nil
	}
	if len(allowed) > 0 {
		if _, ok := allowed[string(dom)]; !ok {
			return withKey(reject(DecisionDomainNotAllowed, res.Domain), fp), entry, nil
		}
	}

	if err := policy.Check(p.now(), res.Timestamp); err != nil {
		decision := DecisionStale
		if errors.Is(err, replay.ErrFuture) {
			decision = DecisionFuture
		}
		return withKey(reject(decision, err.Error()), fp), entry, nil
	}

	d, err := p.svc.Digest(res)
	if err != nil {
		return withKey(reject(DecisionMalformed, err.Error()), fp), entry, nil
	}
	digestHex := hex.EncodeToString(d[:])

	if p.audit != nil {
		revoked, err := p.audit.IsRevoked(fp)
		if err != nil {
			return reject(DecisionMalformed, ""), entry, fmt.Errorf("checking revocation: %w", err)
		}
		if revoked {
			return withDigest(withKey(reject(DecisionRevokedKey, "key revoked"), fp), digestHex), entry, nil
		}
	}

	if !p.svc.VerifySignData(res, pub) {
		return withDigest(withKey(reject(DecisionInvalidSignature, ""), fp), digestHex), entry, nil
	}

	// Replay slots are taken only by valid signatures, keyed on their bytes.
	sig, err := signdata.DecodeSignature(res.Signature)
	if err != nil {
		return withDigest(withKey(reject(DecisionInvalidSignature, ""), fp), digestHex), entry, nil
	}
	seen, err := p.guard.Seen(ctx, replay.Key(sig), policy.TTL())
	if err != nil {
		return reject(DecisionMalformed, ""), entry, err
	}
	if seen {
		return withDigest(withKey(reject(DecisionReplayed, ""), fp), digestHex), entry, nil
	}

	return Outcome{Verified: true, Decision: DecisionVerified, Fingerprint: fp, Digest: digestHex}, entry, nil
}

func (p *Pipeline) resolveKey(req VerifyRequest) (ed25519.PublicKey, Outcome, bool) {
	switch {
	case req.PublicKey != "":
		raw, err := base64.StdEncoding.DecodeString(req.PublicKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, reject(DecisionMalformed, "public_key must be 32 bytes of base64"), false
		}
		return ed25519.PublicKey(raw), Outcome{}, true
	case req.KeyName != "":
		pub, ok := p.keys.Get(req.KeyName)
		if !ok {
			return nil, reject(DecisionUnknownKey, "no key named "+req.KeyName), false
		}
		return pub, Outcome{}, true
	default:
		pub, ok := p.keys.ForAddress(req.Result.Address)
		if !ok {
			return nil, reject(DecisionUnknownKey, "no key bound to address"), false
		}
		return pub, Outcome{}, true
	}
}

func reject(d Decision, detail string) Outcome {
	return Outcome{Decision: d, Detail: detail}
}

func withKey(o Outcome, fp string) Outcome {
	o.Fingerprint = fp
	return o
}

func withDigest(o Outcome, digestHex string) Outcome {
	o.Digest = digestHex
	return o
}
