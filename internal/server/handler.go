package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oktsec/signdata/internal/address"
	"github.com/oktsec/signdata/internal/audit"
	"github.com/oktsec/signdata/internal/dnsname"
	"github.com/oktsec/signdata/internal/identity"
	"github.com/oktsec/signdata/internal/metrics"
	"github.com/oktsec/signdata/internal/payload"
	"github.com/oktsec/signdata/internal/safefile"
	"github.com/oktsec/signdata/internal/signdata"
)

// VerifyBody is the JSON body of POST /v1/verify.
type VerifyBody struct {
	Result    json.RawMessage `json:"result"`
	PublicKey string          `json:"public_key,omitempty"`
	Key       string          `json:"key,omitempty"`
}

// VerifyResponse is returned by POST /v1/verify.
type VerifyResponse struct {
	Verified    bool   `json:"verified"`
	Decision    string `json:"decision"`
	RequestID   string `json:"request_id"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Digest      string `json:"digest,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DNSBody is the JSON body of POST /v1/dns/encode.
type DNSBody struct {
	Domain string `json:"domain"`
}

// DNSResponse is returned by POST /v1/dns/encode.
type DNSResponse struct {
	Domain string `json:"domain"`
	Hex    string `json:"hex"`
	Length int    `json:"length"`
}

// SignBody is the JSON body of POST /v1/sign. Address defaults to the one
// bound to the key.
type SignBody struct {
	Key     string           `json:"key"`
	Address string           `json:"address,omitempty"`
	Domain  string           `json:"domain"`
	Payload payload.Envelope `json:"payload"`
}

// Handler serves the relying-party API.
type Handler struct {
	pipeline *Pipeline
	signer   *signdata.Service
	keysDir  string
	audit    *audit.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates the API handler. signer may be nil to disable
// POST /v1/sign; store may be nil to disable the audit endpoints.
func NewHandler(p *Pipeline, signer *signdata.Service, keysDir string, store *audit.Store, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		signer:   signer,
		keysDir:  keysDir,
		audit:    store,
		metrics:  m,
		logger:   logger,
	}
}

// Routes registers the API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/verify", h.verify)
	mux.HandleFunc("POST /v1/dns/encode", h.encodeDNS)
	if h.signer != nil {
		mux.HandleFunc("POST /v1/sign", h.sign)
	}
	if h.audit != nil {
		mux.HandleFunc("GET /v1/audit", h.queryAudit)
		mux.HandleFunc("GET /v1/audit/stats", h.auditStats)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})
	mux.Handle("GET /metrics", h.metrics.Handler())
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var body VerifyBody
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	req := VerifyRequest{PublicKey: body.PublicKey, KeyName: body.Key}
	var detail string
	if len(body.Result) > 0 {
		var res signdata.Result
		if err := json.Unmarshal(body.Result, &res); err != nil {
			detail = err.Error()
		} else {
			req.Result = &res
		}
	}

	out, err := h.pipeline.Verify(r.Context(), req)
	if err != nil {
		h.logger.Error("verification failed", "error", err, "request_id", RequestID(r.Context()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "verification unavailable"})
		return
	}
	if out.Detail == "" {
		out.Detail = detail
	}

	writeJSON(w, statusFor(out.Decision), VerifyResponse{
		Verified:    out.Verified,
		Decision:    string(out.Decision),
		RequestID:   RequestID(r.Context()),
		Fingerprint: out.Fingerprint,
		Digest:      out.Digest,
		Detail:      out.Detail,
	})
}

func statusFor(d Decision) int {
	switch d {
	case DecisionVerified:
		return http.StatusOK
	case DecisionMalformed:
		return http.StatusBadRequest
	case DecisionRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}

func (h *Handler) encodeDNS(w http.ResponseWriter, r *http.Request) {
	var body DNSBody
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	enc, err := dnsname.Encode(body.Domain)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, DNSResponse{
		Domain: body.Domain,
		Hex:    hex.EncodeToString(enc),
		Length: len(enc),
	})
}

func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	var body SignBody
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if body.Payload.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload is required"})
		return
	}
	kind := string(body.Payload.Value.Kind())

	kp, err := identity.LoadKeypair(h.keysDir, body.Key)
	if err != nil {
		h.metrics.ObserveSign(kind, "key")
		h.logger.Warn("sign: key unavailable", "key", body.Key, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not available"})
		return
	}
	addr := body.Address
	if addr == "" {
		addr = kp.Address
	}

	res, err := h.signer.Sign(signdata.Request{
		Payload:   body.Payload.Value,
		Domain:    body.Domain,
		SecretKey: kp.PrivateKey,
		Address:   addr,
	})
	if err != nil {
		h.metrics.ObserveSign(kind, string(signdata.StageOf(err)))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.metrics.ObserveSign(kind, "ok")
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) queryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := audit.QueryOpts{
		Decision:   q.Get("decision"),
		Domain:     q.Get("domain"),
		Since:      q.Get("since"),
		Unverified: q.Get("unverified") == "true",
	}
	if a := q.Get("address"); a != "" {
		acct, err := address.Parse(a)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		opts.Address = acct.Raw()
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 0-1000"})
			return
		}
		opts.Limit = n
	}

	entries, err := h.audit.Query(opts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) auditStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.audit.Stats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, safefile.MaxDocument))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Log is best-effort; header already sent so we cannot change the status code.
		slog.Default().Error("writeJSON: encode failed", "error", err)
	}
}
