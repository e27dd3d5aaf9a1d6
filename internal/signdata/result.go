package signdata

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oktsec/signdata/internal/payload"
)

// Request is everything needed for one Sign call.
type Request struct {
	Payload   payload.Payload
	Domain    string
	SecretKey []byte
	Address   string
}

// Result is the transmissible artifact of Sign. Every field is re-fed into
// the digest on verification; Address and Domain are kept exactly as supplied.
type Result struct {
	// Signature is base64 of the detached signature.
	Signature string
	Address   string
	// Timestamp is in unix seconds.
	Timestamp int64
	Domain    string
	Payload   payload.Payload
}

type resultWire struct {
	Signature string           `json:"signature"`
	Address   string           `json:"address"`
	Timestamp int64            `json:"timestamp"`
	Domain    string           `json:"domain"`
	Payload   payload.Envelope `json:"payload"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultWire{
		Signature: r.Signature,
		Address:   r.Address,
		Timestamp: r.Timestamp,
		Domain:    r.Domain,
		Payload:   payload.Envelope{Value: r.Payload},
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w resultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Result{
		Signature: w.Signature,
		Address:   w.Address,
		Timestamp: w.Timestamp,
		Domain:    w.Domain,
		Payload:   w.Payload.Value,
	}
	return nil
}

// Stage identifies which step of digest construction failed.
type Stage string

const (
	StageAddress   Stage = "address"
	StageDomain    Stage = "domain"
	StageTimestamp Stage = "timestamp"
	StagePayload   Stage = "payload"
	StageDigest    Stage = "digest"
	StageSign      Stage = "sign"
)

// StageError attributes a construction failure to its stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("signdata: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage of err, or "" if err is not a StageError.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
