package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/robalobadob/wolfsheep/internal/errs"
)

// Encode wraps payload in an envelope of type t.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode: empty envelope type")
	}
	if payload == nil {
		return nil, fmt.Errorf("encode %s: nil payload", t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

// MustEncode is Encode for payloads that always marshal.
func MustEncode(t string, payload any) []byte {
	b, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeEnvelope parses one frame. Malformed frames are protocol errors.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, errs.New(errs.CodeProtocol, "empty-frame")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, errs.Wrap(errs.CodeProtocol, "malformed-envelope", err)
	}
	if e.T == "" {
		return Envelope{}, errs.New(errs.CodeProtocol, "missing-type")
	}
	return e, nil
}

// DecodePayload unmarshals the envelope payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, errs.Newf(errs.CodeProtocol, "empty-payload", "empty payload for type %q", env.T)
	}
	if err := json.Unmarshal(env.P, &out); err != nil {
		return out, errs.Wrap(errs.CodeProtocol, "malformed-payload", fmt.Errorf("%s: %w", env.T, err))
	}
	return out, nil
}
