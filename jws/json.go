package jws

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/internal/jsonutil"
	"github.com/effective-security/xjose/x/b64url"
)

type jsonSignature struct {
	Protected string        `json:"protected,omitempty"`
	Header    header.Header `json:"header,omitempty"`
	Signature *string       `json:"signature,omitempty"`
}

type jsonGeneral struct {
	Payload    *string         `json:"payload,omitempty"`
	Signatures []jsonSignature `json:"signatures"`
	// Signature is not allowed in general syntax
	Signature json.RawMessage `json:"signature,omitempty"`
}

type jsonFlattened struct {
	Payload *string `json:"payload,omitempty"`
	jsonSignature
	// Signatures is not allowed in flattened syntax
	Signatures json.RawMessage `json:"signatures,omitempty"`
}

// JSONFlattened is the flattened JWS JSON Serialization, RFC 7515 Section 7.2.2
type JSONFlattened struct{}

// Name returns jws_json_flattened
func (JSONFlattened) Name() string { return JSONFlattenedSerializer }

// Serialize returns JSON object with the signature by index
func (JSONFlattened) Serialize(j *JWS, signatureIndex int) (string, error) {
	s, err := j.Signature(signatureIndex)
	if err != nil {
		return "", err
	}
	v := jsonFlattened{
		Payload:       jsonPayload(j),
		jsonSignature: toJSONSignature(s),
	}
	return jsonutil.Marshal(v)
}

// Unserialize parses flattened JSON JWS
func (JSONFlattened) Unserialize(input string) (*JWS, error) {
	var v jsonFlattened
	if err := jsonutil.DecodeObject(input, &v); err != nil {
		return nil, err
	}
	if v.Signatures != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "signatures member is not allowed in flattened JWS")
	}
	s, err := fromJSONSignature(v.jsonSignature)
	if err != nil {
		return nil, err
	}
	return fromJSONPayload(v.Payload, []*Signature{s})
}

// JSONGeneral is the general JWS JSON Serialization, RFC 7515 Section 7.2.1
type JSONGeneral struct{}

// Name returns jws_json_general
func (JSONGeneral) Name() string { return JSONGeneralSerializer }

// Serialize returns JSON object with all the signatures,
// signatureIndex is ignored
func (JSONGeneral) Serialize(j *JWS, _ int) (string, error) {
	if len(j.signatures) == 0 {
		return "", errors.New("JWS has no signatures")
	}
	v := jsonGeneral{
		Payload: jsonPayload(j),
	}
	for _, s := range j.signatures {
		v.Signatures = append(v.Signatures, toJSONSignature(s))
	}
	return jsonutil.Marshal(v)
}

// Unserialize parses general JSON JWS
func (JSONGeneral) Unserialize(input string) (*JWS, error) {
	var v jsonGeneral
	if err := jsonutil.DecodeObject(input, &v); err != nil {
		return nil, err
	}
	if v.Signature != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "signature member is not allowed in general JWS")
	}
	if len(v.Signatures) == 0 {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing signatures")
	}
	signatures := make([]*Signature, 0, len(v.Signatures))
	for _, js := range v.Signatures {
		s, err := fromJSONSignature(js)
		if err != nil {
			return nil, err
		}
		signatures = append(signatures, s)
	}
	return fromJSONPayload(v.Payload, signatures)
}

func jsonPayload(j *JWS) *string {
	if j.detached {
		return nil
	}
	p := j.EncodedPayload()
	return &p
}

func fromJSONPayload(payload *string, signatures []*Signature) (*JWS, error) {
	if payload == nil {
		return newJWS("", true, signatures)
	}
	return newJWS(*payload, false, signatures)
}

func toJSONSignature(s *Signature) jsonSignature {
	sig := b64url.Encode(s.signature)
	js := jsonSignature{
		Protected: s.encodedProtected,
		Signature: &sig,
	}
	if len(s.unprotected) > 0 {
		js.Header = s.unprotected
	}
	return js
}

func fromJSONSignature(js jsonSignature) (*Signature, error) {
	if js.Signature == nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing signature")
	}
	if js.Protected == "" && len(js.Header) == 0 {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing header")
	}
	signature, err := b64url.Decode(*js.Signature)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid signature encoding")
	}
	return newSignature(js.Protected, js.Header, signature)
}
