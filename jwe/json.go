package jwe

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xjose/internal/jsonutil"
	"github.com/effective-security/xjose/x/b64url"
)

type jsonRecipient struct {
	Header       header.Header `json:"header,omitempty"`
	EncryptedKey string        `json:"encrypted_key,omitempty"`
}

type jsonShared struct {
	Protected   string        `json:"protected,omitempty"`
	Unprotected header.Header `json:"unprotected,omitempty"`
}

type jsonContent struct {
	AAD        *string `json:"aad,omitempty"`
	IV         *string `json:"iv,omitempty"`
	Ciphertext *string `json:"ciphertext,omitempty"`
	Tag        *string `json:"tag,omitempty"`
}

type jsonGeneral struct {
	jsonShared
	Recipients []jsonRecipient `json:"recipients"`
	jsonContent
	// Header and EncryptedKey are not allowed in general syntax
	Header       json.RawMessage `json:"header,omitempty"`
	EncryptedKey json.RawMessage `json:"encrypted_key,omitempty"`
}

type jsonFlattened struct {
	jsonShared
	jsonRecipient
	jsonContent
	// Recipients is not allowed in flattened syntax
	Recipients json.RawMessage `json:"recipients,omitempty"`
}

// JSONFlattened is the flattened JWE JSON Serialization, RFC 7516 Section 7.2.2
type JSONFlattened struct{}

// Name returns jwe_json_flattened
func (JSONFlattened) Name() string { return JSONFlattenedSerializer }

// Serialize returns JSON object with the recipient by index
func (JSONFlattened) Serialize(j *JWE, recipientIndex int) (string, error) {
	r, err := j.Recipient(recipientIndex)
	if err != nil {
		return "", err
	}
	return jsonutil.Marshal(jsonFlattened{
		jsonShared:    toJSONShared(j),
		jsonRecipient: toJSONRecipient(r),
		jsonContent:   toJSONContent(j),
	})
}

// Unserialize parses flattened JSON JWE
func (JSONFlattened) Unserialize(input string) (*JWE, error) {
	var v jsonFlattened
	if err := jsonutil.DecodeObject(input, &v); err != nil {
		return nil, err
	}
	if v.Recipients != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "recipients member is not allowed in flattened JWE")
	}
	r, err := fromJSONRecipient(v.jsonRecipient)
	if err != nil {
		return nil, err
	}
	return fromJSON(v.jsonShared, []*RecipientInfo{r}, v.jsonContent)
}

// JSONGeneral is the general JWE JSON Serialization, RFC 7516 Section 7.2.1
type JSONGeneral struct{}

// Name returns jwe_json_general
func (JSONGeneral) Name() string { return JSONGeneralSerializer }

// Serialize returns JSON object with all the recipients,
// recipientIndex is ignored
func (JSONGeneral) Serialize(j *JWE, _ int) (string, error) {
	if len(j.recipients) == 0 {
		return "", errors.New("JWE has no recipients")
	}
	v := jsonGeneral{
		jsonShared:  toJSONShared(j),
		jsonContent: toJSONContent(j),
	}
	for _, r := range j.recipients {
		v.Recipients = append(v.Recipients, toJSONRecipient(r))
	}
	return jsonutil.Marshal(v)
}

// Unserialize parses general JSON JWE
func (JSONGeneral) Unserialize(input string) (*JWE, error) {
	var v jsonGeneral
	if err := jsonutil.DecodeObject(input, &v); err != nil {
		return nil, err
	}
	if v.Header != nil || v.EncryptedKey != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "header and encrypted_key members are not allowed in general JWE")
	}
	if len(v.Recipients) == 0 {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing recipients")
	}
	recipients := make([]*RecipientInfo, 0, len(v.Recipients))
	for _, jr := range v.Recipients {
		r, err := fromJSONRecipient(jr)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	return fromJSON(v.jsonShared, recipients, v.jsonContent)
}

func toJSONShared(j *JWE) jsonShared {
	s := jsonShared{Protected: j.encodedSharedProtected}
	if len(j.sharedUnprotected) > 0 {
		s.Unprotected = j.sharedUnprotected
	}
	return s
}

func toJSONRecipient(r *RecipientInfo) jsonRecipient {
	jr := jsonRecipient{EncryptedKey: b64url.Encode(r.encryptedKey)}
	if len(r.header) > 0 {
		jr.Header = r.header
	}
	return jr
}

func toJSONContent(j *JWE) jsonContent {
	c := jsonContent{
		IV:         encoded(j.iv),
		Ciphertext: encoded(j.ciphertext),
		Tag:        encoded(j.tag),
	}
	if j.aad != nil {
		c.AAD = encoded(j.aad)
	}
	return c
}

func encoded(b []byte) *string {
	s := b64url.Encode(b)
	return &s
}

func fromJSONRecipient(jr jsonRecipient) (*RecipientInfo, error) {
	ek, err := b64url.Decode(jr.EncryptedKey)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "invalid encrypted key encoding")
	}
	return &RecipientInfo{header: jr.Header.Clone(), encryptedKey: ek}, nil
}

func fromJSON(shared jsonShared, recipients []*RecipientInfo, c jsonContent) (*JWE, error) {
	if c.Ciphertext == nil {
		return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing ciphertext")
	}
	if shared.Protected == "" && len(shared.Unprotected) == 0 {
		for _, r := range recipients {
			if len(r.header) == 0 {
				return nil, errors.WithMessage(xjose.ErrInvalidFormat, "missing header")
			}
		}
	}
	var iv, ciphertext, tag, aad []byte
	var err error
	for _, f := range []struct {
		name string
		in   *string
		out  *[]byte
	}{
		{"iv", c.IV, &iv},
		{"ciphertext", c.Ciphertext, &ciphertext},
		{"tag", c.Tag, &tag},
		{"aad", c.AAD, &aad},
	} {
		if f.in == nil {
			continue
		}
		if *f.out, err = b64url.Decode(*f.in); err != nil {
			return nil, errors.WithMessagef(xjose.ErrInvalidFormat, "invalid %s encoding", f.name)
		}
		if *f.out == nil {
			*f.out = []byte{}
		}
	}
	return newJWE(shared.Protected, shared.Unprotected, recipients, iv, ciphertext, tag, aad)
}
