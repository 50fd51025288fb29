// Package jsonutil provides strict decoding of the JSON serializations.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
)

// Marshal returns JSON as string, HTML characters are not escaped
func Marshal(v any) (string, error) {
	var buf bytes.Buffer
	e := json.NewEncoder(&buf)
	e.SetEscapeHTML(false)
	if err := e.Encode(v); err != nil {
		return "", errors.WithMessage(err, "unable to serialize")
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

// DecodeObject decodes a single JSON object,
// the errors are ErrInvalidFormat
func DecodeObject(input string, v any) error {
	trimmed := bytes.TrimSpace([]byte(input))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.WithMessage(xjose.ErrInvalidFormat, "JSON object is expected")
	}
	if err := Unmarshal(trimmed, v, false); err != nil {
		return errors.WithMessage(xjose.ErrInvalidFormat, err.Error())
	}
	return nil
}

// Unmarshal decodes exactly one JSON value from raw,
// anything but whitespace after the value is an error.
func Unmarshal(raw []byte, v any, useNumber bool) error {
	d := json.NewDecoder(bytes.NewReader(raw))
	if useNumber {
		d.UseNumber()
	}
	if err := d.Decode(v); err != nil {
		return errors.New("invalid JSON")
	}
	if _, err := d.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
