// Package dataprotection protects data at rest with JWE
package dataprotection

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Provider interface for data protection
type Provider interface {
	// Protect returns protected blob
	Protect(ctx context.Context, data []byte) ([]byte, error)
	// Unprotect returns unprotected data
	Unprotect(ctx context.Context, protected []byte) ([]byte, error)
	// IsReady returns true when provider has encryption keys
	IsReady() bool
}

// ProtectObject returns the protected JSON value of the object,
// the result is URL safe
func ProtectObject(ctx context.Context, p Provider, v any) (string, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return "", errors.WithMessage(err, "failed to marshal")
	}
	protected, err := p.Protect(ctx, js)
	if err != nil {
		return "", errors.WithMessage(err, "failed to protect")
	}
	return string(protected), nil
}

// UnprotectObject unprotects and unmarshals the value returned by ProtectObject
func UnprotectObject(ctx context.Context, p Provider, protected string, v any) error {
	js, err := p.Unprotect(ctx, []byte(protected))
	if err != nil {
		return errors.WithMessage(err, "failed to unprotect data")
	}
	if err = json.Unmarshal(js, v); err != nil {
		return errors.WithMessage(err, "failed to unmarshal")
	}
	return nil
}
