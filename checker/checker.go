// Package checker provides header and claim checkers.
//
// Checkers run after a token is parsed and before the result is trusted:
// header checkers before any cryptographic operation,
// claim checkers on the verified payload.
package checker

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/header"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjose", "checker")

// HeaderChecker checks one header parameter
type HeaderChecker interface {
	// SupportedHeader returns the name of the header parameter
	SupportedHeader() string
	// ProtectedHeaderOnly returns true if the parameter
	// is not allowed in the unprotected header
	ProtectedHeaderOnly() bool
	// CheckHeader returns error if the value is not valid
	CheckHeader(value any) error
}

// ClaimChecker checks one claim
type ClaimChecker interface {
	// SupportedClaim returns the name of the claim
	SupportedClaim() string
	// CheckClaim returns error if the value is not valid
	CheckClaim(value any) error
}

// HeaderCheckerManager runs the header checkers.
// It is immutable after creation and safe for concurrent use.
type HeaderCheckerManager struct {
	checkers map[string]HeaderChecker
	names    []string
}

// NewHeaderCheckerManager returns HeaderCheckerManager.
// Only one checker per header parameter is allowed.
func NewHeaderCheckerManager(checkers ...HeaderChecker) (*HeaderCheckerManager, error) {
	m := &HeaderCheckerManager{
		checkers: make(map[string]HeaderChecker, len(checkers)),
	}
	for _, c := range checkers {
		name := c.SupportedHeader()
		if _, ok := m.checkers[name]; ok {
			return nil, errors.Errorf("header checker already registered: %s", name)
		}
		m.checkers[name] = c
		m.names = append(m.names, name)
	}
	return m, nil
}

// Names returns the names of the checked header parameters
func (m *HeaderCheckerManager) Names() []string {
	return append([]string(nil), m.names...)
}

// Check validates the headers of one signature or recipient.
// The protected and unprotected headers must not share a parameter,
// the mandatory parameters must be present,
// and every parameter listed in crit must be present and checked.
func (m *HeaderCheckerManager) Check(protected, unprotected header.Header, mandatory ...string) error {
	if _, err := header.Merge(protected, unprotected); err != nil {
		return err
	}
	if unprotected.Has(header.Critical) {
		return errors.WithMessage(xjose.ErrHeaderValidation, `"crit" header must be protected`)
	}
	for _, name := range mandatory {
		if !protected.Has(name) && !unprotected.Has(name) {
			return errors.WithMessagef(xjose.ErrHeaderValidation, "missing mandatory header parameter: %q", name)
		}
	}

	checked := map[string]bool{}
	for _, name := range m.names {
		c := m.checkers[name]
		value, ok := protected.Get(name)
		if !ok {
			if value, ok = unprotected.Get(name); !ok {
				continue
			}
			if c.ProtectedHeaderOnly() {
				return errors.WithMessagef(xjose.ErrHeaderValidation, "header parameter %q must be protected", name)
			}
		}
		if err := c.CheckHeader(value); err != nil {
			logger.KV(xlog.DEBUG, "reason", "check_header", "header", name, "err", err.Error())
			return asValidationError(err, xjose.ErrHeaderValidation, name)
		}
		checked[name] = true
	}

	if protected.Has(header.Critical) {
		crit, err := protected.Critical()
		if err != nil {
			return err
		}
		for _, name := range crit {
			if !checked[name] {
				return errors.WithMessagef(xjose.ErrHeaderValidation,
					"critical header parameter %q is missing or has not been checked", name)
			}
		}
	}
	return nil
}

// ClaimCheckerManager runs the claim checkers.
// It is immutable after creation and safe for concurrent use.
type ClaimCheckerManager struct {
	checkers map[string]ClaimChecker
	names    []string
}

// NewClaimCheckerManager returns ClaimCheckerManager.
// Only one checker per claim is allowed.
func NewClaimCheckerManager(checkers ...ClaimChecker) (*ClaimCheckerManager, error) {
	m := &ClaimCheckerManager{
		checkers: make(map[string]ClaimChecker, len(checkers)),
	}
	for _, c := range checkers {
		name := c.SupportedClaim()
		if _, ok := m.checkers[name]; ok {
			return nil, errors.Errorf("claim checker already registered: %s", name)
		}
		m.checkers[name] = c
		m.names = append(m.names, name)
	}
	return m, nil
}

// Names returns the names of the checked claims
func (m *ClaimCheckerManager) Names() []string {
	return append([]string(nil), m.names...)
}

// Check validates the claims, and returns the names of the checked claims
func (m *ClaimCheckerManager) Check(claims Claims, mandatory ...string) ([]string, error) {
	for _, name := range mandatory {
		if !claims.Has(name) {
			return nil, errors.WithMessagef(xjose.ErrClaimValidation, "missing mandatory claim: %q", name)
		}
	}

	var checked []string
	for _, name := range m.names {
		value, ok := claims[name]
		if !ok {
			continue
		}
		if err := m.checkers[name].CheckClaim(value); err != nil {
			logger.KV(xlog.DEBUG, "reason", "check_claim", "claim", name, "err", err.Error())
			return nil, asValidationError(err, xjose.ErrClaimValidation, name)
		}
		checked = append(checked, name)
	}
	return checked, nil
}

// CheckPayload parses the payload as JSON claims and checks them
func (m *ClaimCheckerManager) CheckPayload(payload []byte, mandatory ...string) (Claims, error) {
	claims, err := ParseClaims(payload)
	if err != nil {
		return nil, errors.WithMessage(xjose.ErrClaimValidation, err.Error())
	}
	if _, err = m.Check(claims, mandatory...); err != nil {
		return nil, err
	}
	return claims, nil
}

func asValidationError(err, sentinel error, name string) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return errors.WithMessagef(sentinel, "%q: %s", name, err.Error())
}
