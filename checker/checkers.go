package checker

import (
	"reflect"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose/header"
	"github.com/golang-jwt/jwt/v5"
)

// AlgorithmChecker checks that alg is in the list
type AlgorithmChecker struct {
	algorithms    []string
	protectedOnly bool
}

// NewAlgorithmChecker returns checker of alg header
func NewAlgorithmChecker(algorithms []string, protectedOnly bool) *AlgorithmChecker {
	return &AlgorithmChecker{
		algorithms:    append([]string(nil), algorithms...),
		protectedOnly: protectedOnly,
	}
}

func (c *AlgorithmChecker) SupportedHeader() string   { return header.Algorithm }
func (c *AlgorithmChecker) ProtectedHeaderOnly() bool { return c.protectedOnly }

func (c *AlgorithmChecker) CheckHeader(value any) error {
	alg, ok := value.(string)
	if !ok {
		return errors.New("alg must be a string")
	}
	if !slices.Contains(c.algorithms, alg) {
		return errors.Errorf("unsupported algorithm: %q", alg)
	}
	return nil
}

// UnencodedPayloadChecker checks b64 header, RFC 7797
type UnencodedPayloadChecker struct{}

func (UnencodedPayloadChecker) SupportedHeader() string   { return header.Base64Payload }
func (UnencodedPayloadChecker) ProtectedHeaderOnly() bool { return true }

func (UnencodedPayloadChecker) CheckHeader(value any) error {
	if _, ok := value.(bool); !ok {
		return errors.New("b64 must be a boolean")
	}
	return nil
}

// IsEqualChecker checks that the header parameter or claim
// has the expected value
type IsEqualChecker struct {
	name          string
	expected      any
	protectedOnly bool
}

// NewIsEqualChecker returns IsEqualChecker
func NewIsEqualChecker(name string, expected any, protectedOnly bool) *IsEqualChecker {
	return &IsEqualChecker{
		name:          name,
		expected:      expected,
		protectedOnly: protectedOnly,
	}
}

func (c *IsEqualChecker) SupportedHeader() string   { return c.name }
func (c *IsEqualChecker) SupportedClaim() string    { return c.name }
func (c *IsEqualChecker) ProtectedHeaderOnly() bool { return c.protectedOnly }
func (c *IsEqualChecker) CheckHeader(value any) error {
	return c.check(value)
}
func (c *IsEqualChecker) CheckClaim(value any) error {
	return c.check(value)
}

func (c *IsEqualChecker) check(value any) error {
	if !reflect.DeepEqual(value, c.expected) {
		return errors.Errorf("unexpected value: %v", value)
	}
	return nil
}

// CallableChecker checks the value with a function
type CallableChecker struct {
	name          string
	fn            func(any) bool
	protectedOnly bool
}

// NewCallableChecker returns CallableChecker
func NewCallableChecker(name string, fn func(any) bool, protectedOnly bool) *CallableChecker {
	return &CallableChecker{
		name:          name,
		fn:            fn,
		protectedOnly: protectedOnly,
	}
}

func (c *CallableChecker) SupportedHeader() string   { return c.name }
func (c *CallableChecker) SupportedClaim() string    { return c.name }
func (c *CallableChecker) ProtectedHeaderOnly() bool { return c.protectedOnly }
func (c *CallableChecker) CheckHeader(value any) error {
	return c.check(value)
}
func (c *CallableChecker) CheckClaim(value any) error {
	return c.check(value)
}

func (c *CallableChecker) check(value any) error {
	if !c.fn(value) {
		return errors.New("invalid value")
	}
	return nil
}

// IssuerChecker checks iss claim, or iss header replicated per RFC 7519 Section 5.3
type IssuerChecker struct {
	issuers       []string
	protectedOnly bool
}

// NewIssuerChecker returns IssuerChecker
func NewIssuerChecker(issuers []string, protectedOnly bool) *IssuerChecker {
	return &IssuerChecker{
		issuers:       append([]string(nil), issuers...),
		protectedOnly: protectedOnly,
	}
}

func (c *IssuerChecker) SupportedHeader() string   { return "iss" }
func (c *IssuerChecker) SupportedClaim() string    { return "iss" }
func (c *IssuerChecker) ProtectedHeaderOnly() bool { return c.protectedOnly }
func (c *IssuerChecker) CheckHeader(value any) error {
	return c.check(value)
}
func (c *IssuerChecker) CheckClaim(value any) error {
	return c.check(value)
}

func (c *IssuerChecker) check(value any) error {
	iss, ok := value.(string)
	if !ok || !slices.Contains(c.issuers, iss) {
		return errors.WithMessagef(jwt.ErrTokenInvalidIssuer, "%v", value)
	}
	return nil
}

// AudienceChecker checks that aud contains the audience
type AudienceChecker struct {
	audience      string
	protectedOnly bool
}

// NewAudienceChecker returns AudienceChecker
func NewAudienceChecker(audience string, protectedOnly bool) *AudienceChecker {
	return &AudienceChecker{
		audience:      audience,
		protectedOnly: protectedOnly,
	}
}

func (c *AudienceChecker) SupportedHeader() string   { return "aud" }
func (c *AudienceChecker) SupportedClaim() string    { return "aud" }
func (c *AudienceChecker) ProtectedHeaderOnly() bool { return c.protectedOnly }
func (c *AudienceChecker) CheckHeader(value any) error {
	return c.check(value)
}
func (c *AudienceChecker) CheckClaim(value any) error {
	return c.check(value)
}

func (c *AudienceChecker) check(value any) error {
	aud, err := jwt.MapClaims{"aud": value}.GetAudience()
	if err != nil {
		return errors.WithStack(err)
	}
	if !slices.Contains(aud, c.audience) {
		return errors.WithMessagef(jwt.ErrTokenInvalidAudience, "%q is not in %v", c.audience, []string(aud))
	}
	return nil
}

// TimeOption configures the time checkers
type TimeOption func(*timeOptions)

type timeOptions struct {
	clock         func() time.Time
	skew          time.Duration
	protectedOnly bool
}

// WithClock sets the clock, time.Now by default
func WithClock(clock func() time.Time) TimeOption {
	return func(o *timeOptions) {
		o.clock = clock
	}
}

// WithSkew sets the allowed clock skew
func WithSkew(skew time.Duration) TimeOption {
	return func(o *timeOptions) {
		o.skew = skew
	}
}

// WithProtectedHeaderOnly requires the header parameter to be protected
func WithProtectedHeaderOnly() TimeOption {
	return func(o *timeOptions) {
		o.protectedOnly = true
	}
}

func newTimeOptions(opts []TimeOption) timeOptions {
	o := timeOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TimeChecker checks a NumericDate against the clock
type TimeChecker struct {
	name  string
	opts  timeOptions
	valid func(now, value time.Time, skew time.Duration) bool
	cause error
}

func (c *TimeChecker) SupportedHeader() string   { return c.name }
func (c *TimeChecker) SupportedClaim() string    { return c.name }
func (c *TimeChecker) ProtectedHeaderOnly() bool { return c.opts.protectedOnly }
func (c *TimeChecker) CheckHeader(value any) error {
	return c.check(value)
}
func (c *TimeChecker) CheckClaim(value any) error {
	return c.check(value)
}

func (c *TimeChecker) check(value any) error {
	nd, err := numericDate(value)
	if err != nil || nd == nil {
		return errors.Errorf("%s must be a NumericDate", c.name)
	}
	if !c.valid(c.opts.clock(), nd.Time, c.opts.skew) {
		return errors.WithStack(c.cause)
	}
	return nil
}

// NewExpirationTimeChecker returns checker of exp,
// the current time must be before exp
func NewExpirationTimeChecker(opts ...TimeOption) *TimeChecker {
	return &TimeChecker{
		name: "exp",
		opts: newTimeOptions(opts),
		valid: func(now, exp time.Time, skew time.Duration) bool {
			return now.Before(exp.Add(skew))
		},
		cause: jwt.ErrTokenExpired,
	}
}

// NewNotBeforeChecker returns checker of nbf,
// the current time must be equal or after nbf
func NewNotBeforeChecker(opts ...TimeOption) *TimeChecker {
	return &TimeChecker{
		name: "nbf",
		opts: newTimeOptions(opts),
		valid: func(now, nbf time.Time, skew time.Duration) bool {
			return !now.Add(skew).Before(nbf)
		},
		cause: jwt.ErrTokenNotValidYet,
	}
}

// NewIssuedAtChecker returns checker of iat,
// the token must not be issued in the future
func NewIssuedAtChecker(opts ...TimeOption) *TimeChecker {
	return &TimeChecker{
		name: "iat",
		opts: newTimeOptions(opts),
		valid: func(now, iat time.Time, skew time.Duration) bool {
			return !now.Add(skew).Before(iat)
		},
		cause: jwt.ErrTokenUsedBeforeIssued,
	}
}
