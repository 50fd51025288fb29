package checker_test

import (
	"testing"
	"time"

	"github.com/effective-security/xjose"
	"github.com/effective-security/xjose/checker"
	"github.com/effective-security/xjose/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderCheckerManager(t *testing.T) {
	m, err := checker.NewHeaderCheckerManager(
		checker.NewAlgorithmChecker([]string{"HS256", "ES256"}, true),
		checker.UnencodedPayloadChecker{},
		checker.NewIsEqualChecker("typ", "JWT", false),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"alg", "b64", "typ"}, m.Names())

	_, err = checker.NewHeaderCheckerManager(
		checker.NewAlgorithmChecker([]string{"HS256"}, true),
		checker.NewAlgorithmChecker([]string{"ES256"}, true),
	)
	assert.EqualError(t, err, "header checker already registered: alg")

	tcases := []struct {
		name        string
		protected   header.Header
		unprotected header.Header
		mandatory   []string
		err         string
	}{
		{
			name:      "valid",
			protected: header.Header{"alg": "HS256"},
		},
		{
			name:        "unprotected typ",
			protected:   header.Header{"alg": "ES256"},
			unprotected: header.Header{"typ": "JWT"},
		},
		{
			name:      "unknown header is ignored",
			protected: header.Header{"alg": "HS256", "foo": "bar"},
		},
		{
			name:      "alg not allowed",
			protected: header.Header{"alg": "none"},
			err:       `"alg": unsupported algorithm: "none": header validation failed`,
		},
		{
			name:        "alg unprotected",
			unprotected: header.Header{"alg": "HS256"},
			err:         `header parameter "alg" must be protected: header validation failed`,
		},
		{
			name:        "duplicate",
			protected:   header.Header{"alg": "HS256", "typ": "JWT"},
			unprotected: header.Header{"typ": "JWT"},
			err:         `duplicate header parameter: "typ": header validation failed`,
		},
		{
			name:      "mandatory",
			protected: header.Header{"alg": "HS256"},
			mandatory: []string{"alg", "kid"},
			err:       `missing mandatory header parameter: "kid": header validation failed`,
		},
		{
			name:      "typ mismatch",
			protected: header.Header{"alg": "HS256", "typ": "JOSE"},
			err:       `"typ": unexpected value: JOSE: header validation failed`,
		},
		{
			name:      "crit checked",
			protected: header.Header{"alg": "HS256", "b64": false, "crit": []any{"b64"}},
		},
		{
			name:      "crit unknown",
			protected: header.Header{"alg": "HS256", "foo": "bar", "crit": []any{"foo"}},
			err:       `critical header parameter "foo" is missing or has not been checked: header validation failed`,
		},
		{
			name:      "crit missing",
			protected: header.Header{"alg": "HS256", "crit": []string{"b64"}},
			err:       `critical header parameter "b64" is missing or has not been checked: header validation failed`,
		},
		{
			name:      "crit empty",
			protected: header.Header{"alg": "HS256", "crit": []any{}},
			err:       `crit must not be empty: header validation failed`,
		},
		{
			name:        "crit unprotected",
			protected:   header.Header{"alg": "HS256"},
			unprotected: header.Header{"crit": []any{"typ"}, "typ": "JWT"},
			err:         `"crit" header must be protected: header validation failed`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Check(tc.protected, tc.unprotected, tc.mandatory...)
			if tc.err == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tc.err)
				assert.ErrorIs(t, err, xjose.ErrHeaderValidation)
			}
		})
	}
}

func TestHeaderCheckerManager_Empty(t *testing.T) {
	m, err := checker.NewHeaderCheckerManager()
	require.NoError(t, err)

	assert.NoError(t, m.Check(header.Header{"alg": "HS256"}, nil))

	// a critical parameter is never accepted without a checker
	err = m.Check(header.Header{"alg": "HS256", "b64": false, "crit": []any{"b64"}}, nil)
	assert.ErrorIs(t, err, xjose.ErrHeaderValidation)
}

func TestTimeCheckers(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	exp := checker.NewExpirationTimeChecker(checker.WithClock(clock), checker.WithSkew(time.Minute))
	assert.Equal(t, "exp", exp.SupportedHeader())
	assert.Equal(t, "exp", exp.SupportedClaim())
	assert.False(t, exp.ProtectedHeaderOnly())

	assert.NoError(t, exp.CheckClaim(float64(now.Unix()+10)))
	assert.NoError(t, exp.CheckClaim(now.Unix()-30))
	assert.EqualError(t, exp.CheckClaim(now.Unix()-60), "token is expired")
	assert.EqualError(t, exp.CheckClaim("tomorrow"), "exp must be a NumericDate")

	nbf := checker.NewNotBeforeChecker(checker.WithClock(clock))
	assert.NoError(t, nbf.CheckClaim(now.Unix()))
	assert.EqualError(t, nbf.CheckClaim(now.Unix()+1), "token is not valid yet")

	iat := checker.NewIssuedAtChecker(checker.WithClock(clock), checker.WithSkew(5*time.Second), checker.WithProtectedHeaderOnly())
	assert.True(t, iat.ProtectedHeaderOnly())
	assert.NoError(t, iat.CheckHeader(now.Unix()+5))
	assert.EqualError(t, iat.CheckHeader(now.Unix()+6), "token used before issued")

	m, err := checker.NewHeaderCheckerManager(exp)
	require.NoError(t, err)
	err = m.Check(header.Header{"exp": float64(now.Unix() - 120)}, nil)
	assert.ErrorIs(t, err, xjose.ErrHeaderValidation)
	assert.EqualError(t, err, `"exp": token is expired: header validation failed`)
}

func TestClaimCheckerManager(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	m, err := checker.NewClaimCheckerManager(
		checker.NewExpirationTimeChecker(checker.WithClock(clock)),
		checker.NewNotBeforeChecker(checker.WithClock(clock)),
		checker.NewIssuerChecker([]string{"joe"}, false),
		checker.NewAudienceChecker("svc", false),
		checker.NewCallableChecker("scope", func(v any) bool {
			s, ok := v.(string)
			return ok && s == "read"
		}, false),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"exp", "nbf", "iss", "aud", "scope"}, m.Names())

	_, err = checker.NewClaimCheckerManager(checker.NewIssuerChecker(nil, false), checker.NewIssuerChecker(nil, false))
	assert.EqualError(t, err, "claim checker already registered: iss")

	claims, err := checker.ParseClaims([]byte(`{"iss":"joe","exp":1700000100,"aud":["web","svc"],"sub":"alice"}`))
	require.NoError(t, err)

	checked, err := m.Check(claims, "iss", "sub")
	require.NoError(t, err)
	assert.Equal(t, []string{"exp", "iss", "aud"}, checked)

	_, err = m.Check(claims, "jti")
	assert.EqualError(t, err, `missing mandatory claim: "jti": claim validation failed`)

	tcases := []struct {
		name   string
		claims string
		err    string
	}{
		{
			name:   "expired",
			claims: `{"exp":1699999999}`,
			err:    `"exp": token is expired: claim validation failed`,
		},
		{
			name:   "not yet",
			claims: `{"nbf":1700000001}`,
			err:    `"nbf": token is not valid yet: claim validation failed`,
		},
		{
			name:   "issuer",
			claims: `{"iss":"bob"}`,
			err:    `"iss": bob: token has invalid issuer: claim validation failed`,
		},
		{
			name:   "audience",
			claims: `{"aud":"web"}`,
			err:    `"aud": "svc" is not in [web]: token has invalid audience: claim validation failed`,
		},
		{
			name:   "callable",
			claims: `{"scope":"write"}`,
			err:    `"scope": invalid value: claim validation failed`,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.CheckPayload([]byte(tc.claims))
			assert.EqualError(t, err, tc.err)
			assert.ErrorIs(t, err, xjose.ErrClaimValidation)
		})
	}

	_, err = m.CheckPayload([]byte(`[1,2]`))
	assert.ErrorIs(t, err, xjose.ErrClaimValidation)
}

func TestClaims(t *testing.T) {
	c, err := checker.ParseClaims([]byte(`{"iss":"joe","exp":1300819380,"admin":true,"n":42,"s":"17","aud":"a"}`))
	require.NoError(t, err)

	assert.True(t, c.Has("iss"))
	assert.False(t, c.Has("sub"))
	assert.Equal(t, "joe", c.String("iss"))
	assert.Equal(t, "42", c.String("n"))
	assert.Equal(t, "true", c.String("admin"))
	assert.Equal(t, "", c.String("sub"))
	assert.True(t, c.Bool("admin"))
	assert.False(t, c.Bool("iss"))
	assert.Equal(t, 42, c.Int("n"))
	assert.Equal(t, 17, c.Int("s"))
	assert.Equal(t, 0, c.Int("iss"))
	assert.Equal(t, []string{"a"}, c.Audience())

	exp := c.Time("exp")
	require.NotNil(t, exp)
	assert.Equal(t, int64(1300819380), exp.Unix())
	assert.Nil(t, c.Time("iss"))
	assert.Nil(t, c.Time("nbf"))

	var std struct {
		Issuer string `json:"iss"`
		Admin  bool   `json:"admin"`
	}
	require.NoError(t, c.To(&std))
	assert.Equal(t, "joe", std.Issuer)
	assert.True(t, std.Admin)

	assert.Contains(t, c.Marshal(), `"iss":"joe"`)

	for _, raw := range []string{``, `null`, `"str"`, `{"a":1} {}`, `{"a":1}}`, `{}]`} {
		_, err = checker.ParseClaims([]byte(raw))
		assert.ErrorIs(t, err, xjose.ErrInvalidFormat, raw)
	}
}
