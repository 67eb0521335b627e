package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/user"
)

const rolesClaim = "roles"

// TokenValidator turns a parsed access token into the caller it names.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Principal checks the registered claims at now and returns the caller. The
// subject must be a user id and every role in the roles claim must be known.
func (v TokenValidator) Principal(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) (common.Principal, error) {
	switch {
	case tok == nil:
		return common.Principal{}, errors.New("auth: token is nil")
	case algorithm == "":
		return common.Principal{}, errors.New("auth: token missing algorithm")
	case v.Algorithm != "" && algorithm != v.Algorithm:
		return common.Principal{}, fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	if err := jwt.Validate(tok, v.options(now)...); err != nil {
		return common.Principal{}, err
	}
	id, err := strconv.ParseInt(tok.Subject(), 10, 64)
	if err != nil || id <= 0 {
		return common.Principal{}, fmt.Errorf("auth: subject %q is not a user id", tok.Subject())
	}
	roles, err := claimedRoles(tok)
	if err != nil {
		return common.Principal{}, err
	}
	return common.Principal{UserID: id, Roles: roles}, nil
}

func (v TokenValidator) options(now time.Time) []jwt.ValidateOption {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithAcceptableSkew(v.ClockSkew),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return opts
}

func claimedRoles(tok jwt.Token) ([]string, error) {
	raw, ok := tok.Get(rolesClaim)
	if !ok {
		return nil, nil
	}
	var names []string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		names = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("auth: role %v is not a string", item)
			}
			names = append(names, s)
		}
	default:
		return nil, errors.New("auth: roles claim must be a list")
	}
	for _, name := range names {
		if _, ok := user.ParseRole(name); !ok {
			return nil, fmt.Errorf("auth: unknown role %q", name)
		}
	}
	return names, nil
}
