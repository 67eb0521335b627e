package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-sales/internal/common"
)

// Tokens signs and verifies HS256 access tokens carrying a user id and roles.
type Tokens struct {
	secret    []byte
	ttl       time.Duration
	issuer    string
	audience  string
	validator TokenValidator
	now       func() time.Time
}

// TokensConfig configures Tokens.
type TokensConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	TTL       time.Duration
	ClockSkew time.Duration
	Now       func() time.Time
}

// NewTokens builds a token service. The secret is required.
func NewTokens(cfg TokensConfig) (*Tokens, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tokens{
		secret:   []byte(cfg.Secret),
		ttl:      ttl,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		validator: TokenValidator{
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
			ClockSkew: skew,
			Algorithm: jwa.HS256,
		},
		now: now,
	}, nil
}

// Issue signs an access token for the user.
func (t *Tokens) Issue(userID int64, roles []string) (string, error) {
	now := t.now().UTC()
	builder := jwt.NewBuilder().
		Subject(strconv.FormatInt(userID, 10)).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(t.ttl)).
		Claim(rolesClaim, roles)
	if t.issuer != "" {
		builder = builder.Issuer(t.issuer)
	}
	if t.audience != "" {
		builder = builder.Audience([]string{t.audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

func unauthorized(err error) error {
	return common.NewAppError(string(common.KindUnauthorized), "invalid token", http.StatusUnauthorized, err)
}

// Parse verifies the token and returns the caller it identifies.
func (t *Tokens) Parse(raw string) (common.Principal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Principal{}, common.NewAppError(string(common.KindUnauthorized), "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return common.Principal{}, unauthorized(err)
	}
	if algorithm != t.validator.Algorithm {
		return common.Principal{}, unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	// validation runs below with the injected clock
	tok, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, t.secret), jwt.WithValidate(false))
	if err != nil {
		return common.Principal{}, unauthorized(err)
	}
	principal, err := t.validator.Principal(tok, algorithm, t.now())
	if err != nil {
		return common.Principal{}, unauthorized(err)
	}
	return principal, nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("auth: token is unsigned")
	}
	return alg, nil
}
