// Package usertoken verifies access tokens issued by the auth service against
// its published JWKS, so other services can authenticate callers without a
// round trip per request.
package usertoken

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"healthconnect/pkg/domain"
	"healthconnect/pkg/store"
)

const (
	defaultLeeway       = 30 * time.Second
	defaultJWKSCacheTTL = 5 * time.Minute
)

var (
	errUnknownKey = errors.New("unknown token key")
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for a validly signed token that was revoked
	// by logout, password reset or admin removal.
	ErrTokenRevoked = errors.New("token revoked")
)

// Revocations reports token revocations recorded by the auth service.
// store.RedisTokenRevoker satisfies it when both services share one Redis.
type Revocations interface {
	IsRevoked(jti string) (bool, error)
	RevokedAfter(userID string) (time.Time, error)
}

// Identity is the caller extracted from a verified token.
type Identity struct {
	UserID string
	Role   domain.Role
}

// Config configures token verification.
type Config struct {
	JWKSURL    string
	Issuer     string
	Audience   string
	Leeway     time.Duration
	HTTPClient *http.Client

	// Revocations is checked after the signature; nil skips the check.
	Revocations Revocations
}

// Verifier validates RS256 access tokens with keys fetched from a JWKS URL.
// Keys are cached for the max-age the endpoint advertises and refreshed when
// a token names an unknown kid.
type Verifier struct {
	issuer     string
	audience   string
	leeway     time.Duration
	jwksURL    string
	httpClient *http.Client
	revoked    Revocations

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	keysExpire time.Time
}

// NewVerifier creates a verifier and performs the first JWKS fetch.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	v := &Verifier{
		issuer:     strings.TrimSpace(cfg.Issuer),
		audience:   strings.TrimSpace(cfg.Audience),
		leeway:     cfg.Leeway,
		jwksURL:    jwksURL,
		httpClient: cfg.HTTPClient,
		revoked:    cfg.Revocations,
	}
	if v.issuer == "" {
		v.issuer = store.DefaultJWTIssuer
	}
	if v.audience == "" {
		v.audience = store.DefaultJWTAudience
	}
	if v.leeway <= 0 {
		v.leeway = defaultLeeway
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if err := v.refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial jwks fetch: %w", err)
	}
	return v, nil
}

// Verify checks signature and registered claims and returns the caller.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := v.parse(token)
	if errors.Is(err, errUnknownKey) || (err != nil && v.keysExpired()) {
		if refreshErr := v.refresh(ctx); refreshErr != nil {
			return Identity{}, refreshErr
		}
		claims, err = v.parse(token)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return Identity{}, fmt.Errorf("%w: role claim %q", ErrInvalidToken, claims.Role)
	}
	if err := v.checkRevoked(claims); err != nil {
		return Identity{}, err
	}
	return Identity{UserID: subject, Role: role}, nil
}

// checkRevoked fails closed: a revocation store error rejects the token.
func (v *Verifier) checkRevoked(claims store.AccessClaims) error {
	if v.revoked == nil {
		return nil
	}
	revoked, err := v.revoked.IsRevoked(claims.ID)
	if err != nil {
		return fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	cutoff, err := v.revoked.RevokedAfter(claims.Subject)
	if err != nil {
		return fmt.Errorf("check user revocation: %w", err)
	}
	if cutoff.IsZero() {
		return nil
	}
	if claims.IssuedAt == nil || !claims.IssuedAt.Time.UTC().After(cutoff) {
		return ErrTokenRevoked
	}
	return nil
}

func (v *Verifier) parse(token string) (store.AccessClaims, error) {
	claims := store.AccessClaims{}
	v.mu.RLock()
	keys := v.keys
	v.mu.RUnlock()
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[strings.TrimSpace(kid)]
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return claims, err
	}
	if !parsed.Valid {
		return claims, errors.New("token not valid")
	}
	return claims, nil
}

func (v *Verifier) keysExpired() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return time.Now().UTC().After(v.keysExpire)
}

func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []store.JWK `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		kid := strings.TrimSpace(k.Kid)
		if !strings.EqualFold(k.Kty, "RSA") || kid == "" {
			continue
		}
		pub, err := rsaPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}
	ttl := maxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}

	v.mu.Lock()
	v.keys = keys
	v.keysExpire = time.Now().UTC().Add(ttl)
	v.mu.Unlock()
	return nil
}

func rsaPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !e.IsInt64() || e.Int64() <= 1 {
		return nil, errors.New("invalid rsa key")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		raw, ok := strings.CutPrefix(part, "max-age=")
		if !ok {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return 0
}
