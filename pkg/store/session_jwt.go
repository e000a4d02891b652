package store

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"healthconnect/pkg/domain"
)

const (
	DefaultJWTIssuer   = "healthconnect-auth"
	DefaultJWTAudience = "healthconnect-api"
)

var defaultJWTLeeway = 30 * time.Second

func init() {
	// Millisecond iat so a user-wide revocation does not also reject tokens
	// issued later within the same second.
	jwt.TimePrecision = time.Millisecond
}

// AccessClaims are the claims carried by access tokens.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTOptions configures JWT claim validation behavior.
type JWTOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// JWTSessionStore issues and validates RS256 JWT access tokens with kid/JWKS.
type JWTSessionStore struct {
	ttl     time.Duration
	revoker TokenRevoker

	signer    *rsa.PrivateKey
	signerKid string
	verifiers map[string]*rsa.PublicKey

	issuer   string
	audience string
	leeway   time.Duration
}

// NewJWTSessionStore builds a store that signs with signer under keyID.
// previous maps retired kids to public keys still accepted for verification.
func NewJWTSessionStore(
	signer *rsa.PrivateKey,
	keyID string,
	previous map[string]*rsa.PublicKey,
	ttl time.Duration,
	revoker TokenRevoker,
	opts JWTOptions,
) (*JWTSessionStore, error) {
	if signer == nil {
		return nil, errors.New("jwt signer key required")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt session ttl must be positive")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = "jwt-active"
	}
	verifiers := make(map[string]*rsa.PublicKey, len(previous)+1)
	for kid, pub := range previous {
		kid = strings.TrimSpace(kid)
		if kid == "" || pub == nil {
			continue
		}
		verifiers[kid] = pub
	}
	verifiers[keyID] = &signer.PublicKey

	opts = normalizeJWTOptions(opts)
	return &JWTSessionStore{
		ttl:       ttl,
		revoker:   revoker,
		signer:    signer,
		signerKid: keyID,
		verifiers: verifiers,
		issuer:    opts.Issuer,
		audience:  opts.Audience,
		leeway:    opts.Leeway,
	}, nil
}

// NewJWTSessionStoreFromPEM loads the signing key and any previous public keys
// (kid -> path) from PEM files.
func NewJWTSessionStoreFromPEM(
	privateKeyPath string,
	keyID string,
	previousKeyFiles map[string]string,
	ttl time.Duration,
	revoker TokenRevoker,
	opts JWTOptions,
) (*JWTSessionStore, error) {
	privateKey, err := LoadRSAPrivateKeyFromPEMFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	previous := make(map[string]*rsa.PublicKey, len(previousKeyFiles))
	for kid, path := range previousKeyFiles {
		kid = strings.TrimSpace(kid)
		path = strings.TrimSpace(path)
		if kid == "" || path == "" {
			continue
		}
		pub, err := loadRSAPublicKeyFromPEMFile(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		previous[kid] = pub
	}
	return NewJWTSessionStore(privateKey, keyID, previous, ttl, revoker, opts)
}

// TTL is the lifetime of newly issued tokens.
func (s *JWTSessionStore) TTL() time.Duration {
	return s.ttl
}

// NewSession creates a signed JWT for the user and role.
func (s *JWTSessionStore) NewSession(userID string, role domain.Role) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("session subject required")
	}
	now := time.Now().UTC()
	claims := AccessClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        randomHexID(12),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.signerKid
	return token.SignedString(s.signer)
}

// GetSession validates a JWT and returns the session it carries.
func (s *JWTSessionStore) GetSession(token string) (Session, bool, error) {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return Session{}, false, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return Session{}, false, err
		}
		if revoked {
			return Session{}, false, errors.New("token revoked")
		}
		cutoff, err := s.revoker.RevokedAfter(claims.Subject)
		if err != nil {
			return Session{}, false, err
		}
		if !cutoff.IsZero() {
			if claims.IssuedAt == nil {
				return Session{}, false, errors.New("token issued_at missing")
			}
			if !claims.IssuedAt.Time.UTC().After(cutoff) {
				return Session{}, false, errors.New("token revoked for user")
			}
		}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Session{}, false, errors.New("token subject missing")
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return Session{}, false, errors.New("token role invalid")
	}
	session := Session{UserID: claims.Subject, Role: role}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session, true, nil
}

// DeleteSession revokes the token until it expires. Invalid tokens are ignored.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokeUserSessions revokes all sessions for a user issued at or before since.
func (s *JWTSessionStore) RevokeUserSessions(userID string, since time.Time) error {
	if s.revoker == nil {
		return errors.New("session revoker not configured")
	}
	return s.revoker.RevokeUser(userID, since)
}

// JWKS returns the public keys accepted for verification, sorted by kid.
func (s *JWTSessionStore) JWKS() []JWK {
	kids := make([]string, 0, len(s.verifiers))
	for kid := range s.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		pub := s.verifiers[kid]
		out = append(out, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

func (s *JWTSessionStore) parseAndVerify(token string) (AccessClaims, error) {
	claims := AccessClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errors.New("invalid token format")
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, errors.New("token key id required")
		}
		pub, ok := s.verifiers[kid]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return claims, err
	}
	if strings.TrimSpace(claims.ID) == "" {
		return claims, errors.New("token jti missing")
	}
	return claims, nil
}

// LoadRSAPrivateKeyFromPEMFile reads a PKCS#1 or PKCS#8 RSA private key.
func LoadRSAPrivateKeyFromPEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pkcs1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return pkcs1, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return privateKey, nil
}

func loadRSAPublicKeyFromPEMFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pubAny, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := pubAny.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not rsa")
		}
		return pub, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate public key is not rsa")
		}
		return pub, nil
	}
	return nil, errors.New("failed to parse rsa public key")
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}

func normalizeJWTOptions(opts JWTOptions) JWTOptions {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Issuer == "" {
		opts.Issuer = DefaultJWTIssuer
	}
	if opts.Audience == "" {
		opts.Audience = DefaultJWTAudience
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultJWTLeeway
	}
	return opts
}
