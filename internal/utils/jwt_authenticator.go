package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const jwksFetchTimeout = 30 * time.Second

// AuthenticatedUser is the identity extracted from a validated bearer token.
type AuthenticatedUser struct {
	Sub            string   `json:"sub"`
	Iss            string   `json:"iss"`
	ClientId       string   `json:"client_id"`
	Exp            int64    `json:"exp"`
	Iat            int64    `json:"iat"`
	Aud            []string `json:"aud"`
	Roles          []string `json:"roles"`
	Scopes         []string `json:"scopes"`
	OrganizationID string   `json:"organization_id"`
}

// JwtAuthenticator validates bearer tokens either against a JWKS endpoint (RS/ES keys)
// or against a shared HMAC secret.
type JwtAuthenticator struct {
	JwksUri  string
	secret   []byte
	cacheTTL time.Duration

	mu        sync.Mutex
	keySet    jwk.Set
	fetchedAt time.Time
}

func NewJwtAuthenticator(jwksUri string) *JwtAuthenticator {
	return &JwtAuthenticator{
		JwksUri:  jwksUri,
		cacheTTL: 5 * time.Minute,
	}
}

// NewSimpleJwtAuthenticator validates HS256/384/512 tokens signed with secret.
func NewSimpleJwtAuthenticator(secret string) *JwtAuthenticator {
	return &JwtAuthenticator{
		secret:   []byte(secret),
		cacheTTL: 5 * time.Minute,
	}
}

// ValidateToken verifies the signature and standard time claims of tokenString
// and maps its claims to an AuthenticatedUser.
func (a *JwtAuthenticator) ValidateToken(tokenString string) (*AuthenticatedUser, error) {
	if len(a.secret) == 0 && a.JwksUri == "" {
		return nil, errors.New("JWKS URI not configured")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, a.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return a.mapClaimsToUser(claims)
}

func (a *JwtAuthenticator) keyFunc(token *jwt.Token) (interface{}, error) {
	if len(a.secret) > 0 {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}

	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, errors.New("token is missing the kid header")
	}

	ctx, cancel := context.WithTimeout(context.Background(), jwksFetchTimeout)
	defer cancel()
	return a.fetchKey(ctx, kid)
}

// fetchKey returns the raw public key for kid. The key set is cached for cacheTTL and
// refetched once when kid is unknown, so rotated keys are picked up.
func (a *JwtAuthenticator) fetchKey(ctx context.Context, kid string) (interface{}, error) {
	set, err := a.loadKeySet(ctx, false)
	if err != nil {
		return nil, err
	}

	key, ok := set.LookupKeyID(kid)
	if !ok {
		set, err = a.loadKeySet(ctx, true)
		if err != nil {
			return nil, err
		}
		if key, ok = set.LookupKeyID(kid); !ok {
			return nil, fmt.Errorf("key %s not found in JWKS", kid)
		}
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("failed to get raw key: %w", err)
	}
	return raw, nil
}

func (a *JwtAuthenticator) loadKeySet(ctx context.Context, force bool) (jwk.Set, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !force && a.keySet != nil && time.Since(a.fetchedAt) < a.cacheTTL {
		return a.keySet, nil
	}

	set, err := jwk.Fetch(ctx, a.JwksUri)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	a.keySet = set
	a.fetchedAt = time.Now()
	return set, nil
}

func (a *JwtAuthenticator) mapClaimsToUser(claims map[string]interface{}) (*AuthenticatedUser, error) {
	user := &AuthenticatedUser{
		Sub:      stringClaim(claims, "sub"),
		Iss:      stringClaim(claims, "iss"),
		ClientId: stringClaim(claims, "client_id"),
		Exp:      numericClaim(claims, "exp"),
		Iat:      numericClaim(claims, "iat"),
		Aud:      stringsClaim(claims, "aud"),
		Roles:    stringsClaim(claims, "roles"),
		Scopes:   stringsClaim(claims, "scopes"),
	}

	user.OrganizationID = stringClaim(claims, "org_id")
	if user.OrganizationID == "" {
		user.OrganizationID = stringClaim(claims, "organization_id")
	}
	return user, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	value, _ := claims[key].(string)
	return value
}

func numericClaim(claims map[string]interface{}, key string) int64 {
	switch value := claims[key].(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	case json.Number:
		n, _ := value.Int64()
		return n
	}
	return 0
}

// stringsClaim accepts both a single string and an array of strings.
func stringsClaim(claims map[string]interface{}, key string) []string {
	switch value := claims[key].(type) {
	case string:
		return []string{value}
	case []string:
		return value
	case []interface{}:
		result := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}
