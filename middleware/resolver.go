package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultTenantHeader is the request header HeaderResolver reads when no
// header name is configured.
const DefaultTenantHeader = "X-Tenant-ID"

// DefaultTenantClaim is the JWT claim JWTResolver reads when no claim
// name is configured.
const DefaultTenantClaim = "tenant"

// Resolver extracts a tenant identifier from an incoming request.
// An empty identifier with a nil error means the request carries no
// tenant credential at all; an error means the credential is present
// but unusable.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver reads the tenant identifier from a request header.
type HeaderResolver struct {
	// Header is the header carrying the identifier
	// (default: "X-Tenant-ID").
	Header string
}

func (h *HeaderResolver) Resolve(r *http.Request) (string, error) {
	header := h.Header
	if header == "" {
		header = DefaultTenantHeader
	}
	return r.Header.Get(header), nil
}

// HostResolver derives the tenant identifier from the request host:
// a request for acme.example.com with BaseDomain "example.com" resolves
// to "acme". The base domain itself carries no identifier.
type HostResolver struct {
	// BaseDomain is the domain tenant subdomains hang off (required).
	BaseDomain string
}

func (h *HostResolver) Resolve(r *http.Request) (string, error) {
	host := r.Host
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		host = hostOnly
	}

	if host == h.BaseDomain {
		return "", nil
	}

	sub, ok := strings.CutSuffix(host, "."+h.BaseDomain)
	if !ok {
		return "", fmt.Errorf("host %q is not under %q", host, h.BaseDomain)
	}
	return sub, nil
}

// JWTResolver reads the tenant identifier from a claim in a bearer token.
// Tokens must be HMAC-signed with the configured secret; any other
// signing method is rejected.
type JWTResolver struct {
	// Secret verifies the token signature (required).
	Secret []byte

	// Claim is the claim carrying the identifier (default: "tenant").
	Claim string
}

func (j *JWTResolver) Resolve(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", nil
	}

	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return j.Secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse bearer token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	claim := j.Claim
	if claim == "" {
		claim = DefaultTenantClaim
	}

	identifier, ok := claims[claim].(string)
	if !ok {
		return "", fmt.Errorf("token is missing the %q claim", claim)
	}
	return identifier, nil
}
