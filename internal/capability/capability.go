package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"glot/internal/services"
)

// Claims is the grant payload.
type Claims struct {
	jwt.RegisteredClaims
	AgentID      string   `json:"agent_id"`
	WorkspaceID  string   `json:"workspace_id"`
	TraceID      string   `json:"trace_id"`
	Providers    []string `json:"providers"`
	Models       []string `json:"models"`
	MaxTokens    int      `json:"max_tokens"`
	MaxLatencyMS int      `json:"max_latency_ms"`
}

// Grant is an issued capability token plus the fields callers log.
type Grant struct {
	Token     string
	TraceID   string
	ExpiresAt time.Time
}

// Issuer signs and verifies grants.
type Issuer struct {
	key          []byte
	ttl          time.Duration
	providers    []string
	models       []string
	maxTokens    int
	maxLatencyMS int
}

// Options configures an Issuer.
type Options struct {
	SigningKey   string
	TTL          time.Duration
	Providers    []string
	Models       []string
	MaxTokens    int
	MaxLatencyMS int
}

// NewIssuer validates options and builds an issuer. A missing signing key is
// a configuration error and fails construction.
func NewIssuer(opts Options) (*Issuer, error) {
	if opts.SigningKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "capability", "new", "signing key is required", nil)
	}
	if opts.TTL <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "capability", "new", "grant ttl must be positive", nil)
	}
	if len(opts.Providers) == 0 || len(opts.Models) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "capability", "new", "providers and models are required", nil)
	}
	return &Issuer{
		key:          []byte(opts.SigningKey),
		ttl:          opts.TTL,
		providers:    opts.Providers,
		models:       opts.Models,
		maxTokens:    opts.MaxTokens,
		maxLatencyMS: opts.MaxLatencyMS,
	}, nil
}

// Issue signs a grant for one job. An empty traceID gets a fresh one.
func (i *Issuer) Issue(ctx context.Context, agentID, workspaceID, traceID string) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	now := time.Now()
	expires := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "glot",
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		AgentID:      agentID,
		WorkspaceID:  workspaceID,
		TraceID:      traceID,
		Providers:    i.providers,
		Models:       i.models,
		MaxTokens:    i.maxTokens,
		MaxLatencyMS: i.maxLatencyMS,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return Grant{}, services.Wrap(services.ErrTransient, "capability", "issue", "sign grant", err)
	}
	return Grant{Token: token, TraceID: traceID, ExpiresAt: expires}, nil
}

// Verify parses and validates a grant token.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "capability", "verify", "invalid grant", err)
	}
	if !parsed.Valid {
		return nil, services.Wrap(services.ErrValidation, "capability", "verify", "invalid grant", nil)
	}
	return claims, nil
}
