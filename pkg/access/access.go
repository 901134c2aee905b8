// Package access gates schema visibility by caller role. The visible table
// set is computed once per request before planning; planner, validator, and
// cache all operate inside it, so a table outside the caller's allow-list
// never appears in a candidate, a verdict, or a cached result.
package access

import (
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Wildcard grants a role every table in the snapshot.
const Wildcard = "*"

// Config holds role policies and token verification settings.
type Config struct {
	// Roles maps role name to table allow-list. A list containing the
	// wildcard grants all tables.
	Roles map[string][]string
	// AnonymousRole applies when no token is presented.
	AnonymousRole string
	// JWTSecret verifies caller tokens. Empty disables token resolution.
	JWTSecret string
}

// Gate applies role policies to schema snapshots.
type Gate struct {
	roles         map[string]map[string]bool
	wildcard      map[string]bool
	anonymousRole string
	jwtSecret     []byte
	logger        zerolog.Logger
}

// New builds a gate from role policies.
func New(cfg Config, logger zerolog.Logger) *Gate {
	g := &Gate{
		roles:         make(map[string]map[string]bool, len(cfg.Roles)),
		wildcard:      make(map[string]bool),
		anonymousRole: cfg.AnonymousRole,
		jwtSecret:     []byte(cfg.JWTSecret),
		logger:        logger,
	}
	for role, tables := range cfg.Roles {
		allowed := make(map[string]bool, len(tables))
		for _, t := range tables {
			if t == Wildcard {
				g.wildcard[role] = true
				continue
			}
			allowed[strings.ToLower(t)] = true
		}
		g.roles[role] = allowed
	}
	return g
}

// VisibleTables intersects the snapshot's tables with the role's allow-list
// and returns them in lexical order. An unknown role sees nothing.
func (g *Gate) VisibleTables(role string, schema *models.SchemaMetadata) []string {
	if schema == nil {
		return nil
	}
	allowed, known := g.roles[role]
	if !known {
		g.logger.Debug().Str("role", role).Msg("Unknown role, empty visibility")
		return nil
	}

	var visible []string
	for name := range schema.Tables {
		if g.wildcard[role] || allowed[strings.ToLower(name)] {
			visible = append(visible, name)
		}
	}
	sort.Strings(visible)
	return visible
}

// ResolveCaller maps a bearer token to a role. An empty token resolves to
// the anonymous role; anything else must be a valid HS256 JWT carrying a
// role claim.
func (g *Gate) ResolveCaller(token string) (string, error) {
	if token == "" {
		return g.anonymousRole, nil
	}
	if len(g.jwtSecret) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "token presented but verification is not configured")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unexpected signing method")
		}
		return g.jwtSecret, nil
	})
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.CodeUnauthorized, "token verification failed")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "unexpected claims type")
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "token carries no role claim")
	}
	if _, known := g.roles[role]; !known {
		return "", pkgerrors.New(pkgerrors.CodePermissionDenied, "role has no policy").WithDetail("role", role)
	}
	return role, nil
}

// IssueToken signs a role into a caller token. Intended for tooling and
// tests; the verification secret must be configured.
func (g *Gate) IssueToken(role string) (string, error) {
	if len(g.jwtSecret) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeInvalidRequest, "token signing is not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": role})
	signed, err := token.SignedString(g.jwtSecret)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}
