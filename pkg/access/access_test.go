package access

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

func testSchema() *models.SchemaMetadata {
	return &models.SchemaMetadata{
		Version: 1,
		Tables: map[string]models.Table{
			"customers": {Name: "customers"},
			"orders":    {Name: "orders"},
			"payroll":   {Name: "payroll"},
		},
	}
}

func testGate(secret string) *Gate {
	return New(Config{
		Roles: map[string][]string{
			"admin":   {Wildcard},
			"analyst": {"orders", "customers"},
			"viewer":  {"Customers"},
			"none":    {},
		},
		AnonymousRole: "viewer",
		JWTSecret:     secret,
	}, zerolog.Nop())
}

func TestVisibleTables(t *testing.T) {
	g := testGate("")
	schema := testSchema()

	tests := []struct {
		name string
		role string
		want []string
	}{
		{"wildcard sees everything", "admin", []string{"customers", "orders", "payroll"}},
		{"allow list intersected and sorted", "analyst", []string{"customers", "orders"}},
		{"policy names are case folded", "viewer", []string{"customers"}},
		{"empty policy sees nothing", "none", nil},
		{"unknown role sees nothing", "intruder", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.VisibleTables(tt.role, schema))
		})
	}
}

func TestVisibleTables_NilSchema(t *testing.T) {
	g := testGate("")
	assert.Nil(t, g.VisibleTables("admin", nil))
}

func TestVisibleTables_AllowListEntryAbsentFromSchema(t *testing.T) {
	g := New(Config{
		Roles: map[string][]string{"analyst": {"orders", "retired_table"}},
	}, zerolog.Nop())

	assert.Equal(t, []string{"orders"}, g.VisibleTables("analyst", testSchema()))
}

func TestResolveCaller_EmptyTokenIsAnonymous(t *testing.T) {
	g := testGate("secret")
	role, err := g.ResolveCaller("")
	require.NoError(t, err)
	assert.Equal(t, "viewer", role)
}

func TestResolveCaller_RoundTrip(t *testing.T) {
	g := testGate("secret")

	token, err := g.IssueToken("analyst")
	require.NoError(t, err)

	role, err := g.ResolveCaller(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst", role)
}

func TestResolveCaller_GarbageToken(t *testing.T) {
	g := testGate("secret")
	_, err := g.ResolveCaller("not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.GetCode(err))
}

func TestResolveCaller_WrongSecret(t *testing.T) {
	issuer := testGate("secret-a")
	verifier := testGate("secret-b")

	token, err := issuer.IssueToken("analyst")
	require.NoError(t, err)

	_, err = verifier.ResolveCaller(token)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.GetCode(err))
}

func TestResolveCaller_RoleWithoutPolicy(t *testing.T) {
	g := testGate("secret")

	token, err := g.IssueToken("ghost")
	require.NoError(t, err)

	_, err = g.ResolveCaller(token)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePermissionDenied, pkgerrors.GetCode(err))
}

func TestResolveCaller_VerificationNotConfigured(t *testing.T) {
	g := testGate("")
	_, err := g.ResolveCaller("some-token")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.GetCode(err))
}

func TestIssueToken_SigningNotConfigured(t *testing.T) {
	g := testGate("")
	_, err := g.IssueToken("analyst")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidRequest, pkgerrors.GetCode(err))
}
