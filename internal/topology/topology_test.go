package topology

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/notes-stack-go/internal/model"
)

func fixtureConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	artifact := filepath.Join(dir, "lambda-package.zip")
	schema := filepath.Join(dir, "schema.graphql")
	require.NoError(t, os.WriteFile(artifact, []byte("PK\x03\x04"), 0644))
	require.NoError(t, os.WriteFile(schema, []byte("type Query { getAllUsers: [User] }"), 0644))
	return Config{
		Account:      "123456789012",
		Region:       "us-east-1",
		ArtifactPath: artifact,
		SchemaPath:   schema,
	}
}

func TestBuildTopology_Counts(t *testing.T) {
	g, err := BuildTopology(fixtureConfig(t))
	require.NoError(t, err)

	c := g.Counts()
	assert.Equal(t, 2, c.Collections)
	assert.Equal(t, 1, c.ComputeUnits)
	assert.Equal(t, 2, c.Grants)
	assert.Equal(t, 1, c.Gateways)
	assert.Equal(t, 11, c.Bindings)
	assert.Equal(t, 5, c.Queries)
	assert.Equal(t, 6, c.Mutations)
}

func TestBuildTopology_Collections(t *testing.T) {
	g, err := BuildTopology(fixtureConfig(t))
	require.NoError(t, err)

	users, ok := g.Collection(UsersTableID)
	require.True(t, ok)
	assert.Equal(t, "Users", users.TableName)
	assert.Equal(t, model.KeyAttribute{Name: "Id", Type: model.AttributeString}, users.PrimaryKey)
	assert.Equal(t, []model.IndexSpec{
		{Name: "EmailIndex", Key: model.KeyAttribute{Name: "Email", Type: model.AttributeString}},
		{Name: "UsernameIndex", Key: model.KeyAttribute{Name: "Username", Type: model.AttributeString}},
	}, users.Indexes)
	assert.Equal(t, model.PayPerRequest, users.Billing)
	assert.Equal(t, model.Destroy, users.Removal)

	notes, ok := g.Collection(NotesTableID)
	require.True(t, ok)
	assert.Equal(t, "Notes", notes.TableName)
	assert.Equal(t, "Id", notes.PrimaryKey.Name)
	require.Len(t, notes.Indexes, 1)
	assert.Equal(t, "UserIdIndex", notes.Indexes[0].Name)
	assert.Equal(t, "UserId", notes.Indexes[0].Key.Name)
}

func TestBuildTopology_ComputeUnit(t *testing.T) {
	cfg := fixtureConfig(t)
	g, err := BuildTopology(cfg)
	require.NoError(t, err)

	fn, ok := g.ComputeUnit(FunctionID)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, fn.Timeout)
	assert.Equal(t, 512, fn.MemoryMB)
	assert.Equal(t, "dotnet8", fn.Runtime)
	assert.Equal(t, cfg.ArtifactPath, fn.ArtifactPath)
	assert.Equal(t, map[string]model.Value{
		"USERS_TABLE": model.Reference{Resource: UsersTableID, Attribute: model.AttrName},
		"NOTES_TABLE": model.Reference{Resource: NotesTableID, Attribute: model.AttrName},
	}, fn.Environment)

	assert.ElementsMatch(t, []model.PermissionGrant{
		{Subject: FunctionID, Object: UsersTableID, Access: model.AccessReadWrite},
		{Subject: FunctionID, Object: NotesTableID, Access: model.AccessReadWrite},
	}, g.Grants)
}

func TestBuildTopology_Gateway(t *testing.T) {
	cfg := fixtureConfig(t)
	g, err := BuildTopology(cfg)
	require.NoError(t, err)

	api, ok := g.Gateway(APIID)
	require.True(t, ok)
	assert.Equal(t, "notes-api", api.Name)
	assert.Equal(t, cfg.SchemaPath, api.SchemaPath)
	assert.Equal(t, model.AuthAPIKey, api.Auth.Mode)
	assert.Equal(t, 365*24*time.Hour, api.Auth.APIKeyExpiry)
	assert.True(t, api.Tracing)
	assert.Equal(t, FunctionID, api.Backing)
}

func TestBuildTopology_Bindings(t *testing.T) {
	g, err := BuildTopology(fixtureConfig(t))
	require.NoError(t, err)

	var queries, mutations []string
	for _, b := range g.Bindings {
		assert.Equal(t, APIID, b.Gateway)
		assert.Equal(t, FunctionID, b.Target)
		switch b.Category {
		case model.Query:
			queries = append(queries, b.Name)
		case model.Mutation:
			mutations = append(mutations, b.Name)
		}
	}
	sort.Strings(queries)
	sort.Strings(mutations)

	assert.Equal(t, []string{"getAllNotes", "getAllUsers", "getNoteById", "getNotesByUserId", "getUserById"}, queries)
	assert.Equal(t, []string{"createNote", "createUser", "deleteNote", "deleteUser", "updateNote", "updateUser"}, mutations)
}

func TestBuildTopology_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"artifact unset", func(c *Config) { c.ArtifactPath = "" }, "artifact path"},
		{"artifact missing", func(c *Config) { c.ArtifactPath = filepath.Join(t.TempDir(), "nope.zip") }, "artifact path"},
		{"schema unset", func(c *Config) { c.SchemaPath = "" }, "schema path"},
		{"schema is dir", func(c *Config) { c.SchemaPath = t.TempDir() }, "schema path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fixtureConfig(t)
			tt.mutate(&cfg)

			g, err := BuildTopology(cfg)
			assert.Nil(t, g)

			var cerr *model.ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestBuilder_DuplicateBinding(t *testing.T) {
	cfg := fixtureConfig(t)
	g, err := BuildTopology(cfg)
	require.NoError(t, err)

	b := NewBuilder()
	for _, c := range g.Collections {
		b.AddCollection(c)
	}
	for _, c := range g.ComputeUnits {
		b.AddComputeUnit(c)
	}
	for _, gr := range g.Grants {
		b.AddGrant(gr)
	}
	for _, gw := range g.Gateways {
		b.AddGateway(gw)
	}
	for _, op := range g.Bindings {
		b.AddBinding(op)
	}
	b.AddBinding(model.OperationBinding{Category: model.Mutation, Name: "createNote", Gateway: APIID, Target: FunctionID})

	built, err := b.Build()
	assert.Nil(t, built)

	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), `duplicate Mutation operation "createNote"`)
}

func TestBuilder_SameNameDifferentCategory(t *testing.T) {
	b := NewBuilder().
		AddComputeUnit(model.ComputeUnitSpec{ID: "Fn", Timeout: time.Second, MemoryMB: 128}).
		AddGateway(model.GatewaySpec{ID: "Api", Name: "api", Auth: model.AuthPolicy{Mode: model.AuthIAM}, Backing: "Fn"}).
		AddBinding(model.OperationBinding{Category: model.Query, Name: "notes", Gateway: "Api", Target: "Fn"}).
		AddBinding(model.OperationBinding{Category: model.Mutation, Name: "notes", Gateway: "Api", Target: "Fn"})

	g, err := b.Build()
	require.NoError(t, err)
	assert.Len(t, g.Bindings, 2)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account: "123456789012"
region: eu-west-1
artifact: build/lambda-package.zip
schema: schema.graphql
stack_name: NotesDev
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Account:      "123456789012",
		Region:       "eu-west-1",
		ArtifactPath: "build/lambda-package.zip",
		SchemaPath:   "schema.graphql",
		StackName:    "NotesDev",
	}, cfg)
	assert.Equal(t, "NotesDev", cfg.Stack())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	var cerr *model.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "config file", cerr.Field)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("region: [unterminated"), 0644))
	_, err = LoadConfig(bad)
	require.True(t, errors.As(err, &cerr))
}

func TestConfig_Merge(t *testing.T) {
	flags := Config{Region: "us-west-2"}
	file := Config{Region: "eu-west-1", Account: "111", SchemaPath: "schema.graphql"}

	merged := flags.Merge(file)
	assert.Equal(t, "us-west-2", merged.Region)
	assert.Equal(t, "111", merged.Account)
	assert.Equal(t, "schema.graphql", merged.SchemaPath)
	assert.Equal(t, DefaultStackName, merged.Stack())
}
