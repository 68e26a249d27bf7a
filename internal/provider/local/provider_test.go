package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
	"github.com/lex00/notes-stack-go/internal/topology"
)

func notesConfig(t *testing.T) topology.Config {
	t.Helper()
	dir := t.TempDir()
	artifact := filepath.Join(dir, "lambda-package.zip")
	schema := filepath.Join(dir, "schema.graphql")
	require.NoError(t, os.WriteFile(artifact, []byte("PK\x03\x04"), 0644))
	require.NoError(t, os.WriteFile(schema, []byte("type Query { getAllUsers: [User] }"), 0644))
	return topology.Config{
		Account:      "123456789012",
		Region:       "us-east-1",
		ArtifactPath: artifact,
		SchemaPath:   schema,
	}
}

func counter() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%08d-0000-0000-0000-000000000000", n)
	}
}

func quiet() provision.Option {
	return provision.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApply_NotesTopology(t *testing.T) {
	graph, err := topology.BuildTopology(notesConfig(t))
	require.NoError(t, err)

	p := New("us-east-1", "123456789012")
	res, err := provision.Apply(context.Background(), graph, p, quiet())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Outputs.GatewayURL, "https://"))
	assert.True(t, strings.HasSuffix(res.Outputs.GatewayURL, ".appsync-api.us-east-1.amazonaws.com/graphql"))
	require.True(t, res.Outputs.HasAPIKey())
	assert.True(t, strings.HasPrefix(*res.Outputs.APIKey, "da2-"))

	st := p.State()
	assert.Equal(t, 2, st.CountKind(KindCollection))
	assert.Equal(t, 3, st.CountKind(KindIndex))
	assert.Equal(t, 1, st.CountKind(KindComputeUnit))
	assert.Equal(t, 2, st.CountKind(KindGrant))
	assert.Equal(t, 1, st.CountKind(KindGateway))
	assert.Equal(t, 11, st.CountKind(KindBinding))

	// 2 collections, 3 indexes, 1 function, 2 grants, 1 gateway, 11 bindings, 1 describe
	assert.Len(t, p.Calls(), 21)
}

func TestApply_ResolvesTableNamesIntoEnvironment(t *testing.T) {
	graph, err := topology.BuildTopology(notesConfig(t))
	require.NoError(t, err)

	p := New("us-east-1", "123456789012")
	res, err := provision.Apply(context.Background(), graph, p, quiet())
	require.NoError(t, err)

	users, ok := res.Identities[topology.UsersTableID].Attr(model.AttrName)
	require.True(t, ok)
	assert.Equal(t, "Users", users)
	arn, _ := res.Identities[topology.NotesTableID].Attr(model.AttrArn)
	assert.Equal(t, "arn:aws:dynamodb:us-east-1:123456789012:table/Notes", arn)
}

func TestApply_Idempotent(t *testing.T) {
	graph, err := topology.BuildTopology(notesConfig(t))
	require.NoError(t, err)

	p := New("us-east-1", "123456789012")
	first, err := provision.Apply(context.Background(), graph, p, quiet())
	require.NoError(t, err)
	before := len(p.State().Resources)

	second, err := provision.Apply(context.Background(), graph, p, quiet())
	require.NoError(t, err)

	assert.Equal(t, before, len(p.State().Resources))
	assert.Equal(t, first.Outputs.GatewayURL, second.Outputs.GatewayURL)
	assert.Equal(t, *first.Outputs.APIKey, *second.Outputs.APIKey)

	// Every call of the second run left its resource alone.
	calls := p.Calls()
	for _, c := range calls[len(calls)/2:] {
		assert.Equal(t, Unchanged, c.Action, c.String())
	}
}

func TestApply_ConfigErrorMakesNoCalls(t *testing.T) {
	cfg := notesConfig(t)
	cfg.ArtifactPath = filepath.Join(t.TempDir(), "missing.zip")

	p := New("us-east-1", "123456789012")
	graph, err := topology.BuildTopology(cfg)
	require.Error(t, err)
	assert.Nil(t, graph)

	var cfgErr *model.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, p.Calls())
	assert.Empty(t, p.State().Resources)
}

func TestApply_FaultStopsRun(t *testing.T) {
	graph, err := topology.BuildTopology(notesConfig(t))
	require.NoError(t, err)

	boom := errors.New("throttled")
	p := New("us-east-1", "123456789012", WithFault("PutGateway", topology.APIID, boom))
	_, err = provision.Apply(context.Background(), graph, p, quiet(), provision.WithSequentialCollections())
	require.Error(t, err)

	var perr *provision.ProvisioningError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, provision.StepGateway, perr.Step)
	assert.ErrorIs(t, err, boom)

	// Everything before the gateway stays provisioned.
	assert.Equal(t, 2, p.State().CountKind(KindCollection))
	assert.Equal(t, 2, p.State().CountKind(KindGrant))
	assert.Equal(t, 0, p.State().CountKind(KindGateway))
	assert.Equal(t, 0, p.State().CountKind(KindBinding))

	last := p.Calls()[len(p.Calls())-1]
	assert.Equal(t, Call{Op: "PutGateway", Resource: topology.APIID, Action: Failed}, last)
}

func TestPutCollection_UpdateKeepsName(t *testing.T) {
	p := New("eu-west-1", "111111111111", WithIDGenerator(counter()))
	ctx := context.Background()

	spec := model.KeyedCollectionSpec{
		ID:         "Items",
		PrimaryKey: model.KeyAttribute{Name: "Id", Type: model.AttributeString},
		Billing:    model.PayPerRequest,
	}
	first, err := p.PutCollection(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, "Items", first.ID)
	assert.Equal(t, "Items-00000001000000000000000000", first.Attrs[model.AttrName])

	spec.Removal = model.Retain
	second, err := p.PutCollection(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, first.Attrs, second.Attrs)

	assert.Equal(t, []Call{
		{Op: "PutCollection", Resource: "Items", Action: Created},
		{Op: "PutCollection", Resource: "Items", Action: Updated},
	}, p.Calls())
	assert.Len(t, p.Changes(), 2)
}

func TestPutIndex_RequiresCollection(t *testing.T) {
	p := New("us-east-1", "123456789012")
	err := p.PutIndex(context.Background(), provision.Identity{ID: "Ghost"}, model.IndexSpec{Name: "ByEmail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not provisioned")
}

func TestPutGateway_AuthModeSwitch(t *testing.T) {
	p := New("us-east-1", "123456789012")
	ctx := context.Background()

	fn, err := p.PutComputeUnit(ctx, model.ComputeUnitSpec{ID: "Fn", Timeout: 1, MemoryMB: 128}, nil)
	require.NoError(t, err)

	spec := model.GatewaySpec{
		ID:      "Api",
		Name:    "api",
		Backing: "Fn",
		Auth:    model.AuthPolicy{Mode: model.AuthAPIKey, APIKeyExpiry: 1},
	}
	gw, err := p.PutGateway(ctx, spec, fn)
	require.NoError(t, err)
	assert.Contains(t, gw.Attrs, model.AttrAPIKey)

	resp, err := p.DescribeGateway(ctx, gw)
	require.NoError(t, err)
	assert.Equal(t, model.AuthAPIKey, resp.AuthMode)

	spec.Auth = model.AuthPolicy{Mode: model.AuthIAM}
	gw2, err := p.PutGateway(ctx, spec, fn)
	require.NoError(t, err)
	assert.NotContains(t, gw2.Attrs, model.AttrAPIKey)
	assert.Equal(t, gw.Attrs[model.AttrURL], gw2.Attrs[model.AttrURL])

	resp, err = p.DescribeGateway(ctx, gw2)
	require.NoError(t, err)
	assert.Equal(t, model.AuthIAM, resp.AuthMode)
	assert.Equal(t, model.NoAPIKey, resp.Outputs[provision.OutputAPIKey])

	out, err := provision.ExtractOutputs(resp)
	require.NoError(t, err)
	assert.False(t, out.HasAPIKey())
}

func TestGrantAccess_ChecksKinds(t *testing.T) {
	p := New("us-east-1", "123456789012")
	ctx := context.Background()

	fn, err := p.PutComputeUnit(ctx, model.ComputeUnitSpec{ID: "Fn"}, nil)
	require.NoError(t, err)

	grant := model.PermissionGrant{Subject: "Fn", Object: "Fn", Access: model.AccessRead}
	err = p.GrantAccess(ctx, grant, fn, fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a collection")
}

func TestFault_WildcardResource(t *testing.T) {
	boom := errors.New("denied")
	p := New("us-east-1", "123456789012", WithFault("PutCollection", "", boom))

	_, err := p.PutCollection(context.Background(), model.KeyedCollectionSpec{ID: "Anything"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, p.State().Resources)
}

func TestState_SaveLoadConverges(t *testing.T) {
	graph, err := topology.BuildTopology(notesConfig(t))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "state", "local.yaml")

	st, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, st.Resources)

	p := New("us-east-1", "123456789012", WithState(st))
	first, err := provision.Apply(context.Background(), graph, p, quiet())
	require.NoError(t, err)
	require.NoError(t, Save(path, p.State()))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p.State().Names(), reloaded.Names())

	p2 := New("us-east-1", "123456789012", WithState(reloaded))
	second, err := provision.Apply(context.Background(), graph, p2, quiet())
	require.NoError(t, err)

	assert.Equal(t, first.Outputs, second.Outputs)
	assert.Empty(t, p2.Changes())
}

func TestState_CloneIsIndependent(t *testing.T) {
	st := NewState()
	st.Resources["A"] = &Resource{Kind: KindCollection, Hash: "h", Attrs: map[string]string{"Name": "a"}}

	clone := st.Clone()
	clone.Resources["A"].Attrs["Name"] = "b"
	clone.Resources["B"] = &Resource{Kind: KindGrant}

	assert.Equal(t, "a", st.Resources["A"].Attrs["Name"])
	assert.Len(t, st.Resources, 1)
}

func TestLoad_RejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 99\nresources: {}\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 99")
}
