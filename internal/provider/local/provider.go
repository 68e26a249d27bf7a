// Package local implements an in-process provisioning provider.
//
// It reconciles specs against a State keyed by logical ID: a resource is
// created when absent, updated when its spec hash changed and left alone
// otherwise. Physical identifiers survive updates, so applying the same
// graph twice never creates anything new.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
)

// Resource kinds stored in State.
const (
	KindCollection  = "collection"
	KindIndex       = "index"
	KindComputeUnit = "compute_unit"
	KindGrant       = "grant"
	KindGateway     = "gateway"
	KindBinding     = "binding"
)

// Action is what a Put did to a resource.
type Action string

const (
	Created   Action = "created"
	Updated   Action = "updated"
	Unchanged Action = "unchanged"
	Failed    Action = "failed"
)

// Call is one provider invocation.
type Call struct {
	Op       string
	Resource string
	Action   Action
}

func (c Call) String() string {
	return fmt.Sprintf("%s %s (%s)", c.Op, c.Resource, c.Action)
}

// attrAuthMode is stored with gateways so DescribeGateway can report it.
const attrAuthMode = "AuthMode"

// Option configures a Provider.
type Option func(*Provider)

// WithState reconciles against an existing state instead of an empty one.
func WithState(st *State) Option {
	return func(p *Provider) { p.state = st }
}

// WithFault makes the named operation fail for resource. An empty resource
// matches every resource.
func WithFault(op, resource string, err error) Option {
	return func(p *Provider) { p.faults[op+":"+resource] = err }
}

// WithIDGenerator replaces the uuid based physical ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Provider) { p.newID = fn }
}

// Provider is the local reconciler. It is safe for concurrent use.
type Provider struct {
	region  string
	account string
	newID   func() string

	mu     sync.Mutex
	state  *State
	calls  []Call
	faults map[string]error
}

// New creates a local provider for the given region and account.
func New(region, account string, opts ...Option) *Provider {
	p := &Provider{
		region:  region,
		account: account,
		newID:   newPhysicalID,
		faults:  make(map[string]error),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.state == nil {
		p.state = NewState()
	}
	p.state.Region = region
	p.state.Account = account
	return p
}

var _ provision.Provider = (*Provider)(nil)

// State returns the provider's state.
func (p *Provider) State() *State {
	return p.state
}

// Calls returns a copy of the call trace.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Changes returns the calls that created or updated something.
func (p *Provider) Changes() []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Action == Created || c.Action == Updated {
			out = append(out, c)
		}
	}
	return out
}

// PutCollection implements provision.Provider.
func (p *Provider) PutCollection(_ context.Context, spec model.KeyedCollectionSpec) (provision.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hashed := spec
	hashed.Indexes = nil
	res, err := p.reconcile("PutCollection", spec.ID, KindCollection, hashed, func(attrs map[string]string) {
		name := spec.TableName
		if name == "" {
			name = spec.ID + "-" + shortID(p.newID())
		}
		attrs[model.AttrName] = name
		attrs[model.AttrArn] = fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", p.region, p.account, name)
	})
	if err != nil {
		return provision.Identity{}, err
	}
	// A requested name change renames the table.
	if spec.TableName != "" && res.Attrs[model.AttrName] != spec.TableName {
		res.Attrs[model.AttrName] = spec.TableName
		res.Attrs[model.AttrArn] = fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", p.region, p.account, spec.TableName)
	}
	return identity(spec.ID, res), nil
}

// PutIndex implements provision.Provider.
func (p *Provider) PutIndex(_ context.Context, collection provision.Identity, index model.IndexSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	owner, err := p.owned(collection, KindCollection)
	if err != nil {
		return err
	}
	key := owner + "/" + index.Name
	if _, err := p.reconcile("PutIndex", key, KindIndex, index, func(attrs map[string]string) {
		attrs[model.AttrName] = index.Name
		attrs["Collection"] = owner
	}); err != nil {
		return err
	}
	return nil
}

// PutComputeUnit implements provision.Provider.
func (p *Provider) PutComputeUnit(_ context.Context, spec model.ComputeUnitSpec, env map[string]any) (provision.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hashed := struct {
		Spec model.ComputeUnitSpec
		Env  map[string]any
	}{spec, env}
	hashed.Spec.Environment = nil

	res, err := p.reconcile("PutComputeUnit", spec.ID, KindComputeUnit, hashed, func(attrs map[string]string) {
		name := spec.ID + "-" + shortID(p.newID())
		attrs[model.AttrName] = name
		attrs[model.AttrArn] = fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", p.region, p.account, name)
	})
	if err != nil {
		return provision.Identity{}, err
	}
	return identity(spec.ID, res), nil
}

// GrantAccess implements provision.Provider.
func (p *Provider) GrantAccess(_ context.Context, grant model.PermissionGrant, subject, object provision.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.owned(subject, KindComputeUnit); err != nil {
		return fmt.Errorf("grant subject: %w", err)
	}
	if _, err := p.owned(object, KindCollection); err != nil {
		return fmt.Errorf("grant object: %w", err)
	}
	_, err := p.reconcile("GrantAccess", grant.Key(), KindGrant, grant, func(attrs map[string]string) {
		attrs["Access"] = string(grant.Access)
	})
	return err
}

// PutGateway implements provision.Provider.
func (p *Provider) PutGateway(_ context.Context, spec model.GatewaySpec, backing provision.Identity) (provision.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.owned(backing, KindComputeUnit); err != nil {
		return provision.Identity{}, fmt.Errorf("gateway backing: %w", err)
	}
	res, err := p.reconcile("PutGateway", spec.ID, KindGateway, spec, func(attrs map[string]string) {
		id := shortID(p.newID())
		attrs[model.AttrID] = id
		attrs[model.AttrName] = spec.Name
		attrs[model.AttrURL] = fmt.Sprintf("https://%s.appsync-api.%s.amazonaws.com/graphql", id, p.region)
		attrs[model.AttrArn] = fmt.Sprintf("arn:aws:appsync:%s:%s:apis/%s", p.region, p.account, id)
	})
	if err != nil {
		return provision.Identity{}, err
	}

	res.Attrs[model.AttrName] = spec.Name
	res.Attrs[attrAuthMode] = string(spec.Auth.Mode)
	switch {
	case spec.Auth.Mode.KeyBased() && res.Attrs[model.AttrAPIKey] == "":
		res.Attrs[model.AttrAPIKey] = "da2-" + shortID(p.newID())
	case !spec.Auth.Mode.KeyBased():
		delete(res.Attrs, model.AttrAPIKey)
	}
	return identity(spec.ID, res), nil
}

// PutOperationBinding implements provision.Provider.
func (p *Provider) PutOperationBinding(_ context.Context, binding model.OperationBinding, gateway, target provision.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	gw, err := p.owned(gateway, KindGateway)
	if err != nil {
		return fmt.Errorf("binding gateway: %w", err)
	}
	fn, err := p.owned(target, KindComputeUnit)
	if err != nil {
		return fmt.Errorf("binding target: %w", err)
	}
	key := gw + "/" + binding.Key()
	_, err = p.reconcile("PutOperationBinding", key, KindBinding, binding, func(attrs map[string]string) {
		attrs["Target"] = fn
	})
	return err
}

// DescribeGateway implements provision.Provider.
func (p *Provider) DescribeGateway(_ context.Context, gateway provision.Identity) (provision.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.fault("DescribeGateway", gateway.ID); err != nil {
		p.calls = append(p.calls, Call{Op: "DescribeGateway", Resource: gateway.ID, Action: Failed})
		return provision.Response{}, err
	}
	logical, err := p.owned(gateway, KindGateway)
	if err != nil {
		return provision.Response{}, err
	}
	p.calls = append(p.calls, Call{Op: "DescribeGateway", Resource: logical, Action: Unchanged})

	res := p.state.Resources[logical]
	key := res.Attrs[model.AttrAPIKey]
	if key == "" {
		key = model.NoAPIKey
	}
	return provision.Response{
		AuthMode: model.AuthMode(res.Attrs[attrAuthMode]),
		Outputs: map[string]string{
			provision.OutputURL:    res.Attrs[model.AttrURL],
			provision.OutputAPIKey: key,
		},
	}, nil
}

// reconcile creates or updates the resource stored under key. init fills
// the attributes of a newly created resource. Callers hold p.mu.
func (p *Provider) reconcile(op, key, kind string, spec any, init func(map[string]string)) (*Resource, error) {
	if err := p.fault(op, key); err != nil {
		p.calls = append(p.calls, Call{Op: op, Resource: key, Action: Failed})
		return nil, err
	}

	hash, err := specHash(spec)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", key, err)
	}

	res, ok := p.state.Resources[key]
	action := Unchanged
	switch {
	case !ok:
		res = &Resource{Kind: kind, Hash: hash, Attrs: make(map[string]string)}
		init(res.Attrs)
		p.state.Resources[key] = res
		action = Created
	case res.Kind != kind:
		return nil, fmt.Errorf("%s already exists as a %s", key, res.Kind)
	case res.Hash != hash:
		res.Hash = hash
		if res.Attrs == nil {
			res.Attrs = make(map[string]string)
			init(res.Attrs)
		}
		action = Updated
	}

	p.calls = append(p.calls, Call{Op: op, Resource: key, Action: action})
	return res, nil
}

// owned returns the state key of a resource previously returned by this
// provider, checking its kind. Callers hold p.mu.
func (p *Provider) owned(id provision.Identity, kind string) (string, error) {
	res, ok := p.state.Resources[id.ID]
	if !ok {
		return "", fmt.Errorf("%s %q is not provisioned", kind, id.ID)
	}
	if res.Kind != kind {
		return "", fmt.Errorf("%q is a %s, not a %s", id.ID, res.Kind, kind)
	}
	return id.ID, nil
}

func (p *Provider) fault(op, resource string) error {
	if err, ok := p.faults[op+":"+resource]; ok {
		return err
	}
	if err, ok := p.faults[op+":"]; ok {
		return err
	}
	return nil
}

// identity reports the resource under its logical ID so later calls can
// find it in state.
func identity(logicalID string, res *Resource) provision.Identity {
	attrs := make(map[string]any, len(res.Attrs))
	for k, v := range res.Attrs {
		if k == attrAuthMode {
			continue
		}
		attrs[k] = v
	}
	return provision.Identity{ID: logicalID, Attrs: attrs}
}

func specHash(spec any) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func newPhysicalID() string {
	return uuid.NewString()
}

// shortID turns a uuid into the 26 character lowercase form AppSync uses.
func shortID(id string) string {
	id = strings.ToLower(strings.ReplaceAll(id, "-", ""))
	if len(id) > 26 {
		id = id[:26]
	}
	return id
}
