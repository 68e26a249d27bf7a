// Package model declares the resources of a provisioning run.
//
// Specs are plain values: they are built once by the topology builder,
// validated as a whole Graph and never mutated afterwards. Cross-resource
// values (a table name in a function's environment) are expressed as
// References and resolved by the provisioning driver.
package model

import (
	"time"
)

// AttributeType is a DynamoDB scalar attribute type.
type AttributeType string

const (
	AttributeString AttributeType = "S"
	AttributeNumber AttributeType = "N"
	AttributeBinary AttributeType = "B"
)

// Valid reports whether t is a known attribute type.
func (t AttributeType) Valid() bool {
	switch t {
	case AttributeString, AttributeNumber, AttributeBinary:
		return true
	}
	return false
}

// KeyAttribute is a key attribute name and type.
type KeyAttribute struct {
	Name string
	Type AttributeType
}

// Projection controls which attributes are copied into a secondary index.
type Projection string

const (
	ProjectAll      Projection = "ALL"
	ProjectKeysOnly Projection = "KEYS_ONLY"
)

// IndexSpec is a global secondary index on a keyed collection.
type IndexSpec struct {
	Name       string
	Key        KeyAttribute
	Projection Projection
}

// ProjectionOrDefault returns the projection, defaulting to ALL.
func (i IndexSpec) ProjectionOrDefault() Projection {
	if i.Projection == "" {
		return ProjectAll
	}
	return i.Projection
}

// BillingMode is the capacity mode of a keyed collection.
type BillingMode string

const (
	PayPerRequest BillingMode = "PAY_PER_REQUEST"
	Provisioned   BillingMode = "PROVISIONED"
)

// RemovalPolicy decides what happens to a resource when the stack is torn down.
type RemovalPolicy string

const (
	Retain  RemovalPolicy = "RETAIN"
	Destroy RemovalPolicy = "DESTROY"
)

// KeyedCollectionSpec describes a table addressed by a primary key.
type KeyedCollectionSpec struct {
	// ID is the logical identifier (e.g. "UsersTable").
	ID string
	// TableName is the requested physical name. Empty lets the provider generate one.
	TableName  string
	PrimaryKey KeyAttribute
	Indexes    []IndexSpec
	Billing    BillingMode
	Removal    RemovalPolicy
}

// ComputeUnitSpec describes a stateless function.
type ComputeUnitSpec struct {
	ID           string
	Runtime      string
	Handler      string
	ArtifactPath string
	Timeout      time.Duration
	MemoryMB     int
	Environment  map[string]Value
}

// Access is the level of data access granted to a compute unit.
type Access string

const (
	AccessRead      Access = "read"
	AccessWrite     Access = "write"
	AccessReadWrite Access = "read_write"
)

// PermissionGrant gives Subject (a compute unit) Access to Object (a collection).
type PermissionGrant struct {
	Subject string
	Object  string
	Access  Access
}

// Key returns a stable identifier for the grant.
func (g PermissionGrant) Key() string {
	return g.Subject + "->" + g.Object
}

// AuthMode is the default authorization type of a gateway.
type AuthMode string

const (
	AuthAPIKey  AuthMode = "API_KEY"
	AuthIAM     AuthMode = "AWS_IAM"
	AuthCognito AuthMode = "AMAZON_COGNITO_USER_POOLS"
	AuthOIDC    AuthMode = "OPENID_CONNECT"
	AuthLambda  AuthMode = "AWS_LAMBDA"
)

// KeyBased reports whether the mode issues API keys.
func (m AuthMode) KeyBased() bool {
	return m == AuthAPIKey
}

// AuthPolicy is the gateway's authorization configuration.
type AuthPolicy struct {
	Mode AuthMode
	// APIKeyExpiry is how long after provisioning an API key stays valid.
	// Only meaningful for AuthAPIKey.
	APIKeyExpiry time.Duration
}

// GatewaySpec describes a GraphQL API fronting a compute unit.
type GatewaySpec struct {
	ID         string
	Name       string
	SchemaPath string
	Auth       AuthPolicy
	Tracing    bool
	// Backing is the logical ID of the compute unit serving operations.
	Backing        string
	DataSourceName string
}

// OperationCategory is the GraphQL root type an operation belongs to.
type OperationCategory string

const (
	Query    OperationCategory = "Query"
	Mutation OperationCategory = "Mutation"
)

// OperationBinding maps a named query or mutation to a compute unit.
type OperationBinding struct {
	Category OperationCategory
	Name     string
	Gateway  string
	Target   string
}

// Key returns the binding's identity within its gateway.
func (b OperationBinding) Key() string {
	return string(b.Category) + "." + b.Name
}

// Graph is the full set of resources for one provisioning run.
type Graph struct {
	Collections  []KeyedCollectionSpec
	ComputeUnits []ComputeUnitSpec
	Grants       []PermissionGrant
	Gateways     []GatewaySpec
	Bindings     []OperationBinding
}

// Counts summarizes the number of specs of each kind.
type Counts struct {
	Collections  int
	ComputeUnits int
	Grants       int
	Gateways     int
	Bindings     int
	Queries      int
	Mutations    int
}

// Counts returns the number of specs of each kind.
func (g *Graph) Counts() Counts {
	c := Counts{
		Collections:  len(g.Collections),
		ComputeUnits: len(g.ComputeUnits),
		Grants:       len(g.Grants),
		Gateways:     len(g.Gateways),
		Bindings:     len(g.Bindings),
	}
	for _, b := range g.Bindings {
		switch b.Category {
		case Query:
			c.Queries++
		case Mutation:
			c.Mutations++
		}
	}
	return c
}

// Collection returns the collection with the given logical ID.
func (g *Graph) Collection(id string) (KeyedCollectionSpec, bool) {
	for _, c := range g.Collections {
		if c.ID == id {
			return c, true
		}
	}
	return KeyedCollectionSpec{}, false
}

// ComputeUnit returns the compute unit with the given logical ID.
func (g *Graph) ComputeUnit(id string) (ComputeUnitSpec, bool) {
	for _, c := range g.ComputeUnits {
		if c.ID == id {
			return c, true
		}
	}
	return ComputeUnitSpec{}, false
}

// Gateway returns the gateway with the given logical ID.
func (g *Graph) Gateway(id string) (GatewaySpec, bool) {
	for _, gw := range g.Gateways {
		if gw.ID == id {
			return gw, true
		}
	}
	return GatewaySpec{}, false
}

// NoAPIKey is reported in place of an API key when the gateway does not issue one.
const NoAPIKey = "No API Key"

// ProvisionedOutputs are the externally relevant results of a run.
type ProvisionedOutputs struct {
	GatewayURL string
	// APIKey is nil when the gateway's auth mode is not key based.
	APIKey *string
}

// HasAPIKey reports whether an API key was issued.
func (o ProvisionedOutputs) HasAPIKey() bool {
	return o.APIKey != nil
}

// APIKeyOrSentinel returns the API key, or NoAPIKey when there is none.
func (o ProvisionedOutputs) APIKeyOrSentinel() string {
	if o.APIKey == nil {
		return NoAPIKey
	}
	return *o.APIKey
}
