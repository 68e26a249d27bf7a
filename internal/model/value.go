package model

import "fmt"

// Attribute names a provider reports for provisioned resources.
const (
	AttrName   = "Name"
	AttrArn    = "Arn"
	AttrID     = "Id"
	AttrURL    = "Url"
	AttrAPIKey = "ApiKey"
)

// Value is an environment value: either a Literal or a Reference that is
// resolved once the referenced resource has been provisioned.
type Value interface {
	isValue()
	String() string
}

// Literal is a fixed string value.
type Literal string

func (Literal) isValue() {}

func (l Literal) String() string { return string(l) }

// Reference points at an attribute of another resource in the graph.
type Reference struct {
	Resource  string
	Attribute string
}

func (Reference) isValue() {}

func (r Reference) String() string {
	return fmt.Sprintf("${%s.%s}", r.Resource, r.Attribute)
}

// NameOf references the generated name of a resource.
func NameOf(resource string) Reference {
	return Reference{Resource: resource, Attribute: AttrName}
}

// ArnOf references the ARN of a resource.
func ArnOf(resource string) Reference {
	return Reference{Resource: resource, Attribute: AttrArn}
}
