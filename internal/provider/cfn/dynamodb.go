package cfn

import (
	"context"
	"fmt"

	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
	"github.com/lex00/notes-stack-go/internal/template"
)

const resourceTable = "AWS::DynamoDB::Table"

type attributeDefinition struct {
	AttributeName string `json:"AttributeName"`
	AttributeType string `json:"AttributeType"`
}

type keySchema struct {
	AttributeName string `json:"AttributeName"`
	KeyType       string `json:"KeyType"`
}

type projection struct {
	ProjectionType string `json:"ProjectionType"`
}

type globalSecondaryIndex struct {
	IndexName  string      `json:"IndexName"`
	KeySchema  []keySchema `json:"KeySchema"`
	Projection projection  `json:"Projection"`
}

type tableProperties struct {
	TableName              string                 `json:"TableName,omitempty"`
	BillingMode            string                 `json:"BillingMode,omitempty"`
	AttributeDefinitions   []attributeDefinition  `json:"AttributeDefinitions"`
	KeySchema              []keySchema            `json:"KeySchema"`
	GlobalSecondaryIndexes []globalSecondaryIndex `json:"GlobalSecondaryIndexes,omitempty"`
}

func (t *tableProperties) define(attr model.KeyAttribute) error {
	for _, d := range t.AttributeDefinitions {
		if d.AttributeName == attr.Name {
			if d.AttributeType != string(attr.Type) {
				return fmt.Errorf("attribute %s declared as %s and %s", attr.Name, d.AttributeType, attr.Type)
			}
			return nil
		}
	}
	t.AttributeDefinitions = append(t.AttributeDefinitions, attributeDefinition{
		AttributeName: attr.Name,
		AttributeType: string(attr.Type),
	})
	return nil
}

// PutCollection implements provision.Provider.
func (s *Synthesizer) PutCollection(_ context.Context, spec model.KeyedCollectionSpec) (provision.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props := &tableProperties{
		TableName:   spec.TableName,
		BillingMode: string(spec.Billing),
		KeySchema:   []keySchema{{AttributeName: spec.PrimaryKey.Name, KeyType: "HASH"}},
	}
	if err := props.define(spec.PrimaryKey); err != nil {
		return provision.Identity{}, err
	}
	// Indexes already attached by an earlier run stay attached.
	if prev, ok := s.tables[spec.ID]; ok {
		for _, gsi := range prev.GlobalSecondaryIndexes {
			for _, d := range prev.AttributeDefinitions {
				if d.AttributeName == gsi.KeySchema[0].AttributeName {
					_ = props.define(model.KeyAttribute{Name: d.AttributeName, Type: model.AttributeType(d.AttributeType)})
				}
			}
		}
		props.GlobalSecondaryIndexes = prev.GlobalSecondaryIndexes
	}

	if err := s.put(spec.ID, template.Resource{
		Type:           resourceTable,
		Properties:     props,
		DeletionPolicy: deletionPolicy(spec.Removal),
	}); err != nil {
		return provision.Identity{}, err
	}
	s.tables[spec.ID] = props

	return provision.Identity{
		ID: spec.ID,
		Attrs: map[string]any{
			model.AttrName: ref(spec.ID),
			model.AttrArn:  arnOf(spec.ID),
		},
	}, nil
}

// PutIndex implements provision.Provider.
func (s *Synthesizer) PutIndex(_ context.Context, collection provision.Identity, index model.IndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.tables[collection.ID]
	if !ok {
		return fmt.Errorf("table %s was not synthesized", collection.ID)
	}
	if err := props.define(index.Key); err != nil {
		return err
	}

	gsi := globalSecondaryIndex{
		IndexName:  index.Name,
		KeySchema:  []keySchema{{AttributeName: index.Key.Name, KeyType: "HASH"}},
		Projection: projection{ProjectionType: string(index.ProjectionOrDefault())},
	}
	for i, existing := range props.GlobalSecondaryIndexes {
		if existing.IndexName == index.Name {
			props.GlobalSecondaryIndexes[i] = gsi
			return nil
		}
	}
	props.GlobalSecondaryIndexes = append(props.GlobalSecondaryIndexes, gsi)
	return nil
}
