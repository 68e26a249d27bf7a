package topology

import (
	"time"

	"github.com/lex00/notes-stack-go/internal/model"
)

// Logical IDs of the Notes application resources.
const (
	UsersTableID = "UsersTable"
	NotesTableID = "NotesTable"
	FunctionID   = "NotesAppFunction"
	APIID        = "NotesApi"
)

const (
	functionRuntime = "dotnet8"
	functionHandler = "NotesApp.Lambda::NotesApp.Lambda.Function::FunctionHandler"
	functionTimeout = 30 * time.Second
	functionMemory  = 512

	apiName        = "notes-api"
	dataSourceName = "LambdaDataSource"
	apiKeyExpiry   = 365 * 24 * time.Hour
)

// Queries served by the function.
var Queries = []string{
	"getUserById",
	"getAllUsers",
	"getNoteById",
	"getAllNotes",
	"getNotesByUserId",
}

// Mutations served by the function.
var Mutations = []string{
	"createUser",
	"updateUser",
	"deleteUser",
	"createNote",
	"updateNote",
	"deleteNote",
}

// BuildTopology returns the Notes application graph for cfg. It fails with a
// ConfigError before declaring anything when the artifact or schema is missing.
func BuildTopology(cfg Config) (*model.Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := NewBuilder()

	b.AddCollection(model.KeyedCollectionSpec{
		ID:         UsersTableID,
		TableName:  "Users",
		PrimaryKey: stringKey("Id"),
		Indexes: []model.IndexSpec{
			{Name: "EmailIndex", Key: stringKey("Email")},
			{Name: "UsernameIndex", Key: stringKey("Username")},
		},
		Billing: model.PayPerRequest,
		Removal: model.Destroy,
	})

	b.AddCollection(model.KeyedCollectionSpec{
		ID:         NotesTableID,
		TableName:  "Notes",
		PrimaryKey: stringKey("Id"),
		Indexes: []model.IndexSpec{
			{Name: "UserIdIndex", Key: stringKey("UserId")},
		},
		Billing: model.PayPerRequest,
		Removal: model.Destroy,
	})

	b.AddComputeUnit(model.ComputeUnitSpec{
		ID:           FunctionID,
		Runtime:      functionRuntime,
		Handler:      functionHandler,
		ArtifactPath: cfg.ArtifactPath,
		Timeout:      functionTimeout,
		MemoryMB:     functionMemory,
		Environment: map[string]model.Value{
			"USERS_TABLE": model.NameOf(UsersTableID),
			"NOTES_TABLE": model.NameOf(NotesTableID),
		},
	})

	b.AddGrant(model.PermissionGrant{Subject: FunctionID, Object: UsersTableID, Access: model.AccessReadWrite})
	b.AddGrant(model.PermissionGrant{Subject: FunctionID, Object: NotesTableID, Access: model.AccessReadWrite})

	b.AddGateway(model.GatewaySpec{
		ID:         APIID,
		Name:       apiName,
		SchemaPath: cfg.SchemaPath,
		Auth: model.AuthPolicy{
			Mode:         model.AuthAPIKey,
			APIKeyExpiry: apiKeyExpiry,
		},
		Tracing:        true,
		Backing:        FunctionID,
		DataSourceName: dataSourceName,
	})

	for _, name := range Queries {
		b.AddBinding(model.OperationBinding{Category: model.Query, Name: name, Gateway: APIID, Target: FunctionID})
	}
	for _, name := range Mutations {
		b.AddBinding(model.OperationBinding{Category: model.Mutation, Name: name, Gateway: APIID, Target: FunctionID})
	}

	return b.Build()
}

func stringKey(name string) model.KeyAttribute {
	return model.KeyAttribute{Name: name, Type: model.AttributeString}
}
