package topology

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lex00/notes-stack-go/internal/model"
)

// DefaultStackName is used when no stack name is configured.
const DefaultStackName = "NotesAppStack"

// Config is the build-time input of the topology. Environment lookup is the
// caller's job; this package never reads the process environment.
type Config struct {
	Account      string `yaml:"account"`
	Region       string `yaml:"region"`
	ArtifactPath string `yaml:"artifact"`
	SchemaPath   string `yaml:"schema"`
	StackName    string `yaml:"stack_name"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &model.ConfigError{Field: "config file", Path: path, Err: err}
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &model.ConfigError{Field: "config file", Path: path, Err: fmt.Errorf("parsing YAML: %w", err)}
	}
	return cfg, nil
}

// Merge returns c with every empty field filled from other.
func (c Config) Merge(other Config) Config {
	if c.Account == "" {
		c.Account = other.Account
	}
	if c.Region == "" {
		c.Region = other.Region
	}
	if c.ArtifactPath == "" {
		c.ArtifactPath = other.ArtifactPath
	}
	if c.SchemaPath == "" {
		c.SchemaPath = other.SchemaPath
	}
	if c.StackName == "" {
		c.StackName = other.StackName
	}
	return c
}

// Stack returns the configured stack name or DefaultStackName.
func (c Config) Stack() string {
	if c.StackName == "" {
		return DefaultStackName
	}
	return c.StackName
}

// Validate checks that the artifact and schema exist on disk.
func (c Config) Validate() error {
	if err := requireFile("artifact path", c.ArtifactPath); err != nil {
		return err
	}
	return requireFile("schema path", c.SchemaPath)
}

func requireFile(field, path string) error {
	if path == "" {
		return &model.ConfigError{Field: field, Err: errors.New("not set")}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &model.ConfigError{Field: field, Path: path, Err: err}
	}
	if info.IsDir() {
		return &model.ConfigError{Field: field, Path: path, Err: errors.New("is a directory")}
	}
	return nil
}
