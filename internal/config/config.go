package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"secsplice/internal/section"

	"github.com/joho/godotenv"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "secsplice.yaml"

// Defaults reproduce the original restore script.
const (
	DefaultSource = "allTestData_restored.js"
	DefaultDest   = "script.js"
	DefaultLabel  = "General Chemistry"
)

type Job struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
	Label  string `yaml:"label"`
}

type Config struct {
	Splice  Job             `yaml:"splice"`
	Pattern section.Pattern `yaml:"pattern"`
	Jobs    []Job           `yaml:"jobs"`
	Journal struct {
		Path string `yaml:"path"` // empty disables the journal
	} `yaml:"journal"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// LoadConfig reads path if it exists, then applies SECSPLICE_* environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	var cfg Config

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := validateSchema(file); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// 3. Override with Environment Variables if present
	if v := os.Getenv("SECSPLICE_SOURCE"); v != "" {
		cfg.Splice.Source = v
	}
	if v := os.Getenv("SECSPLICE_DEST"); v != "" {
		cfg.Splice.Dest = v
	}
	if v := os.Getenv("SECSPLICE_LABEL"); v != "" {
		cfg.Splice.Label = v
	}
	if v := os.Getenv("SECSPLICE_JOURNAL"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("SECSPLICE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Splice.Source == "" {
		c.Splice.Source = DefaultSource
	}
	if c.Splice.Dest == "" {
		c.Splice.Dest = DefaultDest
	}
	if c.Splice.Label == "" {
		c.Splice.Label = DefaultLabel
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Pattern = c.Pattern.WithDefaults()

	for i := range c.Jobs {
		j := &c.Jobs[i]
		if j.Source == "" {
			j.Source = c.Splice.Source
		}
		if j.Dest == "" {
			j.Dest = c.Splice.Dest
		}
		if j.Name == "" {
			j.Name = j.Label
		}
	}
}

func (c *Config) Validate() error {
	if err := c.Pattern.Validate(); err != nil {
		return err
	}
	var problems []string
	for i, j := range c.Jobs {
		if strings.TrimSpace(j.Label) == "" {
			problems = append(problems, fmt.Sprintf("jobs[%d]: label is required", i))
		}
		if j.Source == j.Dest {
			problems = append(problems, fmt.Sprintf("jobs[%d]: source and dest are the same file %q", i, j.Source))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

//go:embed secsplice.schema.json
var schemaJSON string

var loadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("secsplice.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("secsplice.schema.json")
})

// validateSchema checks the raw YAML document against secsplice.schema.json,
// which rejects unknown keys and values of the wrong type.
func validateSchema(file []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(file, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	var v any
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config for schema validation: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to normalize config for schema validation: %w", err)
	}
	return schema.Validate(v)
}
