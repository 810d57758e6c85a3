package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/registry"
	"github.com/tcmartin/dagrunner/pkg/toposort"
)

// DefaultLoader implements the PipelineLoader interface
type DefaultLoader struct {
	schema   *jsonschema.Schema
	registry registry.StrategyRegistry
}

// NewLoader creates a pipeline loader. When reg is non-nil, Validate also
// rejects node types that have no registered strategy.
func NewLoader(reg registry.StrategyRegistry) PipelineLoader {
	return &DefaultLoader{
		schema:   jsonschema.MustCompileString("pipeline.schema.json", PipelineSchema),
		registry: reg,
	}
}

// LoadFile reads and parses a pipeline file
func (l *DefaultLoader) LoadFile(path string) (*models.Pipeline, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	format := FormatAuto
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = FormatJSON
	case ".yaml", ".yml":
		format = FormatYAML
	}

	return l.Parse(content, format)
}

// Parse decodes content, checks it against the document schema, then validates the graph
func (l *DefaultLoader) Parse(content []byte, format Format) (*models.Pipeline, error) {
	if format == FormatAuto {
		format = sniff(content)
	}

	var doc interface{}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		normalized, err := normalize(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		doc = normalized
	default:
		return nil, fmt.Errorf("unsupported pipeline format: %s", format)
	}

	if err := l.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
	}

	var pipeline models.Pipeline
	var err error
	if format == FormatJSON {
		err = json.Unmarshal(content, &pipeline)
	} else {
		err = yaml.Unmarshal(content, &pipeline)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode pipeline: %w", err)
	}

	if pipeline.Version == "" {
		pipeline.Version = models.DefaultPipelineVersion
	}
	if pipeline.Name == "" {
		pipeline.Name = pipeline.ID
	}
	for i := range pipeline.Edges {
		if pipeline.Edges[i].ID == "" {
			pipeline.Edges[i].ID = fmt.Sprintf("%s->%s", pipeline.Edges[i].Source, pipeline.Edges[i].Target)
		}
	}

	if err := l.Validate(&pipeline); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// Validate checks ids, edge endpoints, strategy availability and acyclicity
func (l *DefaultLoader) Validate(pipeline *models.Pipeline) error {
	if pipeline == nil {
		return fmt.Errorf("%w: pipeline is nil", ErrInvalidPipeline)
	}
	if pipeline.ID == "" {
		return fmt.Errorf("%w: pipeline id is required", ErrInvalidPipeline)
	}

	seen := make(map[string]bool, len(pipeline.Nodes))
	for _, node := range pipeline.Nodes {
		if node.ID == "" {
			return fmt.Errorf("%w: node without id", ErrInvalidPipeline)
		}
		if seen[node.ID] {
			return fmt.Errorf("%w: duplicate node id '%s'", ErrInvalidPipeline, node.ID)
		}
		seen[node.ID] = true

		if l.registry != nil {
			if _, err := l.registry.GetStrategy(node.Type); err != nil {
				return fmt.Errorf("%w: node '%s': %v", ErrInvalidPipeline, node.ID, err)
			}
		}
	}

	for _, edge := range pipeline.Edges {
		if !seen[edge.Source] {
			return fmt.Errorf("%w: edge '%s' references non-existent source node '%s'", ErrInvalidPipeline, edge.ID, edge.Source)
		}
		if !seen[edge.Target] {
			return fmt.Errorf("%w: edge '%s' references non-existent target node '%s'", ErrInvalidPipeline, edge.ID, edge.Target)
		}
	}

	if _, err := toposort.Sort(pipeline); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}
	return nil
}

func sniff(content []byte) Format {
	if trimmed := bytes.TrimSpace(content); len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// normalize round-trips a YAML document through JSON so the schema validator
// sees only JSON value types
func normalize(doc interface{}) (interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
