// Package loader reads pipeline definitions from JSON or YAML documents.
package loader

import (
	"errors"

	"github.com/tcmartin/dagrunner/pkg/models"
)

// Format identifies the encoding of a pipeline document
type Format string

const (
	// FormatAuto sniffs the content: a leading '{' means JSON, anything else YAML
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrInvalidPipeline wraps every structural validation failure
var ErrInvalidPipeline = errors.New("invalid pipeline")

// PipelineLoader parses pipeline definitions into the engine's data model
type PipelineLoader interface {
	// LoadFile reads and parses a pipeline file, picking the format by extension
	LoadFile(path string) (*models.Pipeline, error)

	// Parse decodes content in the given format and validates the result
	Parse(content []byte, format Format) (*models.Pipeline, error)

	// Validate checks a decoded pipeline
	Validate(pipeline *models.Pipeline) error
}
