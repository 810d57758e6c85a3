// Package models defines the pipeline definition and execution state data model.
package models

// DefaultPipelineVersion is used when a pipeline document omits its version
const DefaultPipelineVersion = "1.0.0"

// Node is a single unit of work in a pipeline
type Node struct {
	// ID is unique within the pipeline
	ID string `json:"id" yaml:"id"`

	// Type selects the strategy that executes the node
	Type string `json:"type" yaml:"type"`

	// Label is a human readable name
	Label string `json:"label" yaml:"label"`

	// Data holds static inputs for the node
	Data map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`

	// Config holds operational settings (model, apiKey, ...)
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// DataString returns a string value from the node data, or "" when absent
func (n Node) DataString(key string) string {
	if n.Data == nil {
		return ""
	}
	s, _ := n.Data[key].(string)
	return s
}

// ConfigString returns a string value from the node config, or "" when absent
func (n Node) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}
	s, _ := n.Config[key].(string)
	return s
}

// Edge declares that Target depends on Source
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`

	// Condition is reserved; the scheduler does not evaluate it
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Pipeline is the static description of nodes and edges
type Pipeline struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []Node `json:"nodes" yaml:"nodes"`
	Edges       []Edge `json:"edges" yaml:"edges"`
	Version     string `json:"version" yaml:"version"`
}

// NodeIDs returns the node ids in declaration order
func (p *Pipeline) NodeIDs() []string {
	ids := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// Node looks up a node by id
func (p *Pipeline) Node(id string) (Node, bool) {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
