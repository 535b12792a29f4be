// Package domain holds the run manifest, the per-configuration results and
// the ports of the SLA run pipeline
package domain

import (
	"time"

	"slaledger/internal/core/accumulate"
)

// Source kinds
const (
	SourceFile = "file"
	SourceAPI  = "api"
)

// Manifest lists the configurations one run processes, in order
type Manifest struct {
	OutputDir      string       `yaml:"output_dir"`
	Timezone       string       `yaml:"timezone"`
	Configurations []ConfigSpec `yaml:"configurations" validate:"required,min=1,dive"`
}

// ConfigSpec is one workflow configuration to process
type ConfigSpec struct {
	ID           string     `yaml:"id" validate:"required"`
	Name         string     `yaml:"name"`
	Source       SourceSpec `yaml:"source"`
	WorkflowPath string     `yaml:"workflow_path"`
	StatusFilter []string   `yaml:"status_filter"`
}

// SourceSpec says where orders come from
type SourceSpec struct {
	Kind string `yaml:"kind" validate:"omitempty,oneof=file api"`
	Path string `yaml:"path" validate:"required_if=Kind file"`
}

// ConfigResult is the outcome of one configuration
type ConfigResult struct {
	ConfigID string
	Name     string

	Orders      int
	Stages      int
	OnTime      int
	Late        int
	Unknown     int
	Dropped     int
	PrimaryRows int
	StageRows   int

	// ExportPath is the per-run stage report, blank when it was not written
	ExportPath string
	Writes     []accumulate.ArtifactResult

	Took time.Duration
	Err  error
}

// OK reports whether the configuration ran and every artifact was written
func (r ConfigResult) OK() bool {
	if r.Err != nil {
		return false
	}
	for _, w := range r.Writes {
		if w.Err != nil {
			return false
		}
	}
	return true
}

// RunSummary aggregates one run
type RunSummary struct {
	RunID   string
	Started time.Time
	Results []ConfigResult
}

// Failed returns the configurations that did not complete cleanly
func (s RunSummary) Failed() []ConfigResult {
	var out []ConfigResult
	for _, r := range s.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
