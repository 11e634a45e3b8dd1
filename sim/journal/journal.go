// Package journal records what happened during one simulation run: which
// components executed, for how long, and whether they succeeded. The journal
// is written next to the simulation output so that a result container can
// always be traced back to the run that produced it.
package journal

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Status of one executed pipeline stage.
type Status string

const (
	// StatusOK marks a stage that completed successfully.
	StatusOK Status = "ok"
	// StatusFailed marks a stage that returned an error.
	StatusFailed Status = "failed"
)

// StageRecord describes one component execution.
type StageRecord struct {
	Stage     string        `yaml:"stage"`
	Component string        `yaml:"component"`
	StartedAt time.Time     `yaml:"started_at"`
	Duration  time.Duration `yaml:"duration"`
	Status    Status        `yaml:"status"`
	Error     string        `yaml:"error,omitempty"`
}

// Journal collects stage records during a simulation run.
type Journal struct {
	RunID   string        `yaml:"run_id"`
	Records []StageRecord `yaml:"records"`
}

// New creates a Journal ready for recording.
func New(runID string) *Journal {
	return &Journal{
		RunID:   runID,
		Records: make([]StageRecord, 0),
	}
}

// Record appends a stage record.
func (j *Journal) Record(r StageRecord) {
	j.Records = append(j.Records, r)
}

// Failed returns true if any recorded stage failed.
func (j *Journal) Failed() bool {
	for _, r := range j.Records {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}

// WriteYAML persists the journal to path.
func (j *Journal) WriteYAML(path string) error {
	data, err := yaml.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "marshal journal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write journal %q", path)
	}
	return nil
}
