package sim

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pasim/pasim/sim/journal"
)

// Pipeline executes components in fixed stage order. It is the Go counterpart
// of running a list of simulation modules over a settings dictionary: every
// component reads from and writes to the shared Store, and every execution is
// recorded in the run journal.
type Pipeline struct {
	components []Component
}

// NewPipeline wires components into a pipeline. Components must be ordered by
// stage (volume creation before optical before acoustic, and so on); not
// every stage has to be present.
func NewPipeline(components ...Component) (*Pipeline, error) {
	lastRank := -1
	for _, c := range components {
		rank, ok := stageRank[c.Stage()]
		if !ok {
			return nil, errors.Errorf("component %q: unknown stage %q", c.Name(), c.Stage())
		}
		if rank < lastRank {
			return nil, errors.Errorf("component %q: stage %q out of pipeline order", c.Name(), c.Stage())
		}
		lastRank = rank
	}
	if len(components) == 0 {
		return nil, errors.New("pipeline has no components")
	}
	return &Pipeline{components: components}, nil
}

// Run executes all components in order. The first failing component aborts
// the run; its error is wrapped with the stage that produced it. Every
// attempted component leaves a journal record either way.
func (p *Pipeline) Run(ctx context.Context, rc *RunContext) error {
	logrus.Infof("simulation %s: %d components, wavelengths %v",
		rc.Settings.General.RunID, len(p.components), rc.Settings.General.Wavelengths)

	for _, c := range p.components {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := logrus.WithFields(logrus.Fields{"stage": c.Stage(), "component": c.Name()})
		log.Info("stage started")
		start := time.Now()
		err := c.Run(ctx, rc)
		record := journal.StageRecord{
			Stage:     string(c.Stage()),
			Component: c.Name(),
			StartedAt: start,
			Duration:  time.Since(start),
			Status:    journal.StatusOK,
		}
		if err != nil {
			record.Status = journal.StatusFailed
			record.Error = err.Error()
			rc.Journal.Record(record)
			log.WithError(err).Error("stage failed")
			return errors.Wrapf(err, "stage %s (%s)", c.Stage(), c.Name())
		}
		rc.Journal.Record(record)
		log.Infof("stage finished in %s", record.Duration.Round(time.Millisecond))
	}
	logrus.Infof("simulation %s complete", rc.Settings.General.RunID)
	return nil
}
