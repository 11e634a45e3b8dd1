package sim_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasim/pasim/sim"
	"github.com/pasim/pasim/sim/internal/testutil"
	"github.com/pasim/pasim/sim/journal"
)

// fakeComponent records whether it ran and can be told to fail.
type fakeComponent struct {
	stage sim.Stage
	name  string
	fail  error
	ran   bool
}

func (f *fakeComponent) Stage() sim.Stage { return f.stage }
func (f *fakeComponent) Name() string     { return f.name }
func (f *fakeComponent) Run(ctx context.Context, rc *sim.RunContext) error {
	f.ran = true
	return f.fail
}

func newTestRunContext() *sim.RunContext {
	settings := testSettings()
	return sim.NewRunContext(settings, testutil.NewMemStore())
}

func TestNewPipeline_RejectsOutOfOrderStages(t *testing.T) {
	// GIVEN components wired acoustic-before-optical
	_, err := sim.NewPipeline(
		&fakeComponent{stage: sim.StageAcousticForward, name: "a"},
		&fakeComponent{stage: sim.StageOpticalForward, name: "b"},
	)

	// THEN assembly fails
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of pipeline order")
}

func TestNewPipeline_RejectsEmptyAndUnknownStage(t *testing.T) {
	_, err := sim.NewPipeline()
	assert.Error(t, err)

	_, err = sim.NewPipeline(&fakeComponent{stage: "warp_drive", name: "x"})
	assert.Error(t, err)
}

func TestPipeline_RunsComponentsInOrder(t *testing.T) {
	// GIVEN a three-stage pipeline
	c1 := &fakeComponent{stage: sim.StageVolumeCreation, name: "volumes"}
	c2 := &fakeComponent{stage: sim.StageOpticalForward, name: "optical"}
	c3 := &fakeComponent{stage: sim.StageProcessing, name: "post"}
	p, err := sim.NewPipeline(c1, c2, c3)
	require.NoError(t, err)
	rc := newTestRunContext()

	// WHEN it runs
	require.NoError(t, p.Run(context.Background(), rc))

	// THEN every component ran and was journaled as ok
	assert.True(t, c1.ran && c2.ran && c3.ran)
	require.Len(t, rc.Journal.Records, 3)
	for i, want := range []string{"volumes", "optical", "post"} {
		assert.Equal(t, want, rc.Journal.Records[i].Component)
		assert.Equal(t, journal.StatusOK, rc.Journal.Records[i].Status)
	}
	assert.False(t, rc.Journal.Failed())
}

func TestPipeline_FailureAbortsAndJournals(t *testing.T) {
	// GIVEN a pipeline whose middle component fails
	boom := errors.New("solver exploded")
	c1 := &fakeComponent{stage: sim.StageVolumeCreation, name: "volumes"}
	c2 := &fakeComponent{stage: sim.StageOpticalForward, name: "optical", fail: boom}
	c3 := &fakeComponent{stage: sim.StageProcessing, name: "post"}
	p, err := sim.NewPipeline(c1, c2, c3)
	require.NoError(t, err)
	rc := newTestRunContext()

	// WHEN it runs
	err = p.Run(context.Background(), rc)

	// THEN the run fails with the stage wrapped in, later stages never run,
	// and the journal records the failure
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(sim.StageOpticalForward))
	assert.True(t, errors.Is(err, boom))
	assert.False(t, c3.ran, "components after the failure must not run")
	require.Len(t, rc.Journal.Records, 2)
	assert.Equal(t, journal.StatusFailed, rc.Journal.Records[1].Status)
	assert.Contains(t, rc.Journal.Records[1].Error, "solver exploded")
	assert.True(t, rc.Journal.Failed())
}

func TestPipeline_CancelledContextStopsRun(t *testing.T) {
	c1 := &fakeComponent{stage: sim.StageVolumeCreation, name: "volumes"}
	p, err := sim.NewPipeline(c1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.Run(ctx, newTestRunContext())

	require.Error(t, err)
	assert.False(t, c1.ran)
}
