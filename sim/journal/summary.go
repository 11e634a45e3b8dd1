package journal

import "time"

// Summary condenses a journal into the numbers worth logging at the end of a
// run.
type Summary struct {
	RunID         string
	StagesRun     int
	StagesFailed  int
	TotalDuration time.Duration
	SlowestStage  string
}

// Summarize computes the run summary.
func (j *Journal) Summarize() Summary {
	s := Summary{RunID: j.RunID}
	var slowest time.Duration
	for _, r := range j.Records {
		s.StagesRun++
		s.TotalDuration += r.Duration
		if r.Status == StatusFailed {
			s.StagesFailed++
		}
		if r.Duration > slowest {
			slowest = r.Duration
			s.SlowestStage = r.Stage
		}
	}
	return s
}
