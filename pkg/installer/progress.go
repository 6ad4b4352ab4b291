package installer

import "fmt"

// DefaultProgressMax is the Max value used by every progress event the installer emits.
const DefaultProgressMax = 100

// ProgressData is a single progress sample for an install session.
type ProgressData struct {
	Progress      int
	Max           int
	Indeterminate bool
}

// NewProgress returns a determinate sample out of DefaultProgressMax.
func NewProgress(progress int) ProgressData {
	return ProgressData{Progress: progress, Max: DefaultProgressMax}
}

// IndeterminateProgress signals an ongoing step whose percentage is unknown.
func IndeterminateProgress() ProgressData {
	return ProgressData{Max: DefaultProgressMax, Indeterminate: true}
}

// Percent returns the sample scaled to 0..100.
func (p ProgressData) Percent() int {
	if p.Max <= 0 || p.Indeterminate {
		return 0
	}
	return p.Progress * 100 / p.Max
}

func (p ProgressData) String() string {
	if p.Indeterminate {
		return "ProgressData(indeterminate)"
	}
	return fmt.Sprintf("ProgressData(%d/%d)", p.Progress, p.Max)
}
