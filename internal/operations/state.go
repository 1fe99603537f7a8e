package operations

import (
	"sync"
	"time"

	"adminexport/internal/acquisition"
	"adminexport/internal/dataprocessing"
	"adminexport/internal/trigger"
	"adminexport/internal/warehouse"
)

// RunStatus represents the overall run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState is the complete state of one run. Steps read what earlier steps
// produced from its typed fields.
type RunState struct {
	mu sync.RWMutex

	ID        string     `json:"id"`
	Table     string     `json:"table"`
	Status    RunStatus  `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Steps map[string]*StepState `json:"steps"`
	Order []string              `json:"order"`

	Trigger    *trigger.Result           `json:"-"`
	Artifact   *acquisition.Artifact     `json:"artifact,omitempty"`
	Deleted    []string                  `json:"deleted,omitempty"`
	Dataset    *dataprocessing.Dataset   `json:"-"`
	CleanStats dataprocessing.CleanStats `json:"clean_stats"`
	Archived   string                    `json:"archived,omitempty"`
	Load       *warehouse.LoadResult     `json:"load,omitempty"`

	Error error `json:"error,omitempty"`
}

// NewRunState creates a pending run writing to table
func NewRunState(id, table string) *RunState {
	return &RunState{
		ID:        id,
		Table:     table,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
	}
}

// Start marks the run as running
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Complete marks the run as completed
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCompleted
}

// Fail marks the run as failed
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusFailed
	r.Error = err
}

// Cancel marks the run as cancelled
func (r *RunState) Cancel(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCancelled
	r.Error = err
}

// GetStep returns the state of a specific step
func (r *RunState) GetStep(id string) *StepState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Steps[id]
}

// SetStep registers a step state, keeping registration order
func (r *RunState) SetStep(id string, state *StepState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Steps[id]; !ok {
		r.Order = append(r.Order, id)
	}
	r.Steps[id] = state
}

// Duration returns the duration of the run
func (r *RunState) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// StepsWithStatus returns the step states in run order that have status
func (r *RunState) StepsWithStatus(status StepStatus) []*StepState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*StepState
	for _, id := range r.Order {
		if s := r.Steps[id]; s.GetStatus() == status {
			out = append(out, s)
		}
	}
	return out
}

// FailedStep returns the first failed step, nil when none failed
func (r *RunState) FailedStep() *StepState {
	if failed := r.StepsWithStatus(StepStatusFailed); len(failed) > 0 {
		return failed[0]
	}
	return nil
}

// RowCount returns the number of rows of the current dataset
func (r *RunState) RowCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Dataset == nil {
		return 0
	}
	return r.Dataset.NumRows()
}

// ArtifactPath returns the acquired file path, empty before acquisition
func (r *RunState) ArtifactPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Artifact == nil {
		return ""
	}
	return r.Artifact.Path
}
