package acquisition

import (
	"context"
	"time"
)

// State is the stabilization state of a candidate
type State string

const (
	StateAbsent      State = "absent"
	StateDownloading State = "downloading"
	StateGrowing     State = "growing"
	StateStable      State = "stable"
)

// Candidate is a file or captured body that may become the artifact
type Candidate struct {
	Path     string
	Size     int64
	ModTime  time.Time
	Ext      string
	MimeHint string
	State    State
}

// Artifact is the acquired export file
type Artifact struct {
	Path       string
	Strategy   string
	MimeHint   string
	Size       int64
	AcquiredAt time.Time
}

// Strategy acquires one artifact within timeout
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, timeout time.Duration) (*Artifact, error)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
