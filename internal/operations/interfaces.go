package operations

import (
	"context"
	"time"

	"adminexport/internal/acquisition"
	"adminexport/internal/auth"
	"adminexport/internal/dataprocessing"
	"adminexport/internal/files"
	"adminexport/internal/trigger"
	"adminexport/internal/warehouse"
)

// Authenticator signs in and keeps the session alive across navigations
type Authenticator interface {
	Login(ctx context.Context) (*auth.Session, error)
	EnsureSession(ctx context.Context, url string) error
}

// Firer sends the export request
type Firer interface {
	Fire(ctx context.Context) (*trigger.Result, error)
}

// Snapshotter records the download directory before the export is sent
type Snapshotter interface {
	Snapshot() error
}

// Acquirer produces the export file
type Acquirer interface {
	Acquire(ctx context.Context) (*acquisition.Artifact, error)
}

// LatestSelector keeps the newest export file in a directory
type LatestSelector interface {
	KeepLatest(dir string, exts []string) (files.FileInfo, []string, error)
}

// ArtifactValidator checks an acquired file before it is parsed
type ArtifactValidator interface {
	ValidateArtifact(path string, exts []string) error
}

// DatasetLoader reads an export file into a dataset
type DatasetLoader interface {
	Load(path string) (*dataprocessing.Dataset, error)
}

// Archiver keeps a copy of the cleaned dataset
type Archiver interface {
	Archive(ds *dataprocessing.Dataset, table string, at time.Time) (string, error)
}

// Publisher replaces the warehouse table with a dataset
type Publisher interface {
	Overwrite(ctx context.Context, ds *dataprocessing.Dataset) (*warehouse.LoadResult, error)
}
