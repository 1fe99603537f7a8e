package warehouse

import (
	"fmt"
	"strings"

	apperrors "adminexport/internal/errors"
)

// TableRef names a BigQuery table
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// String returns the project.dataset.table form
func (r TableRef) String() string {
	return r.Project + "." + r.Dataset + "." + r.Table
}

// Validate reports missing parts
func (r TableRef) Validate() error {
	var missing []string
	if r.Project == "" {
		missing = append(missing, "project")
	}
	if r.Dataset == "" {
		missing = append(missing, "dataset")
	}
	if r.Table == "" {
		missing = append(missing, "table")
	}
	if len(missing) > 0 {
		return apperrors.NewAppValidationError(fmt.Sprintf("table reference %q is missing %s",
			r.String(), strings.Join(missing, ", ")))
	}
	return nil
}

// ParseTableRef parses project.dataset.table
func ParseTableRef(s string) (TableRef, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return TableRef{}, apperrors.NewAppValidationError(
			fmt.Sprintf("table id %q must be project.dataset.table", s))
	}
	ref := TableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}
	return ref, ref.Validate()
}
