// Package adapters wraps the external analysis collaborators behind a single
// capability interface. Each adapter probes its collaborator once at
// construction so the orchestrator can downgrade the processing mode
// deterministically instead of failing per file.
package adapters

import (
	"context"
	"errors"
	"strings"

	"github.com/sammcj/docflow/internal/docproc"
)

// ErrUnavailable indicates a collaborator whose runtime dependencies are
// missing. Adapters report this through Available(), never per call.
var ErrUnavailable = errors.New("collaborator unavailable")

// Adapter is the contract every collaborator implements: one analysis call
// per file. Adapters must be safe for repeated and concurrent calls and must
// not retain per-call state; warm state is amortised at construction.
type Adapter interface {
	// Name identifies the engine, e.g. "gutenocr" or "docling".
	Name() string
	// Stage reports which analysis pass this adapter provides.
	Stage() docproc.Stage
	// Available reports whether the collaborator was found at construction.
	Available() bool
	// Analyze runs one analysis pass over the file. Faults are returned as
	// failure-status results, never as panics.
	Analyze(ctx context.Context, file docproc.InputFile, req docproc.Request) docproc.StageResult
}

// FileCapable is implemented by adapters that can still serve some inputs
// when the collaborator probe failed. The orchestrator consults it before
// applying a batch-wide downgrade to an individual file.
type FileCapable interface {
	// AvailableFor reports whether this file can be analysed regardless of
	// the construction-time availability probe.
	AvailableFor(file docproc.InputFile) bool
}

// truncate caps collaborator stderr embedded in error messages
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
