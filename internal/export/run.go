// Package export writes a generated UI5 app into a standalone static webapp
// folder.
//
// An export walks the app's root page, follows show-widget actions to a
// bounded depth, writes a view and controller per widget and relocates vendor
// libraries the controllers reference. Failures are accumulated instead of
// aborting; if any were recorded the destination folder is rolled back to
// what it was before the run.
//
// At most one export may target a given destination at a time. The exporter
// does not lock; callers serialize (see internal/server).
package export

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/layout"
	"github.com/matthewbaird/fioriexport/internal/render"
)

var (
	// ErrEmptySource means the renderer produced no text for a view or
	// controller. It always aborts the run.
	ErrEmptySource = errors.New("generated source is empty")
	// ErrAssetMissing means a controller references a vendor file that is
	// not on disk.
	ErrAssetMissing = errors.New("referenced vendor asset does not exist")
)

// Progress receives narrative lines as soon as they are produced.
type Progress func(line string)

// Asset is one exported view/controller pair and the vendor files its
// controller needed.
type Asset struct {
	View       string   `json:"view"`
	Controller string   `json:"controller"`
	Libs       []string `json:"libs,omitempty"`
}

// Result is what the caller gets back from Export. The export itself never
// fails as a call; success or failure is read from Errors.
type Result struct {
	RunID       string   `json:"run_id"`
	Destination string   `json:"destination"`
	Narrative   []string `json:"narrative"`
	Errors      []error  `json:"-"`
	Assets      []Asset  `json:"assets,omitempty"`
}

// Failed reports whether any error was recorded.
func (r Result) Failed() bool {
	return len(r.Errors) > 0
}

// ErrorMessages is Errors as strings, for JSON responses.
func (r Result) ErrorMessages() []string {
	out := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		out[i] = err.Error()
	}
	return out
}

// Run is the transient state of one export. It is not safe for concurrent
// use.
type Run struct {
	ID          uuid.UUID
	Destination string
	Backup      string

	webapp    render.Webapp
	opts      config.ExportOptions
	plan      layout.Plan
	relocator *Relocator
	logger    *slog.Logger
	progress  Progress

	errs      []error
	narrative []string
	assets    []Asset
}

// NewRun prepares a run that writes webapp into dest.
func NewRun(webapp render.Webapp, opts config.ExportOptions, dest string, logger *slog.Logger, progress Progress) *Run {
	id := uuid.New()
	plan := layout.New(dest)
	return &Run{
		ID:          id,
		Destination: plan.Root,
		Backup:      layout.BackupPath(plan.Root),
		webapp:      webapp,
		opts:        opts,
		plan:        plan,
		relocator:   NewRelocator(opts),
		logger:      logger.With("run", id.String()),
		progress:    progress,
	}
}

// say appends a line to the narrative and forwards it to the progress sink.
func (r *Run) say(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	r.narrative = append(r.narrative, line)
	if r.progress != nil {
		r.progress(line)
	}
}

// fail records err. The accumulator is never cleared during a run.
func (r *Run) fail(err error) {
	r.errs = append(r.errs, err)
}

// Errors returns the errors recorded so far, in order.
func (r *Run) Errors() []error {
	return append([]error(nil), r.errs...)
}

// Narrative returns the lines produced so far.
func (r *Run) Narrative() []string {
	return append([]string(nil), r.narrative...)
}

func (r *Run) result() Result {
	return Result{
		RunID:       r.ID.String(),
		Destination: r.Destination,
		Narrative:   r.Narrative(),
		Errors:      r.Errors(),
		Assets:      append([]Asset(nil), r.assets...),
	}
}

func pad(level int) string {
	return strings.Repeat("  ", level)
}

// WidgetError wraps a failure while generating one widget with enough
// context to find the widget in the model.
type WidgetError struct {
	WidgetID   string
	WidgetType string
	Caption    string
	Object     string
	Page       string
	Err        error
}

func (e *WidgetError) Error() string {
	return fmt.Sprintf("cannot export widget %s %q (%s) of object %s on page %s: %v",
		e.WidgetType, e.Caption, e.WidgetID, e.Object, e.Page, e.Err)
}

func (e *WidgetError) Unwrap() error {
	return e.Err
}

// unsupportedReasons extracts the reasons from a recoverable "cannot be
// exported" condition anywhere in err's chain.
func unsupportedReasons(err error) ([]string, bool) {
	var u interface{ UnsupportedReasons() []string }
	if errors.As(err, &u) {
		if reasons := u.UnsupportedReasons(); len(reasons) > 0 {
			return reasons, true
		}
		return []string{err.Error()}, true
	}
	return nil, false
}
