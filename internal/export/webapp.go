package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/layout"
	"github.com/matthewbaird/fioriexport/internal/render"
)

// Exporter writes webapps to folders. One Exporter may serve many exports as
// long as no two target the same destination concurrently.
type Exporter struct {
	opts   config.ExportOptions
	logger *slog.Logger
}

// New returns an Exporter that renders with opts.
func New(opts config.ExportOptions, logger *slog.Logger) *Exporter {
	if opts.LinkDepth < 0 {
		opts.LinkDepth = config.DefaultLinkDepth
	}
	return &Exporter{opts: opts, logger: logger}
}

// Export writes webapp into dest.
//
// An existing dest is moved aside to "<dest>.bkp" first; a backup left by an
// earlier run is deleted. If anything goes wrong the new folder is removed and
// the backup moved back, so dest either holds the complete new export or
// exactly what it held before. On success the backup is kept until the next
// run.
//
// Export itself never fails; check Result.Failed.
func (e *Exporter) Export(ctx context.Context, webapp render.Webapp, dest string, progress Progress) Result {
	run := NewRun(webapp, e.opts, dest, e.logger, progress)
	log := run.logger.With("destination", run.Destination)
	log.Info("export started", "app", webapp.App().Alias)

	if exists(run.Backup) {
		if err := os.RemoveAll(run.Backup); err != nil {
			return e.abort(run, fmt.Errorf("removing stale backup %s: %w", run.Backup, err))
		}
	}
	hadOriginal := exists(run.Destination)
	if hadOriginal {
		if err := moveDir(run.Destination, run.Backup); err != nil {
			return e.abort(run, fmt.Errorf("backing up %s: %w", run.Destination, err))
		}
	}

	if err := e.build(ctx, run); err != nil {
		log.Error("export step failed", "error", err)
		run.fail(err)
		run.say("ERROR: %v", err)
	}

	if len(run.errs) == 0 {
		log.Info("export finished", "widgets", len(run.assets))
		run.say("Exported to %s", run.Destination)
		return run.result()
	}

	state := "removed"
	if err := os.RemoveAll(run.Destination); err != nil {
		run.fail(fmt.Errorf("removing failed export: %w", err))
	}
	if hadOriginal {
		state = "restored"
		if err := moveDir(run.Backup, run.Destination); err != nil {
			log.Error("restoring backup failed", "backup", run.Backup, "error", err)
			run.fail(fmt.Errorf("restoring %s: %w", run.Backup, err))
			state = "kept in " + run.Backup
		}
	}
	log.Warn("export rolled back", "errors", len(run.errs))
	run.say("Export failed with %d error(s). Previous state of the export folder has been %s", len(run.errs), state)
	return run.result()
}

// abort ends a run that failed before the destination was touched.
func (e *Exporter) abort(run *Run, err error) Result {
	run.logger.Error("export aborted", "error", err)
	run.fail(err)
	run.say("Export failed with %d error(s). The export folder has not been changed", len(run.errs))
	return run.result()
}

// build writes the bundle. Panics are turned into errors so the caller
// still rolls back.
func (e *Exporter) build(ctx context.Context, run *Run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			run.logger.Error("export panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("export panicked: %v", p)
		}
	}()

	for _, dir := range append([]string{""}, layout.Skeleton...) {
		if err := os.MkdirAll(run.plan.Abs(dir), 0o755); err != nil {
			return fmt.Errorf("creating folders: %w", err)
		}
	}

	run.say("Exporting app files")
	for _, route := range []string{layout.IndexFile, layout.ComponentFile} {
		if err := run.copyRoute(ctx, route); err != nil {
			return fmt.Errorf("%s: %w", route, err)
		}
	}
	if err := run.ExportTranslations(ctx); err != nil {
		return err
	}
	for _, route := range run.webapp.StaticRoutes() {
		if err := run.copyRoute(ctx, route); err != nil {
			return fmt.Errorf("%s: %w", route, err)
		}
	}

	root, err := run.webapp.RootPage()
	if err != nil {
		return err
	}
	run.say("Exporting pages starting from %s", root.Alias)
	run.ExportPage(ctx, root, e.opts.LinkDepth)

	// The manifest marks the bundle complete, so a failed run never gets one.
	if len(run.errs) > 0 {
		return nil
	}
	if err := run.copyRoute(ctx, layout.ManifestFile); err != nil {
		return fmt.Errorf("%s: %w", layout.ManifestFile, err)
	}
	return nil
}
