// Package action exports one registered app to its configured folder.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/export"
	"github.com/matthewbaird/fioriexport/internal/model"
	"github.com/matthewbaird/fioriexport/internal/store"
	"github.com/matthewbaird/fioriexport/internal/ui5"
)

var (
	// ErrAppNotFound means no app record matches the input.
	ErrAppNotFound = errors.New("no app record matches")
	// ErrAmbiguousApp means more than one app record matches the input.
	ErrAmbiguousApp = errors.New("more than one app record matches")
	// ErrInvalidDestination means a record's export folder would replace the
	// export base dir or a folder above it.
	ErrInvalidDestination = errors.New("invalid export folder")
)

// Actor is written to updated_by when an export stamps its record.
const Actor = "fiori-export"

// Input selects the app record to export. Exactly one of AppID (the UI app
// alias, as given on the command line) or ID (the record id) is set.
type Input struct {
	AppID string
	ID    uuid.UUID
}

func (in Input) String() string {
	if in.ID != uuid.Nil {
		return "id " + in.ID.String()
	}
	return "app_id " + in.AppID
}

// Records is the part of the store the action needs.
type Records interface {
	Get(ctx context.Context, id uuid.UUID) (*store.App, error)
	FindByAppID(ctx context.Context, appID string) ([]*store.App, error)
	SetCurrentVersionDate(ctx context.Context, app *store.App, at time.Time, by string) error
}

// Action exports apps described by store records using the UI model in
// catalog.
type Action struct {
	cfg     *config.Config
	catalog *model.Catalog
	records Records
	logger  *slog.Logger
	now     func() time.Time
}

// New returns an Action.
func New(cfg *config.Config, catalog *model.Catalog, records Records, logger *slog.Logger) *Action {
	return &Action{
		cfg:     cfg,
		catalog: catalog,
		records: records,
		logger:  logger,
		now:     time.Now,
	}
}

// Run exports the app selected by in. The record is resolved before anything
// on disk is touched, so input errors leave the destination alone.
//
// A failed export is not an error: the returned Result reports it and the
// destination has been rolled back. On success the record's
// current_version_date is stamped; if the record changed in the meantime
// the export stays in place and store.ErrConcurrentModification is returned.
func (a *Action) Run(ctx context.Context, in Input, progress export.Progress) (export.Result, error) {
	rec, err := a.resolve(ctx, in)
	if err != nil {
		return export.Result{}, err
	}
	req, err := NewRequest(rec, a.cfg.Export.BaseDir)
	if err != nil {
		return export.Result{}, err
	}

	opts := a.cfg.ExportOptions(req.Flags)
	webapp, err := ui5.New(a.catalog, req.AppID, opts)
	if err != nil {
		return export.Result{}, err
	}
	if req.RootPage != "" && req.RootPage != webapp.App().RootPage {
		if webapp, err = webapp.WithRootPage(req.RootPage); err != nil {
			return export.Result{}, err
		}
	}

	log := a.logger.With("app", req.AppID, "record", rec.ID.String())
	log.Info("exporting app", "destination", req.Destination)
	res := export.New(opts, a.logger).Export(ctx, webapp, req.Destination, progress)
	if res.Failed() {
		log.Warn("export failed", "errors", len(res.Errors))
		return res, nil
	}

	if err := a.records.SetCurrentVersionDate(ctx, rec, a.now(), Actor); err != nil {
		return res, fmt.Errorf("recording export of %s: %w", req.AppID, err)
	}
	return res, nil
}

// resolve finds exactly one record for in.
func (a *Action) resolve(ctx context.Context, in Input) (*store.App, error) {
	if in.ID != uuid.Nil {
		rec, err := a.records.Get(ctx, in.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAppNotFound, in)
		}
		return rec, err
	}
	if in.AppID == "" {
		return nil, fmt.Errorf("%w: no app given", ErrAppNotFound)
	}
	recs, err := a.records.FindByAppID(ctx, in.AppID)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, in)
	case 1:
		return recs[0], nil
	default:
		return nil, fmt.Errorf("%w: %s (%d records)", ErrAmbiguousApp, in, len(recs))
	}
}
