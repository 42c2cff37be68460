// Package store persists the export configuration of each app in SQLite.
//
// The apps table is declared with ent's schema package and migrated with
// ent's migrator; queries are built with ent's SQL builder and run on the
// underlying *sql.DB.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/fioriexport/internal/config"
)

var (
	// ErrNotFound is returned when no app record matches.
	ErrNotFound = errors.New("app record not found")
	// ErrConcurrentModification is returned when a record changed between
	// being read and being written back.
	ErrConcurrentModification = errors.New("app record was modified concurrently")
)

// App is one row of the apps table: which UI app to export, where to, and
// with which data-access switches.
type App struct {
	ID                      uuid.UUID  `json:"id"`
	AppID                   string     `json:"app_id"`
	Name                    string     `json:"name"`
	RootPage                string     `json:"root_page"`
	ExportFolder            string     `json:"export_folder"`
	ExportCredentials       bool       `json:"export_credentials"`
	ExportSAPClient         bool       `json:"export_sap_client"`
	UseBatchDeletes         bool       `json:"use_batch_deletes"`
	UseBatchWrites          bool       `json:"use_batch_writes"`
	UseBatchFunctionImports bool       `json:"use_batch_function_imports"`
	UseRelativeURLs         bool       `json:"use_relative_urls"`
	ODataAdapter            string     `json:"odata_adapter"`
	CurrentVersionDate      *time.Time `json:"current_version_date,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
	CreatedBy               string     `json:"created_by"`
	UpdatedBy               string     `json:"updated_by"`
}

// Flags returns the record's export switches.
func (a *App) Flags() config.Flags {
	return config.Flags{
		ExportCredentials:       a.ExportCredentials,
		ExportSAPClient:         a.ExportSAPClient,
		UseBatchDeletes:         a.UseBatchDeletes,
		UseBatchWrites:          a.UseBatchWrites,
		UseBatchFunctionImports: a.UseBatchFunctionImports,
		UseRelativeURLs:         a.UseRelativeURLs,
		ODataAdapter:            a.ODataAdapter,
	}
}

// Store reads and writes app records.
type Store struct {
	db  *sql.DB
	drv *entsql.Driver
	now func() time.Time
}

// Open connects to the SQLite database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Foreign keys are off by default in SQLite.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	return New(db), nil
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		drv: entsql.OpenDB(dialect.SQLite, db),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.drv.Close()
}

// Migrate creates or updates the apps table.
func (s *Store) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(s.drv)
	if err != nil {
		return fmt.Errorf("preparing migration: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("running schema migration: %w", err)
	}
	return nil
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

// Create inserts app. A zero ID is replaced by a new UUID and the audit
// timestamps are set to now.
func (s *Store) Create(ctx context.Context, app *App, by string) error {
	if app.AppID == "" {
		return errors.New("app_id is required")
	}
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	now := s.now()
	app.CreatedAt, app.UpdatedAt = now, now
	app.CreatedBy, app.UpdatedBy = by, by

	var version any
	if app.CurrentVersionDate != nil {
		version = app.CurrentVersionDate.UTC()
	}
	query, args := builder().Insert(appsTable).
		Columns(appColumns...).
		Values(
			app.ID.String(), app.AppID, app.Name, app.RootPage, app.ExportFolder,
			app.ExportCredentials, app.ExportSAPClient,
			app.UseBatchDeletes, app.UseBatchWrites, app.UseBatchFunctionImports, app.UseRelativeURLs,
			app.ODataAdapter, version,
			app.CreatedAt, app.UpdatedAt, app.CreatedBy, app.UpdatedBy,
		).Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting app %s: %w", app.AppID, err)
	}
	return nil
}

// Get returns the record with the given row id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*App, error) {
	apps, err := s.query(ctx, entsql.EQ(colID, id.String()))
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return apps[0], nil
}

// FindByAppID returns every record exporting the given UI app.
func (s *Store) FindByAppID(ctx context.Context, appID string) ([]*App, error) {
	return s.query(ctx, entsql.EQ(colAppID, appID))
}

// List returns all records ordered by app id.
func (s *Store) List(ctx context.Context) ([]*App, error) {
	return s.query(ctx, nil)
}

func (s *Store) query(ctx context.Context, where *entsql.Predicate) ([]*App, error) {
	sel := builder().Select(appColumns...).From(entsql.Table(appsTable))
	if where != nil {
		sel.Where(where)
	}
	sel.OrderBy(colAppID, colCreatedAt)
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying apps: %w", err)
	}
	defer rows.Close()

	var out []*App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func scanApp(rows *sql.Rows) (*App, error) {
	var (
		app     App
		id      string
		version sql.NullTime
	)
	err := rows.Scan(
		&id, &app.AppID, &app.Name, &app.RootPage, &app.ExportFolder,
		&app.ExportCredentials, &app.ExportSAPClient,
		&app.UseBatchDeletes, &app.UseBatchWrites, &app.UseBatchFunctionImports, &app.UseRelativeURLs,
		&app.ODataAdapter, &version,
		&app.CreatedAt, &app.UpdatedAt, &app.CreatedBy, &app.UpdatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning app: %w", err)
	}
	if app.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("app %s has invalid id %q: %w", app.AppID, id, err)
	}
	if version.Valid {
		t := version.Time.UTC()
		app.CurrentVersionDate = &t
	}
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	return &app, nil
}

// SetCurrentVersionDate stamps app with the time of its latest successful
// export. The write only succeeds if the row still has the updated_at value
// app was read with; otherwise ErrConcurrentModification is returned and
// app is left unchanged.
func (s *Store) SetCurrentVersionDate(ctx context.Context, app *App, at time.Time, by string) error {
	at = at.UTC()
	now := s.now()
	query, args := builder().Update(appsTable).
		Set(colCurrentVersionDate, at).
		Set(colUpdatedAt, now).
		Set(colUpdatedBy, by).
		Where(entsql.And(
			entsql.EQ(colID, app.ID.String()),
			entsql.EQ(colUpdatedAt, app.UpdatedAt.UTC()),
		)).Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating app %s: %w", app.AppID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating app %s: %w", app.AppID, err)
	}
	if n == 0 {
		return fmt.Errorf("app %s: %w", app.AppID, ErrConcurrentModification)
	}
	app.CurrentVersionDate = &at
	app.UpdatedAt = now
	app.UpdatedBy = by
	return nil
}
