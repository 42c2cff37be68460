// Command exportwebapp exports a registered UI5 app into a static webapp
// folder.
//
//	exportwebapp <app_id>
//	exportwebapp register <app_id> --folder /srv/exports/[#app_id#]
//	exportwebapp list
//
// The config file is read from $FIORIEXPORT_CONFIG (default fioriexport.yaml).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/fioriexport/internal/action"
	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/logging"
	"github.com/matthewbaird/fioriexport/internal/model"
	"github.com/matthewbaird/fioriexport/internal/store"
)

// env is what every subcommand needs.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	closers []io.Closer
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
	for _, c := range e.closers {
		c.Close()
	}
}

func setup(ctx context.Context) (*env, error) {
	path := os.Getenv("FIORIEXPORT_CONFIG")
	if path == "" {
		path = "fioriexport.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	logger, closers, err := logging.SetupStderr(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger, closers: closers}

	s, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.store = s
	if err := s.Migrate(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "exportwebapp <app_id>",
		Short:         "Export a UI5 app as a static offline webapp",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			catalog, err := model.Load(e.cfg.Model.Dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a := action.New(e.cfg, catalog, e.store, e.logger)
			res, err := a.Run(ctx, action.Input{AppID: args[0]}, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return err
			}
			if res.Failed() {
				return fmt.Errorf("export of %s failed with %d error(s)", args[0], len(res.Errors))
			}
			return nil
		},
	}
	cmd.AddCommand(newRegisterCmd(), newListCmd())
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var app store.App
	cmd := &cobra.Command{
		Use:   "register <app_id>",
		Short: "Register an app for export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			app.AppID = args[0]
			if err := e.store.Create(ctx, &app, "cli"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&app.Name, "name", "", "display name")
	f.StringVar(&app.RootPage, "root-page", "", "page to start from (default: the app's root page)")
	f.StringVar(&app.ExportFolder, "folder", "", "destination; may contain [#app_id#], [#name#], [#component_path#], [#id#]")
	f.BoolVar(&app.ExportCredentials, "export-credentials", false, "embed server credentials")
	f.BoolVar(&app.ExportSAPClient, "export-sap-client", false, "embed the SAP client")
	f.BoolVar(&app.UseBatchDeletes, "batch-deletes", false, "send deletes in OData batches")
	f.BoolVar(&app.UseBatchWrites, "batch-writes", false, "send writes in OData batches")
	f.BoolVar(&app.UseBatchFunctionImports, "batch-function-imports", false, "send function imports in OData batches")
	f.BoolVar(&app.UseRelativeURLs, "relative-urls", false, "use relative service URLs")
	f.StringVar(&app.ODataAdapter, "odata-adapter", "", "OData adapter class override")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			apps, err := e.store.List(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(apps)
		},
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("exportwebapp: ")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, action.ErrAppNotFound) || errors.Is(err, action.ErrAmbiguousApp) {
			log.Printf("%v (see 'exportwebapp list')", err)
		} else {
			log.Print(err)
		}
		os.Exit(1)
	}
}
