package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/api"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/lookup"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/output"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "terraclimate",
		Short: "Extract subsets of the TerraClimate monthly climate dataset",
		Long: `terraclimate reads a latitude/longitude/time box of one TerraClimate variable
from the OPeNDAP server (or local netCDF4 files) and returns it as a cube,
a spatially averaged time series or a temporally averaged map.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.AddCommand(newFetchCmd(a), newWriteCmd(a), newServeCmd(a), newInspectCmd())
	return root
}

// usageArgs reports argument count problems as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// requestFlags are the bounds shared by fetch and write.
type requestFlags struct {
	lat         string
	lon         string
	years       string
	months      string
	variable    string
	aggregation string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.lat, "lat", "", "latitude bounds in degrees, ascending (e.g. 50,51.5)")
	flags.StringVar(&f.lon, "lon", "", "longitude bounds in degrees, ascending (e.g. -75.5,-74.5)")
	flags.StringVar(&f.years, "years", "", "first and last year (e.g. 2000,2005)")
	flags.StringVar(&f.months, "months", "", "first and last month, 1-12 (e.g. 1,12)")
	flags.StringVar(&f.variable, "variable", "", "variable code: "+strings.Join(model.VariableNames(), ", "))
	flags.StringVar(&f.aggregation, "aggregation", "", "aggregation: "+strings.Join(model.AggregationNames(), ", "))
}

func (f *requestFlags) request() (extraction.Request, error) {
	var req extraction.Request
	var err error

	if req.LatBounds, err = extraction.ParseFloatList("lat", f.lat); err != nil {
		return req, &usageError{err: err}
	}
	if req.LonBounds, err = extraction.ParseFloatList("lon", f.lon); err != nil {
		return req, &usageError{err: err}
	}
	if req.YearBounds, err = extraction.ParseIntList("years", f.years); err != nil {
		return req, &usageError{err: err}
	}
	if req.MonthBounds, err = extraction.ParseIntList("months", f.months); err != nil {
		return req, &usageError{err: err}
	}
	req.Variable = f.variable
	req.Aggregation = f.aggregation
	return req, nil
}

func newFetchCmd(a *app) *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Extract a box and print it as JSON",
		Long: `fetch extracts a box and prints the result as JSON. Without --aggregation
the full lon x lat x time cube is returned. Several variables can be given
as a comma-separated list; they are fetched concurrently.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			svc := a.extractor()

			if variables := strings.Split(flags.variable, ","); len(variables) > 1 {
				results, err := svc.FetchVariables(cmd.Context(), req, variables)
				if err != nil {
					return err
				}
				docs := make([]output.Document, len(results))
				for i, result := range results {
					docs[i] = output.NewDocument(result)
				}
				return printJSON(cmd.OutOrStdout(), docs)
			}

			result, err := svc.Fetch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), output.NewDocument(result))
		},
	}
	flags.register(cmd)
	return cmd
}

func newWriteCmd(a *app) *cobra.Command {
	var flags requestFlags
	var runID string

	cmd := &cobra.Command{
		Use:   "write <folder> <filename>",
		Short: "Extract a box and write it to disk",
		Long: `write extracts a box and writes <folder>/<filename>.csv for a time series
(the default) or <folder>/<filename>.tif for a spatial map. When MinIO,
ClickHouse or a catalog database are configured the result is published
there as well.`,
		Args: usageArgs(cobra.MaximumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				req.Folder = args[0]
			}
			if len(args) > 1 {
				req.Filename = args[1]
			}

			svc, err := a.exportService(cmd.Context())
			if err != nil {
				return err
			}
			written, err := svc.Write(cmd.Context(), req, model.RunID(runID))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), written)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (UUIDv7); generated when empty")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve extractions over HTTP",
		Long: `serve exposes GET /v1/extract, plus GET /v1/values when ClickHouse is
configured and GET /v1/catalog when a catalog database is configured.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	var opts []api.Option
	if a.cfg.ClickHouse.Enabled() {
		client, err := a.clickhouseClient(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithLookup(lookup.NewService(client)))
	}
	if a.cfg.Catalog.Enabled() {
		store, err := a.catalogStore(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithCatalog(store))
	}

	// Setup HTTP routes
	mux := http.NewServeMux()
	api.NewHandler(a.extractor(), opts...).RegisterRoutes(mux)

	// Create server
	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: a.cfg.Remote.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", a.cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.tif>",
		Short: "Print the georeferencing of a GeoTIFF written by write",
		Args:  usageArgs(cobra.ExactArgs(1)),
		// Reading a local file needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := output.ReadGeoTIFFInfo(f)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
