package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rubiojr/bookmap/pkg/bookmarks"
	"github.com/rubiojr/bookmap/pkg/config"
	"github.com/rubiojr/bookmap/pkg/geocode"
	"github.com/rubiojr/bookmap/pkg/history"
	"github.com/rubiojr/bookmap/pkg/logger"
	"github.com/rubiojr/bookmap/pkg/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	// Global flags
	debugFlag     bool
	dataDirFlag   string
	configDirFlag string
	configFlag    string
)

// env is everything a command needs, built once per invocation.
type env struct {
	cfg      *config.Config
	dataDir  string
	store    *bookmarks.Store
	resolver *geocode.Resolver
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bookmap",
		Short: "Bookmark places on a map",
		Long: `bookmap keeps a list of named, described places and shows them on a map.

Places are found by free-text search against a Nominatim geocoding service,
then saved with a description to bookmarks.json in the data directory.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetDebug(debugFlag)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	pf := root.PersistentFlags()
	pf.BoolVar(&debugFlag, "debug", false, "enable debug logging")
	pf.StringVar(&dataDirFlag, "data-dir", "", "custom data directory (overrides XDG_DATA_HOME)")
	pf.StringVar(&configDirFlag, "config-dir", "", "custom config directory (overrides XDG_CONFIG_HOME)")
	pf.StringVar(&configFlag, "config", "", "config file (default <config-dir>/config.yaml)")

	root.AddCommand(newServeCmd(), newListCmd(), newAddCmd(), newDeleteCmd(), newSearchCmd(), newHistoryCmd(), newExportCmd(), newImportCmd())
	return root
}

func loadEnv() (*env, error) {
	if err := config.LoadDotEnv(); err != nil {
		logger.Error("Failed to load .env: %v", err)
	}
	cfgPath := configFlag
	if cfgPath == "" {
		cfgPath = filepath.Join(resolveConfigDir(configDirFlag), "config.yaml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.GeocodeTimeout()
	if err != nil {
		return nil, err
	}

	dataDir := resolveDataDir(dataDirFlag)
	if err := ensureDir(dataDir); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	bookmarksPath := filepath.Join(dataDir, "bookmarks.json")
	if !fileExists(bookmarksPath) {
		logger.Debug("No bookmarks at %s yet; starting empty", bookmarksPath)
	}

	return &env{
		cfg:     cfg,
		dataDir: dataDir,
		store:   bookmarks.NewStore(bookmarksPath),
		resolver: geocode.New(
			geocode.WithServer(cfg.Geocode.Server),
			geocode.WithUserAgent(cfg.Geocode.UserAgent),
			geocode.WithTimeout(timeout),
			geocode.WithLogger(logger.Named("geocode")),
		),
	}, nil
}

func (e *env) sessionConfig() session.Config {
	return session.Config{
		DefaultCenter: session.LatLon{Lat: e.cfg.Map.CenterLat, Lon: e.cfg.Map.CenterLon},
		DefaultZoom:   e.cfg.Map.Zoom,
		SelectedZoom:  e.cfg.Map.SelectedZoom,
		SearchLimit:   e.cfg.Geocode.Limit,
	}
}

func (e *env) openHistory() (*history.DB, error) {
	return history.Open(filepath.Join(e.dataDir, "history.sqlite"))
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web map",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = e.cfg.Addr
			}

			opts := []session.Option{session.WithLogger(logger.Named("session"))}
			hist, err := e.openHistory()
			if err != nil {
				// Non-fatal: the map works without recent searches.
				logger.Error("history disabled: %v", err)
				hist = nil
			} else {
				defer hist.Close()
				opts = append(opts, session.WithRecorder(hist))
			}
			app := session.NewApp(e.store, e.resolver, e.sessionConfig(), opts...)

			mux := http.NewServeMux()
			RegisterAPI(mux, app, e.store, e.resolver, hist)
			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:43098)")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bookmap listening on http://%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("Shutting down...")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved bookmarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			bms, err := e.store.LoadAll()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(bms) == 0 {
				fmt.Fprintln(out, "No bookmarks yet.")
				return nil
			}
			for i, b := range bms {
				fmt.Fprintf(out, "%d. %s\n   %s\n   (%.6f, %.6f)\n", i+1, b.Name, b.Desc, b.Lat, b.Lon)
			}
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	var b bookmarks.Bookmark
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a bookmark from explicit coordinates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			saved, err := e.store.Append(b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %q (%.6f, %.6f)\n", saved.Name, saved.Lat, saved.Lon)
			return nil
		},
	}
	cmd.Flags().StringVar(&b.Name, "name", "", "place name")
	cmd.Flags().StringVar(&b.Desc, "desc", "", "description")
	cmd.Flags().Float64Var(&b.Lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&b.Lon, "lon", 0, "longitude")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <position>",
		Short: "Delete the bookmark at a position shown by list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[0])
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			ok, err := e.store.DeleteAt(pos - 1)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No bookmark at position %d.\n", pos)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted bookmark %d.\n", pos)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.gpx]",
		Short: "Write bookmarks as GPX (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			bms, err := e.store.LoadAll()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return bookmarks.WriteGPX(cmd.OutOrStdout(), bms)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := bookmarks.WriteGPX(f, bms); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
}

func newImportCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "import <file.gpx>",
		Short: "Add the waypoints of a GPX file as bookmarks, skipping duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			incoming, err := bookmarks.ReadGPX(f)
			if err != nil {
				return err
			}
			added, err := e.store.Import(incoming, desc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d waypoint(s).\n", added, len(incoming))
			return nil
		},
	}
	cmd.Flags().StringVar(&desc, "desc", defaultImportDesc, "description for waypoints that have none")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Look up a place without saving it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = e.cfg.Geocode.Limit
			}
			query := strings.Join(args, " ")
			res, err := e.resolver.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res) == 0 {
				fmt.Fprintf(out, "No places found for %q.\n", query)
				return nil
			}
			for i, c := range res {
				fmt.Fprintf(out, "%d. %s (%.6f, %.6f)\n", i+1, c.DisplayName, c.Lat, c.Lon)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		limit    int
		clearAll bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			hist, err := e.openHistory()
			if err != nil {
				return err
			}
			defer hist.Close()
			if clearAll {
				return hist.Clear(cmd.Context())
			}
			recent, err := hist.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, h := range recent {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", h.At.Local().Format("2006-01-02 15:04"), h.Query)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", recentLimit, "number of entries")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete all history")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
