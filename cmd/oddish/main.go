// Command oddish is a personal toolkit for exploring Apple Health exports
// and neighborhood polygons: ingest the export into tables, render polygon
// and street maps, and pull individual runs apart.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"oddish"
)

var (
	cfg    Config
	logger *zap.Logger

	configPath string
	debug      bool
	noOpen     bool

	sqlitePath string
	rebuild    bool
)

var rootCmd = &cobra.Command{
	Use:           "oddish",
	Short:         "Apple Health + neighborhood exploration toolkit",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env first so it can feed the ODDISH_* overrides.
		_ = godotenv.Load()

		explicit := cmd.Flags().Changed("config")
		var err error
		cfg, err = loadConfig(configPath, explicit)
		if err != nil {
			return err
		}

		level := zapcore.InfoLevel
		if debug {
			level = zapcore.DebugLevel
		}
		zapCfg := zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(level)
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the Apple Health export into cached tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		hk, err := openHealthKit()
		if err != nil {
			return err
		}
		if rebuild {
			if err := hk.Rebuild(); err != nil {
				return err
			}
		}

		fmt.Printf("Export date: %s\n", hk.ExportDate)
		fmt.Printf("Quantity types: %d\n", len(hk.Quantities))
		fmt.Printf("Workout types: %d\n", len(hk.Workouts))
		fmt.Printf("Route points: %d\n", hk.Routes.Len())

		if sqlitePath != "" {
			if err := hk.ExportSQLite(sqlitePath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", sqlitePath)
		}
		return nil
	},
}

var characteristicsCmd = &cobra.Command{
	Use:   "characteristics",
	Short: "Print the export's fixed metadata and characteristics",
	RunE: func(cmd *cobra.Command, args []string) error {
		hk, err := openHealthKit()
		if err != nil {
			return err
		}
		fmt.Printf("Export date:   %s\n", hk.ExportDate)
		fmt.Printf("Date of birth: %s\n", hk.DateOfBirth.Format("2006-01-02"))
		keys := make([]string, 0, len(hk.Characteristics))
		for k := range hk.Characteristics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-28s %s\n", k, hk.Characteristics[k])
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [type]",
	Short: "Dump a quantity table's shape and first rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hk, err := openHealthKit()
		if err != nil {
			return err
		}
		tbl, ok := hk.Quantities[args[0]]
		if !ok {
			if tbl, ok = hk.Workouts[args[0]]; !ok {
				return fmt.Errorf("no table %q in export", args[0])
			}
		}
		fmt.Printf("%s: %d rows x %d columns\n", tbl.Key, tbl.Len(), len(tbl.Columns))
		fmt.Printf("columns: %s\n", strings.Join(tbl.Columns, ", "))
		head := tbl.Rows
		if len(head) > 5 {
			head = head[:5]
		}
		spew.Dump(head)
		return nil
	},
}

var showPolygonCmd = &cobra.Command{
	Use:   "show-polygon [file.csv]",
	Short: "Render a polygon CSV on a map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		polygon, err := oddish.LoadPolygon(args[0])
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(args[0]), ".csv")
		path, err := newExplorer().ShowPolygon(oddish.Union(polygon), name)
		if err != nil {
			return err
		}
		fmt.Printf("Rendered %s\n", path)
		return nil
	},
}

var showPolygonsCmd = &cobra.Command{
	Use:   "show-polygons",
	Short: "Render the whole polygon hierarchy on one map",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHierarchy()
		if err != nil {
			return err
		}
		path, err := newExplorer().ShowHierarchy(h)
		if err != nil {
			return err
		}
		fmt.Printf("Rendered %s (%d entries)\n", path, len(h.Entries))
		return nil
	},
}

var viewSectionCmd = &cobra.Command{
	Use:   "view-section [name...]",
	Short: "Fetch and render the walkable streets of a hierarchy entry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHierarchy()
		if err != nil {
			return err
		}
		name := strings.Join(args, " ")
		path, err := newExplorer().ViewSection(cmd.Context(), h, name)
		if err != nil {
			return err
		}
		fmt.Printf("Rendered %s\n", path)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [sync-identifier]",
	Short: "Compose a single run and render its route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hk, err := openHealthKit()
		if err != nil {
			return err
		}
		r, err := oddish.NewRun(hk, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Run %s\n", r.ID)
		fmt.Printf("  %s → %s (%.2f min)\n", r.StartDate, r.EndDate, r.Duration)
		fmt.Printf("  distance %.2f, ascent %.0f cm\n", r.Distance, r.ElevationAscended)
		fmt.Printf("  weather %.1f degF at %.0f%% humidity\n", r.Temperature, r.Humidity*100)
		fmt.Printf("  weight %.1f, resting HR %.0f, VO2max %.1f, HRV %.1f\n",
			r.Weight, r.RestingHeartRate, r.VO2Max, r.HeartRateVariabilitySDNN)
		fmt.Printf("  %d heart-rate samples, %d track points\n", len(r.HeartRate), r.Route.Len())

		if r.Route.Len() == 0 {
			return nil
		}
		path, err := newExplorer().ShowRun(r)
		if err != nil {
			return err
		}
		fmt.Printf("Rendered %s\n", path)
		return nil
	},
}

func openHealthKit() (*oddish.HealthKit, error) {
	return oddish.NewHealthKit(
		oddish.WithExportDir(cfg.ExportDir),
		oddish.WithCacheDir(cfg.CacheDir),
		oddish.WithLogger(logger),
	)
}

func loadHierarchy() (*oddish.Hierarchy, error) {
	return oddish.BuildHierarchy(cfg.PolygonDir, oddish.WithHierarchyLogger(logger))
}

func newExplorer() *oddish.Explorer {
	var overpass []oddish.OverpassOption
	if cfg.OverpassEndpoint != "" {
		overpass = append(overpass, oddish.WithOverpassEndpoint(cfg.OverpassEndpoint))
	}
	overpass = append(overpass, oddish.WithOverpassLogger(logger))

	var browser []oddish.BrowserOption
	if cfg.BrowserBin != "" {
		browser = append(browser, oddish.WithBrowserBin(cfg.BrowserBin))
	}
	browser = append(browser, oddish.WithBrowserLogger(logger))

	return oddish.NewExplorer(
		oddish.WithExploreDir(cfg.ExploreDir),
		oddish.WithAutoOpen(!noOpen),
		oddish.WithExplorerBrowser(browser...),
		oddish.WithExplorerOverpass(overpass...),
		oddish.WithExplorerLogger(logger),
	)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "oddish.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noOpen, "no-open", false, "render maps without opening the browser")

	ingestCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "also export the tables to a SQLite file")
	ingestCmd.Flags().BoolVar(&rebuild, "rebuild", false, "force a re-ingest even when the cache is valid")

	rootCmd.AddCommand(ingestCmd, characteristicsCmd, inspectCmd,
		showPolygonCmd, showPolygonsCmd, viewSectionCmd, runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
