// Package main provides the schedule crawler command: fetch every configured date,
// normalize locations and write the frontend artifacts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"hacktown/internal/config"
	"hacktown/internal/logger"
	"hacktown/internal/pipeline"
	"hacktown/internal/profile"
)

const defaultConfigFile = "configs/scraper.yaml"

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file (default "+defaultConfigFile+" if present)")
	locationsFile := flag.String("locations", "", "Location mapping JSON file (overrides config)")
	outputDir := flag.String("output", "", "Output directory (overrides config)")
	schedule := flag.String("schedule", "", "Cron expression; run as a daemon (overrides config)")
	once := flag.Bool("once", false, "Run a single cycle even if a schedule is configured")
	debug := flag.Bool("debug", false, "Log at debug level regardless of config")
	writeConfig := flag.String("write-config", "", "Write the effective configuration to this path and exit")
	showUsage := flag.Bool("help", false, "Show usage information")

	flag.Parse()

	if *showUsage {
		printUsage()
		os.Exit(0)
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := loadConfig(*configFile)

	if *locationsFile != "" {
		cfg.LocationsFile = *locationsFile
	}

	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}

	if *schedule != "" {
		cfg.Schedule = *schedule
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v\n", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("❌ Invalid timezone: %v\n", err)
	}

	if *writeConfig != "" {
		if err := cfg.SaveConfig(*writeConfig); err != nil {
			log.Fatalf("❌ Failed to write config: %v\n", err)
		}

		fmt.Printf("✅ Configuration written to: %s\n", *writeConfig)

		return
	}

	appLog := logger.NewLoggerWithOptions(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if *debug {
		appLog.SetLevel("debug")
	}

	prof := profile.Resolve(os.LookupEnv, cfg.ProfileSet())

	printHeader(cfg, prof)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg, prof, appLog)

	if cfg.Schedule == "" || *once {
		if err := runOnce(ctx, p); err != nil {
			stop()
			os.Exit(1)
		}

		return
	}

	runDaemon(ctx, p, cfg.Schedule, loc, appLog)
}

func loadConfig(path string) *config.Config {
	if path == "" {
		if _, statErr := os.Stat(defaultConfigFile); statErr != nil {
			fmt.Println("⚙️  No configuration file, using built-in defaults")

			return config.DefaultConfig()
		}

		path = defaultConfigFile
	}

	fmt.Printf("⚙️  Loading configuration from: %s\n", path)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v\n", err)
	}

	fmt.Printf("✅ Configuration loaded: %s\n\n", cfg)

	return cfg
}

func runOnce(ctx context.Context, p *pipeline.Pipeline) error {
	report, err := p.Run(ctx)
	if report != nil {
		printReport(report)
	}

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Println("🛑 Run cancelled; previous artifacts kept")
	case errors.Is(err, pipeline.ErrNoDatesFetched):
		fmt.Println("❌ No date could be fetched; empty artifacts were written")
	case err != nil:
		fmt.Printf("❌ Run failed: %v\n", err)
	default:
		fmt.Println("\n✨ Scrape complete!")
	}

	return err
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// runDaemon runs the pipeline on spec, interpreted in the event timezone.
// Overlapping ticks are skipped while a run is still going.
func runDaemon(ctx context.Context, p *pipeline.Pipeline, spec string, loc *time.Location, appLog *logger.Logger) {
	cl := cronLogger{log: appLog}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(spec, func() { _ = runOnce(ctx, p) }); err != nil {
		log.Fatalf("❌ Invalid schedule %q: %v\n", spec, err)
	}

	fmt.Printf("⏰ Running on schedule %q (Ctrl+C to stop)\n", spec)

	c.Start()
	<-ctx.Done()

	fmt.Println("\n🛑 Stopping, waiting for the current run to finish...")
	<-c.Stop().Done()
}

func printHeader(cfg *config.Config, prof profile.Profile) {
	fmt.Println("🕷️  HackTown Schedule Crawler")
	fmt.Printf("Dates: %d (%s)\n", len(cfg.Dates), cfg.Timezone)
	fmt.Printf("Profile: %s\n", prof)
	fmt.Printf("Locations: %s\n", cfg.LocationsFile)
	fmt.Printf("Output: %s\n", cfg.Output.Dir)
	fmt.Println()
}

func printReport(r *pipeline.Report) {
	fmt.Println("\n------------------------------------------------")
	fmt.Println("📊 Run Report")
	fmt.Println("------------------------------------------------")
	fmt.Println(r.Table())

	if len(r.Summary.UnmappedLocations) > 0 {
		fmt.Printf("\n⚠️  %d sessions with unmapped locations:\n", r.Summary.UnmappedTotal)
		fmt.Println(r.UnmappedTable())
	}

	fmt.Printf("\nSessions: %d\n", r.Summary.TotalSessions)
	fmt.Printf("Files written: %d\n", len(r.Files))
	fmt.Printf("Attempts: %s\n", r.Stats)
	fmt.Printf("Dataset changed: %t\n", r.Changed)
	fmt.Printf("Duration: %v\n", r.Duration)
	fmt.Println("------------------------------------------------")
}

func printUsage() {
	fmt.Println("Usage: ./bin/crawler [OPTIONS]")
	fmt.Println()
	fmt.Println("Modes:")
	fmt.Println("  1. Single run:  ./bin/crawler -config " + defaultConfigFile)
	fmt.Println("  2. Daemon:      ./bin/crawler -schedule \"*/30 * * * *\"")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  " + profile.EnvForceLocal + "=true   use the local (gentle) profile even in CI")
	fmt.Println("  " + profile.EnvCI + ", " + profile.EnvGitHubActions + "   select the automated profile")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ./bin/crawler -locations configs/locations_config.json -output events")
	fmt.Println("  ./bin/crawler -write-config configs/scraper.yaml")
}
