package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TarunvirBains/ao-no-out7ook/internal/cache"
	"github.com/TarunvirBains/ao-no-out7ook/internal/calendar"
	"github.com/TarunvirBains/ao-no-out7ook/internal/clock"
	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/lifecycle"
	"github.com/TarunvirBains/ao-no-out7ook/internal/output"
	"github.com/TarunvirBains/ao-no-out7ook/internal/sched"
	"github.com/TarunvirBains/ao-no-out7ook/internal/secrets"
	"github.com/TarunvirBains/ao-no-out7ook/internal/state"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
	"github.com/TarunvirBains/ao-no-out7ook/internal/tracker"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui     *output.UI
	logger *slog.Logger

	verbose bool
	dryRun  bool

	buildVersion string
	buildCommit  string
	buildDate    string

	coordinator *lifecycle.Coordinator
	stateStore  *state.Store
	entryCache  *cache.Cache
)

var rootCmd = &cobra.Command{
	Use:   "ao",
	Short: "Task lifecycle for Azure DevOps, 7pace, and Outlook",
	Long: `ao keeps one local source of truth for "what am I working on" and
drives the remote tracker, timer, and calendar from it: start and stop
tasks, switch between them, schedule Focus Blocks, and check in when a
block ends.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go. Errors exit with the
// code class of the failure, never a bare 1 unless nothing more specific
// applies.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeDeps()
		os.Exit(faults.ExitCode(err))
	}
	closeDeps()
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	// Bare `ao` shows the active task, same as `ao current`.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return currentRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/ao/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(faults.ExitConfig)
		}

		configDir := filepath.Join(home, ".config", "ao")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AO")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".config", "ao")

	viper.SetDefault("tracker.organization", "")
	viper.SetDefault("tracker.project", "")
	viper.SetDefault("tracker.api_url", "")
	viper.SetDefault("timer.api_url", "")
	viper.SetDefault("calendar.api_url", "")
	viper.SetDefault("calendar.name", "Calendar")
	viper.SetDefault("work_hours.start", "08:30")
	viper.SetDefault("work_hours.end", "17:00")
	viper.SetDefault("work_hours.timezone", "")
	viper.SetDefault("work_hours.weekdays_only", true)
	viper.SetDefault("focus.duration_minutes", 45)
	viper.SetDefault("focus.granularity_minutes", 15)
	viper.SetDefault("focus.min_fraction", 0.5)
	viper.SetDefault("focus.truncate", false)
	viper.SetDefault("focus.lookahead_days", 5)
	viper.SetDefault("state.dir", defaultStateDir)
	viper.SetDefault("state.expiry_hours", 24)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Remote clients, cache, and the coordinator are built lazily, only
	// when commands actually need them. This lets config/auth/version
	// commands run without credentials or a reachable service.
}

func closeDeps() {
	if entryCache != nil {
		_ = entryCache.Close()
	}
}

// focusPolicy reads the scheduler policy out of config.
func focusPolicy() sched.Policy {
	return sched.Policy{
		Duration:      time.Duration(viper.GetInt("focus.duration_minutes")) * time.Minute,
		Granularity:   time.Duration(viper.GetInt("focus.granularity_minutes")) * time.Minute,
		Truncate:      viper.GetBool("focus.truncate"),
		MinFraction:   viper.GetFloat64("focus.min_fraction"),
		LookaheadDays: viper.GetInt("focus.lookahead_days"),
	}
}

// workClock builds the configured work-hours clock.
func workClock() (clock.Clock, error) {
	return clock.New(clock.Options{
		Start:        viper.GetString("work_hours.start"),
		End:          viper.GetString("work_hours.end"),
		Timezone:     viper.GetString("work_hours.timezone"),
		WeekdaysOnly: viper.GetBool("work_hours.weekdays_only"),
	})
}

// getStore returns the state store, creating the state directory on first
// use. Reads through it need no remote credentials.
func getStore() (*state.Store, error) {
	if stateStore != nil {
		return stateStore, nil
	}
	dir := viper.GetString("state.dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &faults.IOError{Path: dir, Op: "mkdir", Err: err}
	}
	stateStore = state.NewStore(dir, logger)
	return stateStore, nil
}

// getCache opens the shared entry cache next to the state file.
func getCache() (*cache.Cache, error) {
	if entryCache != nil {
		return entryCache, nil
	}
	dir := viper.GetString("state.dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &faults.IOError{Path: dir, Op: "mkdir", Err: err}
	}
	c, err := cache.Open(filepath.Join(dir, "cache.db"), logger)
	if err != nil {
		return nil, err
	}
	entryCache = c
	return entryCache, nil
}

// trackerBaseURL derives the tracker API root from either an explicit URL
// or the organization name.
func trackerBaseURL() (string, error) {
	if u := viper.GetString("tracker.api_url"); u != "" {
		return u, nil
	}
	org := viper.GetString("tracker.organization")
	if org == "" {
		return "", &faults.ConfigError{
			Key: "tracker.organization",
			Err: fmt.Errorf("not set; run 'ao config init' and edit the config file"),
		}
	}
	return "https://dev.azure.com/" + org, nil
}

// getCoordinator wires the full dependency graph on first use.
func getCoordinator() (*lifecycle.Coordinator, error) {
	if coordinator != nil {
		return coordinator, nil
	}

	st, err := getStore()
	if err != nil {
		return nil, err
	}
	c, err := getCache()
	if err != nil {
		return nil, err
	}
	clk, err := workClock()
	if err != nil {
		return nil, err
	}

	pat, err := secrets.New().Get(secrets.KeyTrackerPAT)
	if err != nil {
		return nil, err
	}

	trackerURL, err := trackerBaseURL()
	if err != nil {
		return nil, err
	}
	project := viper.GetString("tracker.project")
	if project == "" {
		return nil, &faults.ConfigError{Key: "tracker.project", Err: fmt.Errorf("not set")}
	}
	timerURL := viper.GetString("timer.api_url")
	if timerURL == "" {
		return nil, &faults.ConfigError{Key: "timer.api_url", Err: fmt.Errorf("not set")}
	}
	calURL := viper.GetString("calendar.api_url")
	if calURL == "" {
		return nil, &faults.ConfigError{Key: "calendar.api_url", Err: fmt.Errorf("not set")}
	}

	expiry := time.Duration(viper.GetInt("state.expiry_hours")) * time.Hour

	coordinator = lifecycle.New(
		st, c,
		tracker.New(trackerURL, project, pat),
		timer.New(timerURL, pat),
		calendar.New(calURL, pat),
		clk,
		focusPolicy(),
		expiry,
		logger,
	)
	return coordinator, nil
}
