package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ao"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage ao configuration.

Running bare 'ao config' is the same as 'ao config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# ao configuration
# See: ao config show (for effective values and sources)

tracker:
  # Azure DevOps organization name (required)
  organization: "{{ .Organization }}"

  # Project within the organization (required)
  project: "{{ .Project }}"

  # Override the derived API root (optional)
  # api_url: ""

timer:
  # 7pace Timetracker API root (required)
  api_url: "{{ .TimerURL }}"

calendar:
  # Calendar API root (required)
  api_url: "{{ .CalendarURL }}"

  # Calendar display name for Focus Block events
  name: "{{ .CalendarName }}"

work_hours:
  start: "{{ .WorkStart }}"
  end: "{{ .WorkEnd }}"
  # IANA timezone name; empty means the system timezone
  timezone: "{{ .Timezone }}"
  weekdays_only: {{ .WeekdaysOnly }}

focus:
  duration_minutes: {{ .FocusDuration }}
  granularity_minutes: {{ .FocusGranularity }}
  # Allow a shortened block at end of day, down to min_fraction of the
  # requested duration
  truncate: {{ .FocusTruncate }}
  min_fraction: {{ .FocusMinFraction }}
  lookahead_days: {{ .FocusLookahead }}

state:
  # Directory for state.json, the lock file, and the cache
  # dir: {{ .StateDir }}
  expiry_hours: {{ .ExpiryHours }}
`

type configTemplateData struct {
	Organization     string
	Project          string
	TimerURL         string
	CalendarURL      string
	CalendarName     string
	WorkStart        string
	WorkEnd          string
	Timezone         string
	WeekdaysOnly     bool
	FocusDuration    int
	FocusGranularity int
	FocusTruncate    bool
	FocusMinFraction float64
	FocusLookahead   int
	StateDir         string
	ExpiryHours      int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return &faults.ConfigError{
				Err: fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath),
			}
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		Organization:     viper.GetString("tracker.organization"),
		Project:          viper.GetString("tracker.project"),
		TimerURL:         viper.GetString("timer.api_url"),
		CalendarURL:      viper.GetString("calendar.api_url"),
		CalendarName:     viper.GetString("calendar.name"),
		WorkStart:        viper.GetString("work_hours.start"),
		WorkEnd:          viper.GetString("work_hours.end"),
		Timezone:         viper.GetString("work_hours.timezone"),
		WeekdaysOnly:     viper.GetBool("work_hours.weekdays_only"),
		FocusDuration:    viper.GetInt("focus.duration_minutes"),
		FocusGranularity: viper.GetInt("focus.granularity_minutes"),
		FocusTruncate:    viper.GetBool("focus.truncate"),
		FocusMinFraction: viper.GetFloat64("focus.min_fraction"),
		FocusLookahead:   viper.GetInt("focus.lookahead_days"),
		StateDir:         viper.GetString("state.dir"),
		ExpiryHours:      viper.GetInt("state.expiry_hours"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &faults.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return &faults.IOError{Op: "write", Path: cfgPath, Err: err}
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "tracker.organization", EnvVar: "AO_TRACKER_ORGANIZATION"},
	{Key: "tracker.project", EnvVar: "AO_TRACKER_PROJECT"},
	{Key: "tracker.api_url", EnvVar: "AO_TRACKER_API_URL"},
	{Key: "timer.api_url", EnvVar: "AO_TIMER_API_URL"},
	{Key: "calendar.api_url", EnvVar: "AO_CALENDAR_API_URL"},
	{Key: "calendar.name", EnvVar: "AO_CALENDAR_NAME"},
	{Key: "work_hours.start", EnvVar: "AO_WORK_HOURS_START"},
	{Key: "work_hours.end", EnvVar: "AO_WORK_HOURS_END"},
	{Key: "work_hours.timezone", EnvVar: "AO_WORK_HOURS_TIMEZONE"},
	{Key: "work_hours.weekdays_only", EnvVar: "AO_WORK_HOURS_WEEKDAYS_ONLY"},
	{Key: "focus.duration_minutes", EnvVar: "AO_FOCUS_DURATION_MINUTES"},
	{Key: "focus.granularity_minutes", EnvVar: "AO_FOCUS_GRANULARITY_MINUTES"},
	{Key: "focus.truncate", EnvVar: "AO_FOCUS_TRUNCATE"},
	{Key: "focus.min_fraction", EnvVar: "AO_FOCUS_MIN_FRACTION"},
	{Key: "focus.lookahead_days", EnvVar: "AO_FOCUS_LOOKAHEAD_DAYS"},
	{Key: "state.dir", EnvVar: "AO_STATE_DIR"},
	{Key: "state.expiry_hours", EnvVar: "AO_STATE_EXPIRY_HOURS"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return &faults.ConfigError{
			Err: fmt.Errorf("config file not found: %s (run 'ao config init' first)", cfgPath),
		}
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
