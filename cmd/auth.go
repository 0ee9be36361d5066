package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/secrets"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
	Long: `Manage the personal access token used against the tracker and timer.

The token lives in the system keyring. The AO_TRACKER_PAT environment
variable overrides the keyring when set, for CI and scripted use.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the personal access token",
	Long: `Store the PAT in the system keyring. Reads the token from stdin, so it
never lands in shell history:

  ao auth set < token.txt
  echo -n "$PAT" | ao auth set`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authSetRun()
	},
}

var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show whether a credential is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authShowRun()
	},
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authClearRun()
	},
}

func init() {
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authClearCmd)
	rootCmd.AddCommand(authCmd)
}

func authSetRun() error {
	fmt.Fprint(ui.Out, "Personal access token: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return &faults.IOError{Op: "read", Path: "stdin", Err: err}
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return faults.Validationf("empty token")
	}

	if dryRun {
		ui.DryRunMsg("would store credential %q in the keyring", secrets.KeyTrackerPAT)
		return nil
	}

	if err := secrets.New().Set(secrets.KeyTrackerPAT, token); err != nil {
		return err
	}
	ui.Success("Credential stored.")
	return nil
}

func authShowRun() error {
	_, err := secrets.New().Get(secrets.KeyTrackerPAT)
	if err != nil {
		ui.Warning("No credential stored (%v)", err)
		return nil
	}
	if os.Getenv("AO_TRACKER_PAT") != "" {
		ui.Info("Credential present (from AO_TRACKER_PAT).")
	} else {
		ui.Info("Credential present (keyring).")
	}
	return nil
}

func authClearRun() error {
	if dryRun {
		ui.DryRunMsg("would remove credential %q from the keyring", secrets.KeyTrackerPAT)
		return nil
	}
	if err := secrets.New().Delete(secrets.KeyTrackerPAT); err != nil {
		return err
	}
	ui.Success("Credential removed.")
	return nil
}
