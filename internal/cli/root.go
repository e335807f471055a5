// Package cli implements the tutu-coord command-line interface using Cobra.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/coord/internal/daemon"
)

var homeFlag string

var rootCmd = &cobra.Command{
	Use:   "tutu-coord",
	Short: "TuTu coordination node: commit-reveal and DHT fallback",
	Long: `tutu-coord runs the coordination protocols of the TuTu network.

Commit-reveal lets a participant pin the hash of a payload, wait out a
reveal delay, then disclose it so that anyone can audit both steps.
The DHT fallback keeps peer discovery alive when the tracker is down by
admitting only announcements signed by registered, reputable users.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if homeFlag != "" {
			return os.Setenv("TUTU_COORD_HOME", homeFlag)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "Data directory (default $TUTU_COORD_HOME or ~/.tutu-coord)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the node config and pins the data dir.
func loadConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return cfg, err
	}
	if cfg.Node.DataDir == "" {
		cfg.Node.DataDir = daemon.CoordHome()
	}
	return cfg, nil
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
