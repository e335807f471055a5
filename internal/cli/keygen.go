package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tutu-network/coord/internal/security"
)

func init() {
	rootCmd.AddCommand(keygenCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the node identity or print the existing one",
	Long: `Loads the Ed25519 node key from <home>/keys, creating it on first use,
and prints the public key. The hex public key is the node's address in
the registry.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kp, err := security.LoadOrCreateKeypair(cfg.Node.DataDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "address: %s\n", kp.PublicKeyHex())
		fmt.Fprintf(out, "key:     %s\n", filepath.Join(cfg.Node.DataDir, "keys", "node.key"))
		return nil
	},
}
