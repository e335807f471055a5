package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/infra/sqlite"
	"github.com/tutu-network/coord/internal/security"
)

func init() {
	registerCmd.Flags().StringVar(&regPublicKey, "public-key", "", "Hex public key (default: this node's key)")
	registerCmd.Flags().Uint64Var(&regUploaded, "uploaded", 0, "Bytes uploaded to record in the ledger")
	registerCmd.Flags().Uint64Var(&regDownloaded, "downloaded", 0, "Bytes downloaded to record in the ledger")
	registerCmd.Flags().BoolVar(&regInactive, "inactive", false, "Mark the user inactive")
	registerCmd.Flags().Uint64Var(&regMinRep, "min-reputation", 0, "Also set the registry admission threshold")
	rootCmd.AddCommand(registerCmd)
}

var (
	regPublicKey  string
	regUploaded   uint64
	regDownloaded uint64
	regInactive   bool
	regMinRep     uint64
)

var registerCmd = &cobra.Command{
	Use:   "register <user-id>",
	Short: "Add or update a user in the local ledger registry",
	Long: `Writes a user to the sqlite registry in <home>/state.db. Transfer
amounts are appended to the ledger and added to the user's totals.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pub := regPublicKey
	if pub == "" {
		kp, err := security.LoadOrCreateKeypair(cfg.Node.DataDir)
		if err != nil {
			return err
		}
		pub = kp.PublicKeyHex()
	}

	db, err := sqlite.Open(cfg.Node.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	userID := args[0]
	if err := db.UpsertUser(ctx, domain.OnChainUser{
		UserID:    userID,
		PublicKey: pub,
		Active:    !regInactive,
	}); err != nil {
		return fmt.Errorf("register %s: %w", userID, err)
	}
	if regUploaded > 0 || regDownloaded > 0 {
		if err := db.RecordTransfer(ctx, userID, regUploaded, regDownloaded); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("min-reputation") {
		if err := db.SetMinReputation(ctx, regMinRep); err != nil {
			return err
		}
	}

	user, err := db.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), user)
}
