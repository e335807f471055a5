package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/tutu-network/coord/internal/app/commitreveal"
	"github.com/tutu-network/coord/internal/daemon"
	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/infra/kvstore"
	"github.com/tutu-network/coord/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(auditCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit <commitment-storage-id> <receipt-storage-id>",
	Short: "Check a commit/reveal pair from durable storage",
	Long: `Loads a commitment record and its reveal receipt from the configured
content store and checks linkage, payload hash and reveal timing. Exits
non-zero when the pair does not hold up.`,
	Args: cobra.ExactArgs(2),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeFn, err := openContentStore(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeFn()) }()

	report, err := commitreveal.Audit(cmd.Context(), store, args[0], args[1])
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("audit failed: %s", report.Error)
	}
	return nil
}

// openContentStore opens the persistent store the node writes to.
func openContentStore(cfg daemon.Config) (domain.ContentStore, func() error, error) {
	switch cfg.Storage.Backend {
	case daemon.BackendSQLite:
		db, err := sqlite.Open(cfg.Node.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case daemon.BackendBadger:
		kv, err := kvstore.Open(kvstore.Config{Dir: filepath.Join(cfg.Node.DataDir, "kv")})
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	default:
		return nil, nil, fmt.Errorf("storage backend %q is not persistent", cfg.Storage.Backend)
	}
}
