package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/coord/internal/app/dhtfallback"
	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/infra/sqlite"
	"github.com/tutu-network/coord/internal/security"
)

func init() {
	announceCmd.Flags().StringVar(&annHost, "host", "127.0.0.1", "Host peers should connect to")
	announceCmd.Flags().IntVar(&annPort, "port", 6881, "Port peers should connect to")
	announceCmd.Flags().StringVar(&annEvent, "event", string(domain.EventStarted), "started | stopped | completed")
	announceCmd.Flags().StringVar(&annPost, "post", "", "Node base URL to submit the announcement to")
	rootCmd.AddCommand(announceCmd)
}

var (
	annHost  string
	annPort  int
	annEvent string
	annPost  string
)

var announceCmd = &cobra.Command{
	Use:   "announce <content-hash>",
	Short: "Build a signed DHT announcement with this node's key",
	Long: `Signs an announcement for <content-hash> with the node key after
checking registration and reputation against the local registry. The
announcement is printed, and submitted to --post when given.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnounce,
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kp, err := security.LoadOrCreateKeypair(cfg.Node.DataDir)
	if err != nil {
		return err
	}
	db, err := sqlite.Open(cfg.Node.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	mgr, err := dhtfallback.NewManager(dhtfallback.DefaultConfig(), db)
	if err != nil {
		return err
	}
	ann, err := mgr.CreateAnnouncement(cmd.Context(), kp.Private, args[0], annHost, annPort, domain.AnnounceEvent(annEvent))
	if err != nil {
		return err
	}

	if err := printJSON(cmd.OutOrStdout(), ann); err != nil {
		return err
	}
	if annPost == "" {
		return nil
	}
	return postAnnouncement(cmd, annPost, ann)
}

func postAnnouncement(cmd *cobra.Command, base string, ann *domain.DHTAnnouncement) error {
	body, err := json.Marshal(ann)
	if err != nil {
		return err
	}
	url := strings.TrimRight(base, "/") + "/api/dht/announce"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post announcement: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !result.Accepted {
		return fmt.Errorf("announcement rejected by %s", base)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "accepted by %s\n", base)
	return nil
}
