package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/vanish/internal/server"
	"github.com/BioHazard786/vanish/internal/transfer"
	"github.com/BioHazard786/vanish/internal/ui"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show what a signaling server reports about itself",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig()
		if err != nil {
			return err
		}
		info, err := fetchServerInfo(cmd.Context(), cfg.InfoURL())
		if err != nil {
			return transfer.NewError("server info", err)
		}
		fmt.Println(ui.ServerInfoView(info.IP, info.Port, info.URL))
		return nil
	},
}

func init() {
	infoCmd.Flags().StringVarP(&flagServer, "server", "s", "", "signaling server URL or host[:port]")
	rootCmd.AddCommand(infoCmd)
}

func fetchServerInfo(ctx context.Context, url string) (*server.ServerInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var info server.ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode server info: %w", err)
	}
	return &info, nil
}
