package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/vanish/internal/config"
	"github.com/BioHazard786/vanish/internal/logging"
	"github.com/BioHazard786/vanish/internal/server"
	"github.com/BioHazard786/vanish/internal/ui"
	"github.com/BioHazard786/vanish/internal/utils"
)

var (
	flagPort            int
	flagMaxUsers        int
	flagRoomTimeout     time.Duration
	flagCleanupInterval time.Duration
	flagKeepEmptyRooms  bool
	flagShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the signaling server that pairs peers into rooms and relays their
handshakes. Settings fall back to PORT, MAX_USERS_PER_ROOM, ROOM_TIMEOUT (ms),
CLEANUP_INTERVAL (ms), KEEP_EMPTY_ROOMS and SHUTDOWN_TIMEOUT.

Examples:
  vanish serve
  vanish serve --port 8080 --max-users 2
  vanish serve --keep-empty-rooms --room-timeout 2h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "listen port")
	serveCmd.Flags().IntVar(&flagMaxUsers, "max-users", 0, "maximum peers per room")
	serveCmd.Flags().DurationVar(&flagRoomTimeout, "room-timeout", 0, "age after which kept empty rooms are swept")
	serveCmd.Flags().DurationVar(&flagCleanupInterval, "cleanup-interval", 0, "how often kept empty rooms are swept")
	serveCmd.Flags().BoolVar(&flagKeepEmptyRooms, "keep-empty-rooms", false, "keep rooms after the last peer leaves")
	serveCmd.Flags().DurationVar(&flagShutdownTimeout, "shutdown-timeout", 0, "grace period for open connections on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	cfg, err := config.LoadServer(config.ServerOptions{
		Port:            flagPort,
		MaxUsers:        flagMaxUsers,
		RoomTimeout:     flagRoomTimeout,
		CleanupInterval: flagCleanupInterval,
		KeepEmptyRooms:  flagKeepEmptyRooms,
		ShutdownTimeout: flagShutdownTimeout,
	})
	if err != nil {
		return err
	}

	logger := logging.Init(slog.LevelInfo)
	srv := server.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Run(ctx)
	}()

	fmt.Println(ui.ServerBanner(cfg.Port, utils.LocalIPv4s(), cfg.MaxUsers))

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"signaling-server": func(ctx context.Context) error {
				logger.Info("Shutting down signaling server")
				cancel()
				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case code := <-wait:
		if code != 0 {
			os.Exit(code)
		}
		ui.PrintSuccess("Signaling server stopped")
		return nil
	}
}
