package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/vanish/internal/config"
	"github.com/BioHazard786/vanish/internal/e2ee"
	"github.com/BioHazard786/vanish/internal/ephemeral"
	"github.com/BioHazard786/vanish/internal/logging"
	"github.com/BioHazard786/vanish/internal/room"
	"github.com/BioHazard786/vanish/internal/session"
	"github.com/BioHazard786/vanish/internal/signaling"
	"github.com/BioHazard786/vanish/internal/transfer"
	"github.com/BioHazard786/vanish/internal/ui"
	"github.com/BioHazard786/vanish/internal/webrtc"
)

const enterTimeout = 15 * time.Second

var (
	flagServer      string
	flagSTUN        string
	flagTURN        string
	flagTURNUser    string
	flagTURNPass    string
	flagRelayOnly   bool
	flagForceTURN   bool
	flagDeleteAfter time.Duration
)

// addClientFlags registers the connection flags shared by create and join.
func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&flagServer, "server", "s", "", "signaling server URL or host[:port] (default "+config.DefaultServerURL+")")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL")
	f.StringVar(&flagTURN, "turn", "", "TURN server host or URL")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	f.BoolVar(&flagRelayOnly, "relay-only", false, "skip direct channels and chat through the server")
	f.BoolVar(&flagForceTURN, "force-turn", false, "only use TURN relay candidates for direct channels")
	f.DurationVarP(&flagDeleteAfter, "delete-after", "d", 0, "self-destruct timer for sent messages, e.g. 30s")
}

func loadClientConfig() (*config.Client, error) {
	cfg, err := config.LoadClient(config.ClientOptions{
		ServerURL:   flagServer,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		RelayOnly:   flagRelayOnly,
		ForceTURN:   flagForceTURN,
		DeleteAfter: flagDeleteAfter,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	if cfg.ForceTURN && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force TURN without a TURN server configured")
	}
	return cfg, nil
}

// chatSession is one client's connection to the server plus its coordinator.
type chatSession struct {
	cfg      *config.Client
	client   *signaling.Client
	coord    *session.Coordinator
	timeline *ephemeral.Timeline
	cancel   context.CancelFunc
}

func newChatSession(cfg *config.Client) (*chatSession, error) {
	logger := logging.Init(slog.LevelError)

	spin := ui.NewConnectionSpinner("Connecting to " + cfg.ServerURL + "...")
	spin.Start()
	defer spin.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	client := signaling.NewClient(cfg.ServerURL, logger)
	connectCtx, stop := context.WithTimeout(ctx, enterTimeout)
	defer stop()
	if err := client.Connect(connectCtx); err != nil {
		cancel()
		return nil, transfer.NewError("connect to server", err)
	}

	keys, err := e2ee.NewKeyRing()
	if err != nil {
		cancel()
		client.Close()
		return nil, transfer.NewError("generate keys", err)
	}

	timeline := ephemeral.NewTimeline()
	opts := session.Options{
		Signaler: client,
		Keys:     keys,
		Timeline: timeline,
		Logger:   logger,
	}
	if !cfg.RelayOnly {
		opts.Connector = session.PionConnector(webrtc.NewDialer(cfg, logger))
	}

	coord := session.New(opts)
	go coord.Run(ctx, client.Incoming())

	spin.Success("Connected to " + cfg.ServerURL)
	if cfg.RelayOnly {
		ui.PrintWarning("Direct channels disabled, messages go through the server")
	}
	return &chatSession{
		cfg:      cfg,
		client:   client,
		coord:    coord,
		timeline: timeline,
		cancel:   cancel,
	}, nil
}

// enter creates or joins roomID and waits for the server's answer.
func (s *chatSession) enter(roomID string, create bool) error {
	spin := ui.NewWaitingSpinner("Entering room " + roomID + "...")
	spin.Start()
	defer spin.Stop()

	var err error
	if create {
		err = s.coord.Create(roomID)
	} else {
		err = s.coord.Join(roomID)
	}
	if err != nil {
		return err
	}
	spin.UpdateMessage("Waiting for the server to answer...")

	timeout := time.After(enterTimeout)
	for {
		select {
		case ev := <-s.coord.Events():
			switch ev.Kind {
			case session.EventRoomCreated, session.EventRoomJoined:
				return nil
			case session.EventRoomFull:
				return &room.FullError{RoomID: roomID, MaxUsers: ev.MaxUsers}
			case session.EventRoomNotFound:
				return fmt.Errorf("%w: %s", room.ErrRoomNotFound, roomID)
			case session.EventError:
				if errors.Is(ev.Err, transfer.ErrSignalingError) {
					return ev.Err
				}
			}
		case <-s.client.Done():
			return transfer.NewError("enter room", transfer.ErrSignalingError)
		case <-timeout:
			return transfer.WrapError("enter room", transfer.ErrSignalingError, "no answer from server")
		}
	}
}

// chat shows the room banner and runs the chat view until the user leaves.
func (s *chatSession) chat(created bool) error {
	roomID := s.coord.RoomID()
	fmt.Println(ui.RoomBox(roomID, s.cfg.ServerURL, created))
	m := ui.NewChatModel(s.coord, s.timeline, s.coord.Events(), s.cfg.DeleteAfter)
	if err := ui.RunChat(m); err != nil {
		return err
	}
	ui.PrintInfof("Left %s. Nothing was kept.", roomID)
	return nil
}

func (s *chatSession) close() {
	s.coord.Close()
	s.cancel()
	s.client.Close()
}

// runChat connects, enters roomID and chats until the user leaves.
func runChat(roomID string, create bool) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}

	s, err := newChatSession(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.enter(roomID, create); err != nil {
		return err
	}
	return s.chat(create)
}
