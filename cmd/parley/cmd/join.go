package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/parley-p2p/parley/internal/peer"
	"github.com/parley-p2p/parley/internal/protocol"
	"github.com/parley-p2p/parley/internal/signalclient"
)

var (
	flagServer string
	flagName   string
	flagCreate bool
	flagSTUN   []string
	flagDebug  bool
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and talk to its members",
	Long: `Join a room on the signaling server and negotiate connections with the
other members. Lines typed at the prompt are sent as chat to every confirmed
peer. Commands:

  /confirm <id|name>   include a peer in calls
  /peers               list known peers and their call state
  /call                start or rejoin a call with confirmed peers
  /hangup              leave the call, stay in the room
  /quit                leave the room and exit

Examples:
  parley join --create weekly-sync
  parley join --server wss://parley.example.com/ws --name mia weekly-sync`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(args[0])
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagServer, "server", "ws://127.0.0.1:8080/ws", "signaling server websocket URL")
	joinCmd.Flags().StringVar(&flagName, "name", "", "display name shown to other members")
	joinCmd.Flags().BoolVar(&flagCreate, "create", false, "create the room instead of joining an existing one")
	joinCmd.Flags().StringSliceVar(&flagSTUN, "stun", []string{"stun:stun.l.google.com:19302"}, "STUN server URLs")
	joinCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(joinCmd)
}

// roomSignaler binds the engine's outbound signals to the joined room.
type roomSignaler struct {
	client *signalclient.Client
	roomID string
}

func (r roomSignaler) Signal(to string, data protocol.SignalData) error {
	return r.client.Signal(r.roomID, to, data)
}

func runJoin(roomID string) error {
	level := slog.LevelWarn
	if flagDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sc, err := signalclient.Dial(ctx, flagServer)
	if err != nil {
		return err
	}
	defer sc.Close()

	factory, err := peer.NewPionFactory(peer.PionConfig{
		ICEServers: []webrtc.ICEServer{{URLs: flagSTUN}},
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	engine := peer.NewEngine(peer.Config{
		Signaler: roomSignaler{client: sc, roomID: roomID},
		Factory:  factory,
		Media:    peer.NewSyntheticAudio(),
		Logger:   logger,
		OnChat: func(peerID, name, text string) {
			fmt.Printf("[%s] %s\n", displayName(name, peerID), text)
		},
		OnRemoteMedia: func(peerID, kind string) {
			fmt.Printf("* receiving %s from %s\n", kind, peerID)
		},
		OnRemoteMediaRemoved: func(peerID string) {
			fmt.Printf("* %s left the call\n", peerID)
		},
		OnPeerGone: func(peerID string) {
			fmt.Printf("* %s left the room\n", peerID)
		},
	})
	go engine.Run(ctx)

	if flagCreate {
		err = sc.CreateRoom(roomID, flagName)
	} else {
		err = sc.JoinRoom(roomID, flagName)
	}
	if err != nil {
		return err
	}

	roomErr := make(chan error, 1)
	go func() {
		defer cancel()
		for env := range sc.Incoming() {
			switch env.Type {
			case protocol.TypeJoined:
				fmt.Printf("joined %q as %s\n", roomID, env.ID)
				for _, p := range env.Peers {
					fmt.Printf("* present: %s (%s)\n", displayName(p.Name, p.ID), p.ID)
				}
			case protocol.TypeNewPeer:
				fmt.Printf("* %s (%s) joined the room\n", displayName(env.Name, env.ID), env.ID)
			case protocol.TypeRoomError:
				roomErr <- fmt.Errorf("server rejected request: %s", env.Message)
				return
			}
			engine.HandleEnvelope(env)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			select {
			case err := <-roomErr:
				return err
			default:
			}
			_ = sc.Leave()
			return nil
		case line, ok := <-lines:
			if !ok {
				_ = sc.Leave()
				return nil
			}
			if quit := handleLine(engine, line); quit {
				_ = sc.Leave()
				return nil
			}
		}
	}
}

// handleLine dispatches one line of user input. It reports whether the user
// asked to quit.
func handleLine(engine *peer.Engine, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := engine.SendChat(line); err != nil {
			fmt.Println("!", err)
		}
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/confirm":
		if err := engine.Confirm(strings.TrimSpace(arg)); err != nil {
			fmt.Println("!", err)
		} else {
			fmt.Printf("* confirmed %s\n", strings.TrimSpace(arg))
		}
	case "/peers":
		peers, err := engine.Peers()
		if err != nil {
			fmt.Println("!", err)
			return false
		}
		if len(peers) == 0 {
			fmt.Println("* no peers")
			return false
		}
		for _, p := range peers {
			mark := " "
			if p.Confirmed {
				mark = "+"
			}
			fmt.Printf("%s %s (%s) %s\n", mark, displayName(p.Name, p.ID), p.ID, p.State)
		}
	case "/call":
		if err := engine.StartCall(); err != nil {
			fmt.Println("!", err)
		} else {
			fmt.Println("* calling confirmed peers")
		}
	case "/hangup":
		if err := engine.EndCall(); err != nil {
			fmt.Println("!", err)
		} else {
			fmt.Println("* left the call")
		}
	case "/quit":
		return true
	default:
		fmt.Printf("! unknown command %s\n", cmd)
	}
	return false
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
