package signaling

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parley-p2p/parley/internal/config"
	"github.com/parley-p2p/parley/internal/metrics"
	"github.com/parley-p2p/parley/internal/protocol"
	"github.com/parley-p2p/parley/internal/relay"
	"github.com/parley-p2p/parley/internal/room"
)

// Server is the websocket signaling surface. It assigns each connection a
// member identity at upgrade time and drives the room protocol until the
// connection goes away.
type Server struct {
	log   *slog.Logger
	cfg   config.Config
	dir   *room.Directory
	relay *relay.Relay
	m     *metrics.Metrics

	upgrader websocket.Upgrader
}

func New(cfg config.Config, logger *slog.Logger, dir *room.Directory, rly *relay.Relay, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		log:   logger,
		cfg:   cfg,
		dir:   dir,
		relay: rly,
		m:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  int(cfg.MaxMessageBytes),
			WriteBufferSize: int(cfg.MaxMessageBytes),
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(s, conn)
	s.log.Debug("member connected", "member", c.member.ID, "remote_addr", r.RemoteAddr)

	go c.writePump()
	c.readPump()
}

// handleMessage processes one inbound frame to completion. Malformed frames
// are discarded without side effects and the connection stays open.
func (s *Server) handleMessage(c *client, data []byte) {
	env, err := protocol.ParseClientEnvelope(data)
	if err != nil {
		s.m.Inc(metrics.DropReasonMalformed)
		s.log.Debug("discarding malformed message", "member", c.member.ID, "err", err)
		return
	}

	switch env.Type {
	case protocol.TypeCreateRoom:
		s.handleCreate(c, env)
	case protocol.TypeJoinRoom:
		s.handleJoin(c, env)
	case protocol.TypeLeave:
		s.leave(c)
		c.close()
	case protocol.TypeSignal:
		s.handleSignal(c, env)
	}
}

func (s *Server) handleCreate(c *client, env protocol.ClientEnvelope) {
	if err := s.dir.CreateRoom(env.RoomID, c.member, payloadName(env)); err != nil {
		c.Send(protocol.RoomError(roomErrorMessage(err)))
		return
	}
	s.m.Inc(metrics.RoomsCreated)
	s.m.Inc(metrics.MembersJoined)
	s.log.Info("room created", "room", env.RoomID, "member", c.member.ID, "name", c.member.Name)
	c.Send(protocol.Joined(c.member.ID, nil))
}

func (s *Server) handleJoin(c *client, env protocol.ClientEnvelope) {
	existing, err := s.dir.JoinRoom(env.RoomID, c.member, payloadName(env))
	if err != nil {
		c.Send(protocol.RoomError(roomErrorMessage(err)))
		return
	}
	s.m.Inc(metrics.MembersJoined)
	s.log.Info("member joined", "room", env.RoomID, "member", c.member.ID, "name", c.member.Name)

	peers := make([]protocol.PeerInfo, 0, len(existing))
	for _, other := range existing {
		peers = append(peers, other.Info())
	}
	c.Send(protocol.Joined(c.member.ID, peers))

	// Announce to exactly the members present before the join.
	s.relay.Fanout(existing, protocol.NewPeer(c.member.ID, c.member.Name))
}

func (s *Server) handleSignal(c *client, env protocol.ClientEnvelope) {
	roomID, ok := s.dir.MemberRoom(c.member.ID)
	if !ok || roomID != env.RoomID {
		// Addressed to a room the sender is not in; treat like any other
		// malformed frame.
		s.m.Inc(metrics.DropReasonMalformed)
		return
	}
	s.relay.Unicast(roomID, c.member, env.Payload.To, env.Payload.Data)
}

// leave removes the member from its room and notifies the remaining members
// exactly once; Directory.Leave only reports a removal the first time, so the
// explicit leave and the transport-teardown path can both call this safely.
func (s *Server) leave(c *client) {
	roomID, remaining, ok := s.dir.Leave(c.member)
	if !ok {
		return
	}
	s.m.Inc(metrics.MembersLeft)
	s.log.Info("member left", "room", roomID, "member", c.member.ID)
	if len(remaining) == 0 {
		s.m.Inc(metrics.RoomsDestroyed)
		s.log.Info("room destroyed", "room", roomID)
		return
	}
	s.relay.Fanout(remaining, protocol.PeerLeft(c.member.ID))
}

// disconnect runs the same membership-removal path as an explicit leave.
func (s *Server) disconnect(c *client) {
	s.leave(c)
	c.close()
	s.log.Debug("member disconnected", "member", c.member.ID)
}

func payloadName(env protocol.ClientEnvelope) string {
	if env.Payload == nil {
		return ""
	}
	return env.Payload.Name
}

func roomErrorMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomExists):
		return "room already exists"
	case errors.Is(err, room.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, room.ErrAlreadyInRoom):
		return "already in a room"
	default:
		return "room operation failed"
	}
}
