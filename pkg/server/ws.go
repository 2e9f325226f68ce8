package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/entropy-world/entropy/pkg/auth"
	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsCommand is one client frame on the command stream. Op selects the
// operation; the remaining fields carry its arguments.
type wsCommand struct {
	Op             string          `json:"op"`
	Guest          int32           `json:"guest,omitempty"`
	To             *grid.Direction `json:"to,omitempty"`
	At             *int            `json:"at,omitempty"`
	Energy         *int64          `json:"energy,omitempty"`
	TransferEnergy *int64          `json:"transfer_energy,omitempty"`
	Node           *grid.NodeID    `json:"node,omitempty"`
}

// wsReply is the server frame answering one command.
type wsReply struct {
	OK     bool   `json:"ok"`
	Op     string `json:"op,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleWS authenticates once, upgrades, then serves commands until the
// peer goes away. Each frame runs through the same operation API as the
// HTTP routes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	cred, err := auth.FromBasic(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.world.VerifyPlayer(r.Context(), cred.PlayerID, cred.Token); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Debug("websocket read failed")
			}
			return
		}
		reply := s.dispatchWS(r, cred, &cmd)
		if err := conn.WriteJSON(reply); err != nil {
			s.log.WithError(err).Debug("websocket write failed")
			return
		}
	}
}

func (s *Server) dispatchWS(r *http.Request, cred auth.Credential, cmd *wsCommand) wsReply {
	ctx := r.Context()
	var (
		result any
		err    error
	)
	switch cmd.Op {
	case "get_guest":
		result, err = s.world.GetGuest(ctx, cred.PlayerID, cred.Token, cmd.Guest)
	case "list_guest":
		result, err = s.world.ListGuest(ctx, cred.PlayerID, cred.Token)
	case "spawn_guest":
		result, err = s.world.SpawnGuest(ctx, cred.PlayerID, cred.Token)
	case "walk":
		if cmd.To == nil {
			err = &entity.ParseError{Desc: "walk command missing to"}
			break
		}
		result, err = s.world.Walk(ctx, cred.PlayerID, cred.Token, cmd.Guest, *cmd.To)
	case "harvest":
		if cmd.At == nil {
			err = &entity.ParseError{Desc: "harvest command missing at"}
			break
		}
		result, err = s.world.Harvest(ctx, cred.PlayerID, cred.Token, cmd.Guest, *cmd.At)
	case "heat":
		if cmd.At == nil || cmd.Energy == nil {
			err = &entity.ParseError{Desc: "heat command missing at or energy"}
			break
		}
		result, err = s.world.Heat(ctx, cred.PlayerID, cred.Token, cmd.Guest, *cmd.At, *cmd.Energy)
	case "arrange":
		if cmd.TransferEnergy == nil {
			err = &entity.ParseError{Desc: "arrange command missing transfer_energy"}
			break
		}
		result, err = s.world.Arrange(ctx, cred.PlayerID, cred.Token, cmd.Guest, *cmd.TransferEnergy)
	case "detect":
		result, err = s.world.Detect(ctx, cred.PlayerID, cred.Token, cmd.Guest)
	case "get_node":
		if cmd.Node == nil {
			err = &entity.ParseError{Desc: "get_node command missing node"}
			break
		}
		result, err = s.world.GetNode(ctx, *cmd.Node)
	default:
		return wsReply{OK: false, Op: cmd.Op, Error: "unknown op"}
	}
	if err != nil {
		return wsReply{OK: false, Op: cmd.Op, Error: err.Error()}
	}
	return wsReply{OK: true, Op: cmd.Op, Result: result}
}
