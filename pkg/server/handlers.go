package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/ugorji/go/codec"

	"github.com/entropy-world/entropy/pkg/auth"
	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
	"github.com/entropy-world/entropy/pkg/world"
)

// Request payloads, mirroring the operation API.

type registerRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type walkRequest struct {
	To grid.Direction `json:"to"`
}

type harvestRequest struct {
	At int `json:"at"`
}

type heatRequest struct {
	At     int   `json:"at"`
	Energy int64 `json:"energy"`
}

type arrangeRequest struct {
	TransferEnergy int64 `json:"transfer_energy"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &entity.ParseError{Desc: "register payload: " + err.Error()})
		return
	}
	p, err := s.world.Register(r.Context(), req.Name, auth.HashPassword(req.Password))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, p)
}

func (s *Server) handleVerifyPlayer(w http.ResponseWriter, r *http.Request) {
	cred, err := auth.FromBasic(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.world.VerifyPlayer(r.Context(), cred.PlayerID, cred.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, p)
}

func (s *Server) handlePlayerPublic(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt32(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.world.PlayerPublic(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, p)
}

func (s *Server) handleListGuest(w http.ResponseWriter, r *http.Request) {
	cred, err := auth.FromBasic(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	gs, err := s.world.ListGuest(r.Context(), cred.PlayerID, cred.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if gs == nil {
		gs = []*entity.Guest{}
	}
	s.writeJSON(w, gs)
}

func (s *Server) handleSpawnGuest(w http.ResponseWriter, r *http.Request) {
	cred, err := auth.FromBasic(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	g, err := s.world.SpawnGuest(r.Context(), cred.PlayerID, cred.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id, err := pathNodeID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	n, err := s.world.GetNode(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, n)
}

func (s *Server) handleNodeBytes(w http.ResponseWriter, r *http.Request) {
	id, err := pathNodeID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := s.world.GetNodeBytes(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%d-%d.bin", id.X, id.Y)))
	_, _ = w.Write(data)
}

func (s *Server) handleNodeMsgpack(w http.ResponseWriter, r *http.Request) {
	id, err := pathNodeID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := s.world.GetNodeBytes(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var packed []byte
	if err := codec.NewEncoderBytes(&packed, &codec.MsgpackHandle{}).Encode(data); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%d-%d.msgpack", id.X, id.Y)))
	_, _ = w.Write(packed)
}

func (s *Server) handleGetGuest(w http.ResponseWriter, r *http.Request) {
	cred, gid, err := s.guestRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	g, err := s.world.GetGuest(r.Context(), cred.PlayerID, cred.Token, gid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handleWalk(w http.ResponseWriter, r *http.Request) {
	cred, gid, err := s.guestRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req walkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &entity.ParseError{Desc: "walk payload: " + err.Error()})
		return
	}
	g, err := s.world.Walk(r.Context(), cred.PlayerID, cred.Token, gid, req.To)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	cred, gid, err := s.guestRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req harvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &entity.ParseError{Desc: "harvest payload: " + err.Error()})
		return
	}
	g, err := s.world.Harvest(r.Context(), cred.PlayerID, cred.Token, gid, req.At)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handleHeat(w http.ResponseWriter, r *http.Request) {
	cred, gid, err := s.guestRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req heatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &entity.ParseError{Desc: "heat payload: " + err.Error()})
		return
	}
	g, err := s.world.Heat(r.Context(), cred.PlayerID, cred.Token, gid, req.At, req.Energy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handleArrange(w http.ResponseWriter, r *http.Request) {
	cred, gid, err := s.guestRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req arrangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &entity.ParseError{Desc: "arrange payload: " + err.Error()})
		return
	}
	g, err := s.world.Arrange(r.Context(), cred.PlayerID, cred.Token, gid, req.TransferEnergy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	cred, gid, err := s.guestRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ds, err := s.world.Detect(r.Context(), cred.PlayerID, cred.Token, gid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ds == nil {
		ds = []entity.DetectedGuest{}
	}
	s.writeJSON(w, ds)
}

// guestRequest pulls credentials and the {gid} path variable.
func (s *Server) guestRequest(r *http.Request) (auth.Credential, int32, error) {
	cred, err := auth.FromBasic(r)
	if err != nil {
		return auth.Credential{}, 0, err
	}
	gid, err := pathInt32(r, "gid")
	if err != nil {
		return auth.Credential{}, 0, err
	}
	return cred, gid, nil
}

func pathInt32(r *http.Request, name string) (int32, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 32)
	if err != nil {
		return 0, &entity.ParseError{Desc: fmt.Sprintf("path variable %s: %v", name, err)}
	}
	return int32(v), nil
}

func pathNodeID(r *http.Request) (grid.NodeID, error) {
	vars := mux.Vars(r)
	x, err := strconv.ParseInt(vars["x"], 10, 16)
	if err != nil {
		return grid.NodeID{}, &entity.ParseError{Desc: "path variable x: " + err.Error()}
	}
	y, err := strconv.ParseInt(vars["y"], 10, 16)
	if err != nil {
		return grid.NodeID{}, &entity.ParseError{Desc: "path variable y: " + err.Error()}
	}
	return grid.FromXY(int16(x), int16(y)), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("encoding response")
	}
}

// writeError maps the domain taxonomy onto HTTP statuses and renders
// {"error": "..."}.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		authErr      *world.AuthError
		playerMiss   *world.PlayerNotExistError
		guestMiss    *world.GuestNotExistError
		direction    *world.DirectionNotAllowedError
		energy       *entity.EnergyNotEnoughError
		cellIndex    *entity.CellIndexOutOfRangeError
		cellHigh     *entity.CellTemperatureTooHighError
		nodeHigh     *entity.NodeTemperatureTooHighError
		outOfLimit   *entity.OutOfLimitError
		parseFailure *entity.ParseError
	)
	switch {
	case errors.Is(err, world.ErrAuthHeader), errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &playerMiss), errors.As(err, &guestMiss):
		return http.StatusNotFound
	case errors.Is(err, world.ErrAlreadyHasGuest),
		errors.As(err, &direction),
		errors.As(err, &energy),
		errors.As(err, &cellIndex),
		errors.As(err, &cellHigh),
		errors.As(err, &nodeHigh),
		errors.As(err, &outOfLimit):
		return http.StatusNotAcceptable
	case errors.As(err, &parseFailure):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
