package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"gree-ir-home/internal/climate"
	"gree-ir-home/internal/gree"
	"gree-ir-home/internal/transmit"
)

// unitView is the JSON representation of one unit's state.
type unitView struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Mode               string   `json:"mode"`
	Power              bool     `json:"power"`
	Temperature        int      `json:"temperature"`
	Fan                string   `json:"fan"`
	Swing              string   `json:"swing,omitempty"`
	SwingEnabled       bool     `json:"swing_enabled"`
	CurrentTemperature *float64 `json:"current_temperature,omitempty"`
}

func viewOf(c *climate.Controller) unitView {
	snap := c.Snapshot()
	v := unitView{
		ID:                 c.ID(),
		Name:               c.Name(),
		Mode:               snap.Mode.String(),
		Power:              snap.Mode != gree.ModeOff,
		Temperature:        snap.Temperature,
		Fan:                snap.Fan.String(),
		SwingEnabled:       snap.SwingEnabled,
		CurrentTemperature: snap.CurrentTemperature,
	}
	if snap.SwingEnabled {
		v.Swing = snap.Swing.String()
	}
	return v
}

func (s *Server) unit(w http.ResponseWriter, r *http.Request) *climate.Controller {
	c, ok := s.units[r.PathValue("id")]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unit not found"})
		return nil
	}
	return c
}

func (s *Server) handleAPIListUnits(w http.ResponseWriter, r *http.Request) {
	views := make([]unitView, 0, len(s.order))
	for _, id := range s.order {
		views = append(views, viewOf(s.units[id]))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetUnit(w http.ResponseWriter, r *http.Request) {
	c := s.unit(w, r)
	if c == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(c))
}

type setTemperatureRequest struct {
	Value int `json:"value"`
}

func (s *Server) handleAPISetTemperature(w http.ResponseWriter, r *http.Request) {
	c := s.unit(w, r)
	if c == nil {
		return
	}

	var req setTemperatureRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := c.SetTemperature(r.Context(), req.Value); err != nil {
		s.writeCommandError(w, c, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(c))
}

type setValueRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleAPISetMode(w http.ResponseWriter, r *http.Request) {
	c := s.unit(w, r)
	if c == nil {
		return
	}

	var req setValueRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	mode, err := gree.ParseMode(req.Value)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := c.SetMode(r.Context(), mode); err != nil {
		s.writeCommandError(w, c, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) handleAPISetFan(w http.ResponseWriter, r *http.Request) {
	c := s.unit(w, r)
	if c == nil {
		return
	}

	var req setValueRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	speed, err := gree.ParseFanSpeed(req.Value)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := c.SetFanSpeed(r.Context(), speed); err != nil {
		s.writeCommandError(w, c, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) handleAPISetSwing(w http.ResponseWriter, r *http.Request) {
	c := s.unit(w, r)
	if c == nil {
		return
	}

	var req setValueRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	swing, err := gree.ParseSwing(req.Value)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := c.SetSwing(r.Context(), swing); err != nil {
		s.writeCommandError(w, c, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(c))
}

type setPowerRequest struct {
	On bool `json:"on"`
}

func (s *Server) handleAPISetPower(w http.ResponseWriter, r *http.Request) {
	c := s.unit(w, r)
	if c == nil {
		return
	}

	var req setPowerRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var err error
	if req.On {
		err = c.TurnOn(r.Context())
	} else {
		err = c.TurnOff(r.Context())
	}
	if err != nil {
		s.writeCommandError(w, c, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	c := s.unit(w, r)
	if c == nil {
		return
	}
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, []interface{}{})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1-200"})
			return
		}
		limit = n
	}

	records, err := s.history.ListCommands(c.ID(), limit)
	if err != nil {
		s.logger.Error("list history", "err", err, "unit", c.ID())
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// writeCommandError maps controller errors to HTTP status codes. A failed
// transmit is reported as a bad gateway: the desired state was updated but
// the blaster did not confirm delivery.
func (s *Server) writeCommandError(w http.ResponseWriter, c *climate.Controller, err error) {
	var terr *transmit.Error
	switch {
	case errors.Is(err, climate.ErrInvalidArgument), errors.Is(err, climate.ErrSwingUnsupported):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, climate.ErrStopped):
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.As(err, &terr):
		s.logger.Error("transmit failed", "err", err, "unit", c.ID())
		s.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": err.Error(),
			"state": viewOf(c),
		})
	default:
		s.logger.Error("command failed", "err", err, "unit", c.ID())
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
