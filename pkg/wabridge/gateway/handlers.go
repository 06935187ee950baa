package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const version = "1.0.0"

// errorResponse is the consistent error format.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, msg string, code int) {
	var resp errorResponse
	resp.Error.Message = msg
	resp.Error.Code = code
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) channelStates() map[string]string {
	out := make(map[string]string)
	if g.health == nil {
		return out
	}
	for name, st := range g.health.HealthAll() {
		if st.Connected {
			out[name] = "connected"
		} else {
			out[name] = "disconnected"
		}
	}
	return out
}

// handleHealth implements GET /health
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uptime := time.Since(g.startedAt).Round(time.Second).String()
	if uptime == "0s" {
		uptime = "<1s"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  version,
		"uptime":   uptime,
		"channels": g.channelStates(),
	})
}

// handleStatus implements GET /api/status
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := g.source.Status()
	if st.ProactiveChats == nil {
		st.ProactiveChats = []string{}
	}
	sort.Strings(st.ProactiveChats)
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": g.channelStates(),
		"bridge":   st,
	})
}

type addObjectiveRequest struct {
	Description string `json:"description"`
}

// handleObjectives implements GET and POST /api/objectives
func (g *Gateway) handleObjectives(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items := g.source.Objectives()
		if items == nil {
			items = []Objective{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"objectives": items})

	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
		if err != nil {
			writeError(w, "failed to read body", http.StatusBadRequest)
			return
		}
		var req addObjectiveRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		desc := strings.TrimSpace(req.Description)
		if desc == "" {
			writeError(w, "description is required", http.StatusBadRequest)
			return
		}
		obj := g.source.AddObjective(desc)
		g.logger.Info("objective added via API", "id", obj.ID)
		writeJSON(w, http.StatusCreated, obj)

	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleQR implements GET /api/qr
func (g *Gateway) handleQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ev, ok := g.qr.LastQR()
	if !ok {
		writeError(w, "no QR code available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
