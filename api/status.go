package api

import (
	"net/http"
	"time"
)

type statusResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Rendered  bool   `json:"rendered"`
	CurrentID string `json:"current_id,omitempty"`
	Overlay   string `json:"overlay,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:  "ok",
		Uptime:  s.Now().Sub(s.StartTime).Truncate(time.Second).String(),
		Version: s.Version,
	}
	if cur := s.Session.Current(); cur != nil {
		resp.Rendered = true
		resp.CurrentID = cur.ID
		resp.Overlay = string(cur.Status)
	}
	writeJSON(w, http.StatusOK, resp)
}
