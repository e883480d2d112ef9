package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openclaw/qr/store"
	"github.com/openclaw/qr/tracker"
)

type scanResponse struct {
	Message   string `json:"message"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	IP        string `json:"ip"`
	Timestamp string `json:"timestamp"`
}

type scansResponse struct {
	Scans   []store.Scan     `json:"scans"`
	Total   int              `json:"total"`
	Filters store.ScanFilter `json:"filters"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	now := s.Now()
	scan, err := s.Store.RecordScan(r.Context(), store.ScanInput{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}, now)
	if err != nil {
		s.Log.Error("record scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.Notifier != nil {
		evt := &tracker.ScanEvent{
			ScanID:    scan.ID,
			IP:        scan.IP,
			UserAgent: scan.UserAgent,
			Referer:   scan.Referer,
			Timestamp: scan.Timestamp,
		}
		// Delivery must not hold up the phone that scanned.
		go func() {
			if err := s.Notifier.Notify(context.WithoutCancel(r.Context()), evt); err != nil {
				s.Log.Warn("scan notification failed", "scan_id", evt.ScanID, "error", err)
			}
		}()
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Message:   "scan recorded",
		Date:      scan.Date,
		Time:      scan.Time,
		IP:        scan.IP,
		Timestamp: now.Format(time.RFC3339),
	})
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	f := store.ScanFilter{
		Date:     r.URL.Query().Get("date"),
		Month:    queryInt(r, "month", 0),
		Year:     queryInt(r, "year", 0),
		HourFrom: queryIntPtr(r, "hour_from"),
		HourTo:   queryIntPtr(r, "hour_to"),
		Limit:    queryInt(r, "limit", store.DefaultScanLimit),
	}

	scans, err := s.Store.ListScans(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if scans == nil {
		scans = []store.Scan{}
	}

	writeJSON(w, http.StatusOK, scansResponse{Scans: scans, Total: len(scans), Filters: f})
}

func (s *Server) handleStatsDaily(w http.ResponseWriter, r *http.Request) {
	days, err := s.Store.StatsByDay(r.Context(), queryInt(r, "year", 0), queryInt(r, "month", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days, "total_days": len(days)})
}

func (s *Server) handleStatsMonthly(w http.ResponseWriter, r *http.Request) {
	months, err := s.Store.StatsByMonth(r.Context(), queryInt(r, "year", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"months": months, "total_months": len(months)})
}

func (s *Server) handleStatsHourly(w http.ResponseWriter, r *http.Request) {
	hours, err := s.Store.StatsByHour(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hours": hours, "active_hours": len(hours)})
}

func (s *Server) handleStatsYearly(w http.ResponseWriter, r *http.Request) {
	years, err := s.Store.StatsByYear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"years": years, "total_years": len(years)})
}

func (s *Server) handleStatsSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Store.Summary(r.Context(), s.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"summary": sum})
}

// --- helpers ----------------------------------------------------------------

func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		// An empty body means "all defaults".
		return nil
	}
	return err
}

// clientIP returns the remote host without its port. RealIP has already
// applied any proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func queryIntPtr(r *http.Request, key string) *int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
