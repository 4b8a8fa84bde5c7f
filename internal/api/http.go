// Package api exposes the ledger over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	interfaces "github.com/platewatch/speeding-violation-ledger/internal/interfaces"
	"github.com/platewatch/speeding-violation-ledger/internal/ledger"
	"github.com/platewatch/speeding-violation-ledger/internal/metrics"
	"github.com/platewatch/speeding-violation-ledger/internal/models"
	"github.com/platewatch/speeding-violation-ledger/internal/storage"
)

// maxImageBytes bounds an uploaded capture.
const maxImageBytes = 10 << 20

type Server struct {
	ledger   *ledger.Ledger
	detector interfaces.Detector
	log      *slog.Logger
}

// NewRouter wires all routes onto a fresh gorilla router.
func NewRouter(l *ledger.Ledger, det interfaces.Detector, log *slog.Logger) *mux.Router {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{ledger: l, detector: det, log: log}
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/new_violation", s.newViolation).Methods(http.MethodPost)
	api.HandleFunc("/new_violation_image", s.newViolationImage).Methods(http.MethodPost)
	api.HandleFunc("/pay_fine", s.payFine).Methods(http.MethodPost)
	api.HandleFunc("/get_vehicle", s.getVehicle).Methods(http.MethodGet)
	api.HandleFunc("/recent_violations", s.recentViolations).Methods(http.MethodGet)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		s.log.Warn("store ping failed", "err", err)
		writeJSON(w, http.StatusOK, map[string]any{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) newViolation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plate  string          `json:"plate"`
		Number string          `json:"number"` // legacy field name, kept for old clients
		Amount decimal.Decimal `json:"amount"`
		// Timestamp, when present, is the observation time (RFC3339);
		// defaults to the server clock.
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	plate := req.Plate
	if plate == "" {
		plate = req.Number
	}
	now := time.Now().UTC()
	if req.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timestamp; use RFC3339")
			return
		}
		now = t.UTC()
	}

	res, err := s.ledger.RecordViolation(r.Context(), plate, now, ledger.ViolationOptions{Amount: req.Amount})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record violation")
		return
	}
	s.writeViolation(w, res)
}

func (s *Server) newViolationImage(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.ledger.RecordViolationImage(r.Context(), s.detector, image, time.Now().UTC(), decimal.Zero)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record violation")
		return
	}
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_plate"})
		return
	}
	s.writeViolation(w, *res)
}

func (s *Server) writeViolation(w http.ResponseWriter, res ledger.ViolationResult) {
	switch res.Status {
	case ledger.ViolationAdded:
		writeJSON(w, http.StatusCreated, res)
	case ledger.ViolationWait:
		w.Header().Set("Retry-After", strconv.FormatInt(res.WaitSeconds, 10))
		writeJSON(w, http.StatusTooManyRequests, res)
	case ledger.ViolationInvalid:
		writeJSON(w, http.StatusBadRequest, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) payFine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plate  string          `json:"plate"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	res, err := s.ledger.RecordPayment(r.Context(), req.Plate, req.Amount, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record payment")
		return
	}
	switch res.Status {
	case ledger.PaymentInvalid:
		writeJSON(w, http.StatusBadRequest, res)
	case ledger.PaymentNoRecord:
		writeJSON(w, http.StatusNotFound, res)
	case ledger.PaymentExcess:
		writeJSON(w, http.StatusConflict, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	plate := q.Get("plate")
	if strings.TrimSpace(plate) == "" {
		writeError(w, http.StatusBadRequest, "plate is required")
		return
	}
	var since *time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since; use RFC3339 or unix seconds")
			return
		}
		since = &t
	}
	entry, err := s.ledger.GetVehicle(r.Context(), plate, since)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		if errors.Is(err, models.ErrEmptyPlate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load vehicle")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) recentViolations(w http.ResponseWriter, r *http.Request) {
	limit := atoi(r.URL.Query().Get("limit"))
	summaries, err := s.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list violations")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func readImage(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart body")
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("multipart field %q is required", "image")
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxImageBytes))
	}
	image, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body")
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("image body is empty")
	}
	return image, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time: %s", s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func atoi(s string) int { i, _ := strconv.Atoi(s); return i }
