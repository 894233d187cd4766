package websocket

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"LabelPrinter/app/models"

	"go.uber.org/zap"
)

// PrintOrchestrator is the print workflow the server exposes.
// This avoids importing the services package directly.
type PrintOrchestrator interface {
	Submit(ctx context.Context, req models.PrintRequest) (models.PrintRun, error)
	ConfirmDuplicate(ctx context.Context, runID string, proceed bool) (models.PrintRun, error)
	Run(runID string) (models.PrintRun, error)
	QueryHistory() []models.HistoryEntry
	QueryDuplicates() map[string]int
	HistoryView() []models.HistoryRow
	Preview(orderID, customer string, boxCount int) ([]models.CopyPreview, error)
}

// RESTHandlers provides HTTP REST endpoints for UI clients
type RESTHandlers struct {
	printer PrintOrchestrator
	logger  *zap.Logger
}

// NewRESTHandlers creates a new REST handlers instance
func NewRESTHandlers(printer PrintOrchestrator, logger *zap.Logger) *RESTHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTHandlers{printer: printer, logger: logger}
}

// RunResponse is the body returned for submit, confirm and status calls
type RunResponse struct {
	Run   models.PrintRun `json:"run"`
	Error string          `json:"error,omitempty"`
}

// NewRunResponse pairs a run snapshot with the error that ended it
func NewRunResponse(run models.PrintRun, err error) RunResponse {
	resp := RunResponse{Run: run}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// ConfirmRequest is the body of POST /api/print/{id}/confirm
type ConfirmRequest struct {
	Proceed bool `json:"proceed"`
}

// PreviewRequest is the body of POST /api/preview
type PreviewRequest struct {
	OrderID  string `json:"order_id"`
	Customer string `json:"customer"`
	BoxCount int    `json:"box_count"`
}

// HandleSubmit handles POST /api/print
func (h *RESTHandlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.PrintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	run, err := h.printer.Submit(r.Context(), req)
	h.writeRun(w, run, err)
}

// HandleConfirm handles POST /api/print/{id}/confirm
func (h *RESTHandlers) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	run, err := h.printer.ConfirmDuplicate(r.Context(), r.PathValue("id"), req.Proceed)
	h.writeRun(w, run, err)
}

// HandleGetRun handles GET /api/print/{id}
func (h *RESTHandlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.printer.Run(r.PathValue("id"))
	h.writeRun(w, run, err)
}

// HandleHistory handles GET /api/history. ?view=rows returns the
// newest-first listing with duplicate flags.
func (h *RESTHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("view") == "rows" {
		writeJSON(w, http.StatusOK, h.printer.HistoryView())
		return
	}
	writeJSON(w, http.StatusOK, h.printer.QueryHistory())
}

// HandleDuplicates handles GET /api/duplicates
func (h *RESTHandlers) HandleDuplicates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.printer.QueryDuplicates())
}

// HandlePreview handles POST /api/preview
func (h *RESTHandlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	copies, err := h.printer.Preview(req.OrderID, req.Customer, req.BoxCount)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, copies)
}

func (h *RESTHandlers) writeRun(w http.ResponseWriter, run models.PrintRun, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("print run failed",
				zap.String("run_id", run.ID),
				zap.String("order_id", run.OrderID),
				zap.Error(err))
		}
		if run.ID == "" {
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, status, NewRunResponse(run, err))
		return
	}

	status := http.StatusOK
	if run.State == models.RunAwaitingConfirmation {
		status = http.StatusAccepted
	}
	writeJSON(w, status, NewRunResponse(run, nil))
}

// statusFor maps workflow errors to HTTP status codes
func statusFor(err error) int {
	var validation *models.ValidationError
	var transport *models.TransportError
	var render *models.RenderError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnknownTransport):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotAwaitingConfirmation):
		return http.StatusConflict
	case errors.As(err, &transport):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &render):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// requireAPIKey rejects requests without the configured key. The key is
// read from the Authorization header or, for browsers opening /ws, the
// token query parameter.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if key == "" || key == r.Header.Get("Authorization") {
			key = r.URL.Query().Get("token")
		}
		if !s.checkAPIKey(key) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkAPIKey runs the bcrypt compare once per accepted key; later requests
// with the same key hit knownKeys. Rejected keys are never cached.
func (s *Server) checkAPIKey(key string) bool {
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	if _, ok := s.knownKeys.Load(sum); ok {
		return true
	}
	if err := s.verifyKey(s.apiKeyHash, key); err != nil {
		return false
	}
	s.knownKeys.Store(sum, struct{}{})
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
