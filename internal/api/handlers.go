// Package api is the HTTP transport for the submission pipeline: route
// wiring, request/response translation, and error-to-status mapping.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/klpod221/kode-judge/internal/catalog"
	"github.com/klpod221/kode-judge/internal/domain"
	"github.com/klpod221/kode-judge/internal/rendezvous"
	"github.com/klpod221/kode-judge/internal/service"
	"github.com/klpod221/kode-judge/internal/store"
)

// Handler holds the dependencies HTTP handlers need.
type Handler struct {
	Service   *service.Service
	Catalog   *catalog.Catalog
	Health    *HealthChecker
	Logger    *logrus.Logger
	queueName string
}

// NewHandler builds a Handler. queueName is reported in /health/workers.
func NewHandler(svc *service.Service, cat *catalog.Catalog, health *HealthChecker, logger *logrus.Logger, queueName string) *Handler {
	return &Handler{Service: svc, Catalog: cat, Health: health, Logger: logger, queueName: queueName}
}

// errorResponse is the JSON body returned for any non-2xx response.
type errorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Message: message, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorStatus maps a service/store sentinel error to an HTTP status
// and message, dispatching over the small set of sentinel errors the
// service and store layers return.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "submission not found"
	case errors.Is(err, rendezvous.ErrTimeout):
		return http.StatusRequestTimeout, "wait timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// --- Languages ---------------------------------------------------------

func (h *Handler) ListLanguages(w http.ResponseWriter, r *http.Request) {
	languages := h.Catalog.List()
	out := make([]languageResponse, len(languages))
	for i, l := range languages {
		out[i] = newLanguageResponse(l)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetLanguage(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid language id")
		return
	}
	lang, err := h.Catalog.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "language not found")
		return
	}
	writeJSON(w, http.StatusOK, newLanguageResponse(lang))
}

// --- Submissions --------------------------------------------------------

func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	base64Encoded, err := mustBase64(r.URL.Query().Get("base64_encoded"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wait := r.URL.Query().Get("wait") == "true" || r.URL.Query().Get("wait") == "1"

	var req submissionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request")
		return
	}

	sub, err := req.toDomain(base64Encoded)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, terminal, err := h.Service.CreateSubmission(r.Context(), sub, wait)
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}

	if terminal == nil {
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, newSubmissionResponse(*terminal, base64Encoded))
}

func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	base64Encoded, err := mustBase64(r.URL.Query().Get("base64_encoded"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var reqs []submissionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request")
		return
	}

	payloads := make([]domain.Submission, len(reqs))
	for i, req := range reqs {
		sub, err := req.toDomain(base64Encoded)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		payloads[i] = sub
	}

	ids, err := h.Service.CreateBatch(r.Context(), payloads)
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}

	out := make([]map[string]string, len(ids))
	for i, id := range ids {
		out[i] = map[string]string{"id": id}
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	base64Encoded, err := mustBase64(r.URL.Query().Get("base64_encoded"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := parseIntOrDefault(r.URL.Query().Get("page"), 1)
	pageSize := parseIntOrDefault(r.URL.Query().Get("page_size"), 20)

	result, err := h.Service.ListSubmissions(r.Context(), page, pageSize)
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}

	items := make([]submissionResponse, len(result.Items))
	for i, sub := range result.Items {
		items[i] = newSubmissionResponse(sub, base64Encoded)
	}
	writeJSON(w, http.StatusOK, struct {
		Items       []submissionResponse `json:"items"`
		TotalItems  int                  `json:"total_items"`
		TotalPages  int                  `json:"total_pages"`
		CurrentPage int                  `json:"current_page"`
		PageSize    int                  `json:"page_size"`
	}{items, result.TotalItems, result.TotalPages, result.CurrentPage, result.PageSize})
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	base64Encoded, err := mustBase64(r.URL.Query().Get("base64_encoded"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	idsParam := r.URL.Query().Get("ids")
	if idsParam == "" {
		writeError(w, http.StatusBadRequest, "missing ids parameter")
		return
	}
	ids := strings.Split(idsParam, ",")
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed id %q", id))
			return
		}
	}

	subs, err := h.Service.GetBatch(r.Context(), ids)
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}

	out := make([]submissionResponse, len(subs))
	for i, sub := range subs {
		out[i] = newSubmissionResponse(sub, base64Encoded)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	base64Encoded, err := mustBase64(r.URL.Query().Get("base64_encoded"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")

	sub, err := h.Service.GetSubmission(r.Context(), id)
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionResponse(sub, base64Encoded))
}

func (h *Handler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.DeleteSubmission(r.Context(), id); err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseIntOrDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

