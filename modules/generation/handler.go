package generation

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// UserHeader - 게이트웨이가 인증 후 넘겨주는 사용자 id
const UserHeader = "X-User-Id"

// Handler - 생성 API
type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.Named("handler"),
	}
}

// RegisterRoutes - 라우트 등록 (배치 경로를 먼저 등록)
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/generations").Subrouter()
	api.HandleFunc("/batch/{batchId}", h.GetBatchStatus).Methods(http.MethodGet)
	api.HandleFunc("/batch/{batchId}/cancel", h.CancelBatch).Methods(http.MethodPost)
	api.HandleFunc("", h.CreateBatch).Methods(http.MethodPost)
	api.HandleFunc("", h.List).Methods(http.MethodGet)
	api.HandleFunc("/{id}/status", h.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/{id}/results", h.GetResults).Methods(http.MethodGet)
	api.HandleFunc("/{id}/fix", h.Fix).Methods(http.MethodPost)
	api.HandleFunc("/{id}/regenerate", h.Regenerate).Methods(http.MethodPost)
	api.HandleFunc("/{id}", h.Update).Methods(http.MethodPatch)

	h.log.Info("✅ [Generation] Routes registered: /api/generations")
}

// CreateBatch - POST /api/generations
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, ErrInvalidRequest.withMessage("invalid request body"))
		return
	}

	accepted, err := h.service.CreateBatch(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusAccepted, accepted)
}

// List - GET /api/generations?saved=&favorite=&batchId=&page=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	f := ListFilter{
		Saved:    queryBool(q.Get("saved")),
		Favorite: queryBool(q.Get("favorite")),
		BatchID:  q.Get("batchId"),
		Page:     queryInt(q.Get("page")),
		Limit:    queryInt(q.Get("limit")),
	}

	result, err := h.service.ListVariations(r.Context(), userID, f)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

// GetStatus - GET /api/generations/{id}/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, status)
}

// GetResults - GET /api/generations/{id}/results
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	result, err := h.service.GetResults(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

// Update - PATCH /api/generations/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, ErrInvalidRequest.withMessage("invalid request body"))
		return
	}

	status, err := h.service.UpdateVariation(r.Context(), userID, mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, status)
}

// Fix - POST /api/generations/{id}/fix
func (h *Handler) Fix(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, ErrInvalidRequest.withMessage("invalid request body"))
		return
	}

	accepted, err := h.service.FixErrors(r.Context(), userID, mux.Vars(r)["id"], req.Description)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusAccepted, accepted)
}

// Regenerate - POST /api/generations/{id}/regenerate
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	accepted, err := h.service.RegenerateSingle(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusAccepted, accepted)
}

// GetBatchStatus - GET /api/generations/batch/{batchId}
func (h *Handler) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetBatchStatus(r.Context(), userID, mux.Vars(r)["batchId"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, status)
}

// CancelBatch - POST /api/generations/batch/{batchId}/cancel
func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	batchID := mux.Vars(r)["batchId"]
	n, err := h.service.CancelBatch(r.Context(), userID, batchID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"batchId":        batchID,
		"cancelledCount": n,
	})
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		h.fail(w, ErrUnauthorized)
		return "", false
	}
	return userID, true
}

func (h *Handler) respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	}); err != nil {
		h.log.Warn("⚠️ [Generation] Failed to write response", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	e := asError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      false,
		"errorCode":    e.Code,
		"errorMessage": e.Message,
	})
}

func queryBool(v string) *bool {
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

func queryInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
