// ABOUTME: HTTP API handlers for reading the upload ledger
// ABOUTME: Serves GET /api/uploads and GET /api/uploads/{id} as JSON

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/photoid-gateway/internal/conversation"
	"github.com/2389/photoid-gateway/internal/store"
)

// UploadResponse is the JSON form of one ledger row.
type UploadResponse struct {
	ID              string `json:"id"`
	ConversationKey string `json:"conversation_key"`
	Identifier      string `json:"identifier"`
	ImageRef        string `json:"image_ref"`
	Filename        string `json:"filename"`
	Location        string `json:"location"`
	Backend         string `json:"backend"`
	SizeBytes       int64  `json:"size_bytes"`
	CreatedAt       string `json:"created_at"`
}

// ListUploadsResponse is the JSON response for GET /api/uploads.
type ListUploadsResponse struct {
	Uploads []UploadResponse `json:"uploads"`
	Total   int              `json:"total"`
}

func toUploadResponse(u *store.Upload) UploadResponse {
	return UploadResponse{
		ID:              u.ID,
		ConversationKey: u.ConversationKey,
		Identifier:      u.Identifier,
		ImageRef:        u.ImageRef,
		Filename:        u.Filename,
		Location:        u.Location,
		Backend:         u.Backend,
		SizeBytes:       u.SizeBytes,
		CreatedAt:       u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleListUploads handles GET /api/uploads.
// Supports ?limit=N, ?identifier=NNNNN and ?conversation=KEY.
func (g *Gateway) handleListUploads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.UploadFilter{
		Identifier:      q.Get("identifier"),
		ConversationKey: q.Get("conversation"),
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	if filter.Identifier != "" && !conversation.IsIdentifier(filter.Identifier) {
		g.sendJSONError(w, http.StatusBadRequest, "identifier must be exactly 5 digits")
		return
	}

	uploads, err := g.store.ListUploads(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing uploads", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}

	total, err := g.store.CountUploads(r.Context(), filter)
	if err != nil {
		g.logger.Error("counting uploads", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to count uploads")
		return
	}

	response := ListUploadsResponse{
		Uploads: make([]UploadResponse, 0, len(uploads)),
		Total:   total,
	}
	for _, u := range uploads {
		response.Uploads = append(response.Uploads, toUploadResponse(u))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// handleGetUpload handles GET /api/uploads/{id}.
func (g *Gateway) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "upload id is required")
		return
	}

	upload, err := g.store.GetUpload(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "upload not found")
		return
	}
	if err != nil {
		g.logger.Error("getting upload", "upload_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to get upload")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toUploadResponse(upload))
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
