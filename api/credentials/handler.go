package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/shardvault/api"
	"github.com/ruteri/shardvault/interfaces"
)

// CredentialsPath is the gateway collection endpoint.
const CredentialsPath = "/api/v1/credentials"

// maxBodySize limits request bodies to 1MB.
const maxBodySize = 1 << 20

// Store is the subset of storage.ReplicatedStore the gateway needs.
type Store interface {
	PutSecret(ctx context.Context, record interfaces.SecretRecord) bool
	Get(ctx context.Context, ownerFilter string) []interfaces.SecretRecord
}

// Handler exposes a ReplicatedStore over HTTP.
type Handler struct {
	store Store
	log   *slog.Logger
}

func NewHandler(store Store, log *slog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log,
	}
}

// RegisterRoutes configures:
//   - POST /api/v1/credentials - store a credential
//   - GET /api/v1/credentials?owner=<id> - list an owner's credentials
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(CredentialsPath, h.HandlePut)
	r.Get(CredentialsPath, h.HandleList)
}

// HandlePut stores a credential across the cluster. A missing record_id is
// generated.
//
// Status codes:
//   - 201 Created: every node holds its share
//   - 400 Bad Request: invalid body or missing owner_id
//   - 502 Bad Gateway: the write failed; a partial record may remain on some nodes
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	var req api.CredentialRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}
	if req.RecordID == "" {
		req.RecordID = uuid.NewString()
	}

	stored := h.store.PutSecret(r.Context(), interfaces.SecretRecord{
		RecordID:  req.RecordID,
		OwnerID:   req.OwnerID,
		Labels:    req.Labels,
		Plaintext: []byte(req.Plaintext),
	})

	status := http.StatusCreated
	if !stored {
		status = http.StatusBadGateway
		h.log.Warn("Credential not stored", slog.String("record_id", req.RecordID))
	}

	writeJSON(w, status, api.CredentialResponse{RecordID: req.RecordID, Stored: stored})
}

// HandleList returns the complete credentials of one owner, ordered by record id.
// An unreachable cluster yields an empty list.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}

	records := h.store.Get(r.Context(), owner)
	res := make([]api.Credential, 0, len(records))
	for _, rec := range records {
		res = append(res, api.Credential{
			RecordID:  rec.RecordID,
			OwnerID:   rec.OwnerID,
			Labels:    rec.Labels,
			Plaintext: string(rec.Plaintext),
		})
	}

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
