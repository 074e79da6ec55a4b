package nodeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	gocache "github.com/patrickmn/go-cache"
	"github.com/ruteri/shardvault/api"
	"github.com/ruteri/shardvault/interfaces"
	"github.com/ruteri/shardvault/nodestore"
	"github.com/ruteri/shardvault/tokens"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// maxBodySize limits request bodies to 4MB.
	maxBodySize = 4 << 20

	schemaCacheTTL = 10 * time.Minute
)

type contextKey struct{}

// Handler serves the storage node API for one node identity.
type Handler struct {
	store    *nodestore.Store
	verifier *tokens.Verifier
	schemas  *gocache.Cache
	log      *slog.Logger
}

// NewHandler creates a node API handler. Every request must carry a bearer
// token accepted by verifier.
func NewHandler(store *nodestore.Store, verifier *tokens.Verifier, log *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		verifier: verifier,
		schemas:  gocache.New(schemaCacheTTL, time.Minute),
		log:      log,
	}
}

// RegisterRoutes mounts the node API on r behind token authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Post(api.SchemasPath, h.HandleCreateSchema)
		r.Post(api.DataCreatePath, h.HandleDataCreate)
		r.Post(api.DataReadPath, h.HandleDataRead)
		r.Post(api.QueriesPath, h.HandleCreateQuery)
		r.Post(api.QueryExecutePath, h.HandleExecuteQuery)
	})
}

// Authenticate rejects requests without a valid bearer token with 401.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := h.verifier.Verify(token)
		if err != nil {
			h.log.Debug("Rejected node token", "err", err, slog.String("path", r.URL.Path))
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims.Issuer)))
	})
}

// IssuerFromContext returns the authenticated token issuer.
func IssuerFromContext(ctx context.Context) string {
	iss, _ := ctx.Value(contextKey{}).(string)
	return iss
}

// HandleCreateSchema registers a collection.
//
// Status codes:
//   - 200 OK: registered, or refused with the reason listed in "errors"
//   - 400 Bad Request: undecodable body
//   - 500 Internal Server Error: storage failure
func (h *Handler) HandleCreateSchema(w http.ResponseWriter, r *http.Request) {
	var schema interfaces.Schema
	if !h.decode(w, r, &schema) {
		return
	}

	if len(schema.Schema) != 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema.Schema)); err != nil {
			writeJSON(w, http.StatusOK, api.StatusResponse{Errors: []string{fmt.Sprintf("invalid json schema: %v", err)}})
			return
		}
	}

	err := h.store.CreateSchema(r.Context(), schema)
	if h.rejected(w, err, nodestore.ErrSchemaExists, nodestore.ErrInvalidID) {
		return
	}

	h.log.Info("Collection created",
		slog.String("schema", schema.ID),
		slog.String("issuer", IssuerFromContext(r.Context())))
	writeJSON(w, http.StatusOK, api.StatusResponse{Data: idData(schema.ID)})
}

// HandleDataCreate validates and stores documents. Per-record failures such
// as schema violations or duplicate ids are reported in data.errors with 200.
func (h *Handler) HandleDataCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Schema string           `json:"schema"`
		Data   []map[string]any `json:"data"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result := api.DataCreateResult{Created: []string{}, Errors: []api.RecordError{}}

	validator, err := h.compiledSchema(r.Context(), req.Schema)
	if errors.Is(err, nodestore.ErrSchemaNotFound) {
		result.Errors = append(result.Errors, api.RecordError{Error: err.Error()})
		writeJSON(w, http.StatusOK, api.DataCreateResponse{Data: result})
		return
	}
	if err != nil {
		h.log.Error("Failed to load schema", "err", err, slog.String("schema", req.Schema))
		http.Error(w, "could not load schema", http.StatusInternalServerError)
		return
	}

	for _, doc := range req.Data {
		id, _ := doc["_id"].(string)

		if err := validate(validator, doc); err != nil {
			result.Errors = append(result.Errors, api.RecordError{ID: id, Error: err.Error()})
			continue
		}

		err := h.store.Insert(r.Context(), req.Schema, doc)
		switch {
		case err == nil:
			result.Created = append(result.Created, id)
		case errors.Is(err, nodestore.ErrRecordExists):
			result.Errors = append(result.Errors, api.RecordError{ID: id, Error: "duplicate key: _id " + id})
		case errors.Is(err, nodestore.ErrInvalidID):
			result.Errors = append(result.Errors, api.RecordError{ID: id, Error: err.Error()})
		default:
			h.log.Error("Failed to store document", "err", err, slog.String("schema", req.Schema), slog.String("id", id))
			http.Error(w, "could not store document", http.StatusInternalServerError)
			return
		}
	}

	h.log.Debug("Data create processed",
		slog.String("schema", req.Schema),
		slog.Int("created", len(result.Created)),
		slog.Int("errors", len(result.Errors)))
	writeJSON(w, http.StatusOK, api.DataCreateResponse{Data: result})
}

// HandleDataRead returns the documents matching a top-level equality filter.
//
// Status codes:
//   - 200 OK: matching documents in "data"
//   - 400 Bad Request: undecodable body
//   - 404 Not Found: unknown collection
//   - 500 Internal Server Error: storage failure
func (h *Handler) HandleDataRead(w http.ResponseWriter, r *http.Request) {
	var req api.DataReadRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.find(w, r, req.Schema, req.Filter)
}

// HandleCreateQuery registers a stored query.
func (h *Handler) HandleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var query interfaces.Query
	if !h.decode(w, r, &query) {
		return
	}

	err := h.store.CreateQuery(r.Context(), query)
	if h.rejected(w, err, nodestore.ErrQueryExists, nodestore.ErrSchemaNotFound, nodestore.ErrInvalidID) {
		return
	}

	writeJSON(w, http.StatusOK, api.StatusResponse{Data: idData(query.ID)})
}

// HandleExecuteQuery runs a stored query. String filter values "$name" are
// replaced by variables["name"]; a missing variable is a 400.
func (h *Handler) HandleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req api.QueryExecuteRequest
	if !h.decode(w, r, &req) {
		return
	}

	query, err := h.store.Query(r.Context(), req.ID)
	if errors.Is(err, nodestore.ErrQueryNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to load query", "err", err, slog.String("query", req.ID))
		http.Error(w, "could not load query", http.StatusInternalServerError)
		return
	}

	filter, err := Substitute(query.Filter, req.Variables)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.find(w, r, query.Schema, filter)
}

// Substitute resolves "$name" placeholders in filter values.
func Substitute(filter map[string]any, variables map[string]any) (map[string]any, error) {
	res := make(map[string]any, len(filter))
	for field, value := range filter {
		name, isVar := value.(string)
		if !isVar || !strings.HasPrefix(name, "$") {
			res[field] = value
			continue
		}

		v, found := variables[strings.TrimPrefix(name, "$")]
		if !found {
			return nil, fmt.Errorf("missing query variable %q", name)
		}
		res[field] = v
	}
	return res, nil
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request, schemaID string, filter map[string]any) {
	docs, err := h.store.Find(r.Context(), schemaID, filter)
	if errors.Is(err, nodestore.ErrSchemaNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to read documents", "err", err, slog.String("schema", schemaID))
		http.Error(w, "could not read documents", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": docs})
}

type cachedSchema struct {
	schema *gojsonschema.Schema
}

// compiledSchema returns the validator for a collection, nil when the
// collection declares no JSON schema.
func (h *Handler) compiledSchema(ctx context.Context, schemaID string) (*gojsonschema.Schema, error) {
	if cached, found := h.schemas.Get(schemaID); found {
		return cached.(cachedSchema).schema, nil
	}

	schema, err := h.store.Schema(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	var compiled cachedSchema
	if len(schema.Schema) != 0 {
		compiled.schema, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema.Schema))
		if err != nil {
			return nil, fmt.Errorf("stored schema %s does not compile: %w", schemaID, err)
		}
	}

	h.schemas.Set(schemaID, compiled, gocache.DefaultExpiration)
	return compiled.schema, nil
}

func validate(schema *gojsonschema.Schema, doc map[string]any) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return fmt.Errorf("schema validation failed: %s", strings.Join(messages, "; "))
	}
	return nil
}

// rejected writes the response for a failed registration and reports whether
// it did. Errors matching one of expected are returned as 200 with "errors".
func (h *Handler) rejected(w http.ResponseWriter, err error, expected ...error) bool {
	if err == nil {
		return false
	}
	for _, target := range expected {
		if errors.Is(err, target) {
			writeJSON(w, http.StatusOK, api.StatusResponse{Errors: []string{err.Error()}})
			return true
		}
	}

	h.log.Error("Registration failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func idData(id string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"_id": id})
	return data
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
