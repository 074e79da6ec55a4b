package api

import (
	"encoding/json"

	"github.com/ruteri/shardvault/interfaces"
)

// Node API paths.
const (
	SchemasPath      = "/api/v1/schemas"
	DataCreatePath   = "/api/v1/data/create"
	DataReadPath     = "/api/v1/data/read"
	QueriesPath      = "/api/v1/queries"
	QueryExecutePath = "/api/v1/queries/execute"
)

// DataCreateRequest is the body of POST /api/v1/data/create.
type DataCreateRequest struct {
	Schema string                    `json:"schema"`
	Data   []interfaces.StoredRecord `json:"data"`
}

// DataCreateResult lists created ids and per-record errors.
// A 200 response with a non-empty Errors list is a failed write.
type DataCreateResult struct {
	Created []string      `json:"created"`
	Errors  []RecordError `json:"errors"`
}

// DataCreateResponse wraps DataCreateResult.
type DataCreateResponse struct {
	Data DataCreateResult `json:"data"`
}

// RecordError describes why a single record was not created.
type RecordError struct {
	ID    string `json:"_id,omitempty"`
	Error string `json:"error"`
}

// DataReadRequest is the body of POST /api/v1/data/read.
type DataReadRequest struct {
	Schema string         `json:"schema"`
	Filter map[string]any `json:"filter"`
}

// DataReadResponse carries matching records.
type DataReadResponse struct {
	Data []interfaces.StoredRecord `json:"data"`
}

// QueryExecuteRequest is the body of POST /api/v1/queries/execute.
type QueryExecuteRequest struct {
	ID        string         `json:"id"`
	Variables map[string]any `json:"variables"`
}

// QueryExecuteResponse carries raw documents returned by a query.
type QueryExecuteResponse struct {
	Data []map[string]any `json:"data"`
}

// StatusResponse is returned by schema and query registration.
// Registration succeeds only with a 200 status and an empty Errors list.
type StatusResponse struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []string        `json:"errors"`
}

// CredentialRequest is the body of POST /api/v1/credentials on the gateway.
type CredentialRequest struct {
	OwnerID   string            `json:"owner_id"`
	RecordID  string            `json:"record_id,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Plaintext string            `json:"plaintext"`
}

// CredentialResponse reports the outcome of a gateway write.
type CredentialResponse struct {
	RecordID string `json:"record_id"`
	Stored   bool   `json:"stored"`
}

// Credential is one reconstructed record returned by the gateway.
type Credential struct {
	RecordID  string            `json:"record_id"`
	OwnerID   string            `json:"owner_id"`
	Labels    map[string]string `json:"labels,omitempty"`
	Plaintext string            `json:"plaintext"`
}
