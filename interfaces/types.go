package interfaces

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NodeDescriptor identifies one remote storage node.
type NodeDescriptor struct {
	// Name is a short operator-facing label, e.g. "node_a".
	Name string `yaml:"name" json:"name"`
	// BaseURL is the node API root, without the /api/v1 suffix.
	BaseURL string `yaml:"url" json:"url"`
	// Identity is the node's DID and the audience of its tokens.
	Identity string `yaml:"did" json:"did"`
}

// Validate checks that the descriptor is usable for requests.
func (n NodeDescriptor) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("%w: node name is empty", ErrConfig)
	}
	if n.Identity == "" {
		return fmt.Errorf("%w: node %s has no identity", ErrConfig, n.Name)
	}
	u, err := url.Parse(n.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: node %s url: %v", ErrConfig, n.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: node %s url must be http(s), got %q", ErrConfig, n.Name, n.BaseURL)
	}
	return nil
}

// Endpoint joins the node base URL with an API path.
func (n NodeDescriptor) Endpoint(path string) string {
	return strings.TrimSuffix(n.BaseURL, "/") + path
}

// ClusterConfig is the read-mostly description of a node cluster.
type ClusterConfig struct {
	// OrgIdentity is the issuer of every node token.
	OrgIdentity string
	// SchemaID is the collection every node stores records under.
	SchemaID string
	// TokenTTL bounds the lifetime of tokens minted per batch.
	TokenTTL time.Duration
	// NodeTimeout bounds every single node round trip.
	NodeTimeout time.Duration
	// Nodes is ordered; writes are attempted in this order.
	Nodes []NodeDescriptor
}

// Size returns the number of nodes, which is also the share count N.
func (c *ClusterConfig) Size() int {
	return len(c.Nodes)
}

// Audiences returns node identities in cluster order.
func (c *ClusterConfig) Audiences() []string {
	res := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		res = append(res, n.Identity)
	}
	return res
}

// Validate checks cluster-wide invariants.
// A schema id is not required here since collections may be defined later.
func (c *ClusterConfig) Validate() error {
	if c.OrgIdentity == "" {
		return fmt.Errorf("%w: organization identity is empty", ErrConfig)
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("%w: cluster has no nodes", ErrConfig)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", ErrConfig)
	}

	names := make(map[string]struct{}, len(c.Nodes))
	identities := make(map[string]struct{}, len(c.Nodes))
	for _, n := range c.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		if _, found := names[n.Name]; found {
			return fmt.Errorf("%w: duplicate node name %s", ErrConfig, n.Name)
		}
		if _, found := identities[n.Identity]; found {
			return fmt.Errorf("%w: duplicate node identity %s", ErrConfig, n.Identity)
		}
		names[n.Name] = struct{}{}
		identities[n.Identity] = struct{}{}
	}
	return nil
}

// NodeToken is a bearer token bound to one node identity.
type NodeToken struct {
	Token  string
	Expiry time.Time
}

// Expired reports whether the token is past its expiry at the given time.
func (t NodeToken) Expired(now time.Time) bool {
	return !now.Before(t.Expiry)
}

// TokenSet is an immutable per-batch snapshot of node tokens keyed by node identity.
type TokenSet struct {
	tokens map[string]NodeToken
}

// NewTokenSet copies the given tokens into a new snapshot.
func NewTokenSet(tokens map[string]NodeToken) TokenSet {
	copied := make(map[string]NodeToken, len(tokens))
	for aud, t := range tokens {
		copied[aud] = t
	}
	return TokenSet{tokens: copied}
}

// For returns the token for a node identity.
func (s TokenSet) For(identity string) (NodeToken, bool) {
	t, ok := s.tokens[identity]
	return t, ok
}

// Len returns the number of tokens in the set.
func (s TokenSet) Len() int {
	return len(s.tokens)
}

// SecretRecord is a logical record as seen by callers of the store.
type SecretRecord struct {
	RecordID  string            `json:"record_id"`
	OwnerID   string            `json:"owner_id"`
	Labels    map[string]string `json:"labels,omitempty"`
	Plaintext []byte            `json:"plaintext"`
}

// StoredRecord is the per-node form of a SecretRecord carrying a single share.
type StoredRecord struct {
	ID      string            `json:"_id"`
	OwnerID string            `json:"owner_id"`
	Labels  map[string]string `json:"labels,omitempty"`
	Share   string            `json:"share"`
}

// Validate checks the fields every node record needs.
func (r StoredRecord) Validate() error {
	if r.ID == "" {
		return errors.New("record id is empty")
	}
	if r.Share == "" {
		return errors.New("record share is empty")
	}
	return nil
}

// Schema is a collection definition registered on every node.
type Schema struct {
	ID     string         `json:"_id"`
	Name   string         `json:"name"`
	Keys   []string       `json:"keys"`
	Schema map[string]any `json:"schema"`
}

// Query is a stored, schema-scoped read. String filter values of the form
// "$name" are substituted from the variables supplied at execution time.
type Query struct {
	ID     string         `json:"_id"`
	Name   string         `json:"name"`
	Schema string         `json:"schema"`
	Filter map[string]any `json:"filter"`
}
