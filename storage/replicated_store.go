package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/shardvault/interfaces"
	"github.com/ruteri/shardvault/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultNodeTimeout bounds a node call when the cluster does not set one.
const DefaultNodeTimeout = 10 * time.Second

// ReplicatedStore writes one share of every secret to each node of a cluster
// and reconstructs secrets only from complete share sets.
//
// The exported operations report success as a bool or an empty result; the
// typed cause (ErrConfig, ErrAuth, ErrPartialWrite, a tagged NodeError) is
// logged and counted but not returned.
type ReplicatedStore struct {
	cluster interfaces.ClusterConfig
	issuer  interfaces.TokenIssuer
	cipher  interfaces.ShareCipher
	client  interfaces.NodeClient
	log     *slog.Logger
	metrics *metrics.Recorder
}

// Option customizes a ReplicatedStore.
type Option func(*ReplicatedStore)

// WithMetrics records store operations on recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(s *ReplicatedStore) {
		s.metrics = recorder
	}
}

// NewReplicatedStore validates the cluster and binds the collaborators.
// The cipher must produce exactly one share per node.
func NewReplicatedStore(cluster interfaces.ClusterConfig, issuer interfaces.TokenIssuer, cipher interfaces.ShareCipher, client interfaces.NodeClient, log *slog.Logger, opts ...Option) (*ReplicatedStore, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	if issuer == nil || cipher == nil || client == nil {
		return nil, fmt.Errorf("%w: issuer, cipher and node client are required", interfaces.ErrConfig)
	}
	if cipher.NodeCount() != cluster.Size() {
		return nil, fmt.Errorf("%w: cipher splits into %d shares for %d nodes", interfaces.ErrConfig, cipher.NodeCount(), cluster.Size())
	}
	if cluster.NodeTimeout <= 0 {
		cluster.NodeTimeout = DefaultNodeTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	cluster.Nodes = append([]interfaces.NodeDescriptor(nil), cluster.Nodes...)

	s := &ReplicatedStore{
		cluster: cluster,
		issuer:  issuer,
		cipher:  cipher,
		client:  client,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SchemaID returns the collection records are written to.
func (s *ReplicatedStore) SchemaID() string {
	return s.cluster.SchemaID
}

// Nodes returns the cluster nodes in write order.
func (s *ReplicatedStore) Nodes() []interfaces.NodeDescriptor {
	return append([]interfaces.NodeDescriptor(nil), s.cluster.Nodes...)
}

// ForSchema returns a store bound to another collection, typically one just
// created with DefineCollection. The receiver is not modified.
func (s *ReplicatedStore) ForSchema(schemaID string) *ReplicatedStore {
	clone := *s
	clone.cluster.SchemaID = schemaID
	return &clone
}

// Put stores plaintext for ownerID under recordID. See PutSecret.
func (s *ReplicatedStore) Put(ctx context.Context, ownerID, recordID string, plaintext []byte) bool {
	return s.PutSecret(ctx, interfaces.SecretRecord{RecordID: recordID, OwnerID: ownerID, Plaintext: plaintext})
}

// PutNew stores plaintext under a freshly generated record id.
func (s *ReplicatedStore) PutNew(ctx context.Context, ownerID string, plaintext []byte) (string, bool) {
	recordID := uuid.NewString()
	return recordID, s.Put(ctx, ownerID, recordID, plaintext)
}

// PutSecret splits the plaintext into one share per node and writes the
// shares in node order, stopping at the first node that fails. Shares already
// written are left in place, so a false result may leave a partial record that
// Get will never return.
func (s *ReplicatedStore) PutSecret(ctx context.Context, record interfaces.SecretRecord) bool {
	start := time.Now()
	err := s.put(ctx, record)
	s.metrics.StoreOperation("put", err == nil, time.Since(start))

	if err != nil {
		s.log.Error("Failed to store record",
			slog.String("record_id", record.RecordID),
			slog.String("owner_id", record.OwnerID),
			slog.String("reason", failureReason(err)),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	s.log.Info("Stored record",
		slog.String("record_id", record.RecordID),
		slog.String("owner_id", record.OwnerID),
		slog.Int("nodes", s.cluster.Size()),
		slog.Duration("duration", time.Since(start)))
	return true
}

func (s *ReplicatedStore) put(ctx context.Context, record interfaces.SecretRecord) error {
	if s.cluster.SchemaID == "" {
		return fmt.Errorf("%w: no schema id configured", interfaces.ErrConfig)
	}
	if record.RecordID == "" {
		return fmt.Errorf("%w: record id is empty", interfaces.ErrConfig)
	}

	tokens, err := s.issuer.IssueSet(s.cluster.Audiences())
	if err != nil {
		return fmt.Errorf("could not issue tokens: %w", err)
	}

	shares, err := s.cipher.Split(record.Plaintext, s.cluster.Size())
	if err != nil {
		return fmt.Errorf("could not split secret: %w", err)
	}

	for i, node := range s.cluster.Nodes {
		stored := interfaces.StoredRecord{
			ID:      record.RecordID,
			OwnerID: record.OwnerID,
			Labels:  record.Labels,
			Share:   shares[i],
		}

		err := s.withToken(ctx, tokens, node, func(ctx context.Context, token string) error {
			return s.client.Write(ctx, node, token, s.cluster.SchemaID, []interfaces.StoredRecord{stored})
		})
		if err == nil {
			continue
		}

		if i == 0 {
			return err
		}
		return fmt.Errorf("%w: %d of %d shares written, stopped at %s: %w", interfaces.ErrPartialWrite, i, s.cluster.Size(), node.Name, err)
	}

	return nil
}

// Get reads every node, reconstructs the records whose shares are present on
// all nodes and returns those owned by ownerFilter, compared case-insensitively.
// An empty filter returns every complete record. Results are ordered by record id.
func (s *ReplicatedStore) Get(ctx context.Context, ownerFilter string) []interfaces.SecretRecord {
	start := time.Now()
	records, err := s.get(ctx, ownerFilter)
	s.metrics.StoreOperation("get", err == nil, time.Since(start))

	if err != nil {
		s.log.Error("Failed to read records",
			slog.String("owner_filter", ownerFilter),
			slog.String("reason", failureReason(err)),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return []interfaces.SecretRecord{}
	}

	s.log.Debug("Read records",
		slog.String("owner_filter", ownerFilter),
		slog.Int("records", len(records)),
		slog.Duration("duration", time.Since(start)))
	return records
}

// shareGroup collects the per-node copies of one record.
type shareGroup struct {
	ownerID    string
	labels     map[string]string
	shares     map[int]string
	consistent bool
}

func (s *ReplicatedStore) get(ctx context.Context, ownerFilter string) ([]interfaces.SecretRecord, error) {
	if s.cluster.SchemaID == "" {
		return nil, fmt.Errorf("%w: no schema id configured", interfaces.ErrConfig)
	}

	tokens, err := s.issuer.IssueSet(s.cluster.Audiences())
	if err != nil {
		return nil, fmt.Errorf("could not issue tokens: %w", err)
	}

	perNode := make([][]interfaces.StoredRecord, s.cluster.Size())
	errs := make([]error, s.cluster.Size())

	var g errgroup.Group
	for i, node := range s.cluster.Nodes {
		i, node := i, node // per-iteration copies for go < 1.22
		g.Go(func() error {
			errs[i] = s.withToken(ctx, tokens, node, func(ctx context.Context, token string) error {
				records, err := s.client.Read(ctx, node, token, s.cluster.SchemaID, nil)
				perNode[i] = records
				return err
			})
			return nil
		})
	}
	_ = g.Wait()

	// A record needs a share from every node, so one failed read hides everything.
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	groups := make(map[string]*shareGroup)
	for i, records := range perNode {
		for _, r := range records {
			if err := r.Validate(); err != nil {
				s.log.Warn("Ignoring malformed record",
					slog.String("node", s.cluster.Nodes[i].Name),
					"err", err)
				continue
			}

			group, found := groups[r.ID]
			if !found {
				group = &shareGroup{ownerID: r.OwnerID, labels: r.Labels, shares: make(map[int]string), consistent: true}
				groups[r.ID] = group
			}
			if _, dup := group.shares[i]; dup {
				continue
			}
			if group.ownerID != r.OwnerID || !sameLabels(group.labels, r.Labels) {
				group.consistent = false
			}
			group.shares[i] = r.Share
		}
	}

	var incomplete, inconsistent, failed int
	results := make([]interfaces.SecretRecord, 0, len(groups))
	for id, group := range groups {
		if len(group.shares) != s.cluster.Size() {
			incomplete++
			continue
		}
		if !group.consistent {
			inconsistent++
			s.log.Warn("Dropping record with diverging public fields", slog.String("record_id", id))
			continue
		}

		shares := make([]string, 0, len(group.shares))
		for i := range s.cluster.Nodes {
			shares = append(shares, group.shares[i])
		}

		plaintext, err := s.cipher.Reconstruct(shares)
		if err != nil {
			failed++
			s.log.Warn("Could not reconstruct record", slog.String("record_id", id), "err", err)
			continue
		}

		if ownerFilter != "" && !strings.EqualFold(group.ownerID, ownerFilter) {
			continue
		}

		results = append(results, interfaces.SecretRecord{
			RecordID:  id,
			OwnerID:   group.ownerID,
			Labels:    group.labels,
			Plaintext: plaintext,
		})
	}

	s.metrics.Records("reconstructed", len(results))
	s.metrics.Records("incomplete", incomplete)
	s.metrics.Records("inconsistent", inconsistent)
	s.metrics.Records("failed", failed)

	if incomplete != 0 {
		s.log.Debug("Skipped incomplete records", slog.Int("count", incomplete))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].RecordID < results[j].RecordID })
	return results, nil
}

// DefineCollection registers a new collection with a generated id on every
// node, in node order, stopping at the first failure. jsonSchema may be nil.
func (s *ReplicatedStore) DefineCollection(ctx context.Context, name string, jsonSchema map[string]any) (string, bool) {
	start := time.Now()
	schema := interfaces.Schema{
		ID:     uuid.NewString(),
		Name:   name,
		Keys:   []string{"_id"},
		Schema: jsonSchema,
	}

	err := s.eachNode(ctx, func(ctx context.Context, node interfaces.NodeDescriptor, token string) error {
		return s.client.CreateSchema(ctx, node, token, schema)
	})
	s.metrics.StoreOperation("define_collection", err == nil, time.Since(start))

	if err != nil {
		s.log.Error("Failed to define collection",
			slog.String("name", name),
			slog.String("schema", schema.ID),
			slog.String("reason", failureReason(err)),
			"err", err)
		return "", false
	}

	s.log.Info("Defined collection", slog.String("name", name), slog.String("schema", schema.ID))
	return schema.ID, true
}

// DefineQuery registers a stored query on every node, stopping at the first
// failure. A query without a schema targets the store's collection.
func (s *ReplicatedStore) DefineQuery(ctx context.Context, query interfaces.Query) bool {
	start := time.Now()
	if query.Schema == "" {
		query.Schema = s.cluster.SchemaID
	}

	var err error
	if query.ID == "" || query.Schema == "" {
		err = fmt.Errorf("%w: query id and schema are required", interfaces.ErrConfig)
	} else {
		err = s.eachNode(ctx, func(ctx context.Context, node interfaces.NodeDescriptor, token string) error {
			return s.client.CreateQuery(ctx, node, token, query)
		})
	}
	s.metrics.StoreOperation("define_query", err == nil, time.Since(start))

	if err != nil {
		s.log.Error("Failed to define query",
			slog.String("query", query.ID),
			slog.String("reason", failureReason(err)),
			"err", err)
		return false
	}
	return true
}

// ExecuteQuery runs a stored query on every node in parallel and returns the
// documents keyed by node name. Nodes that fail are omitted.
func (s *ReplicatedStore) ExecuteQuery(ctx context.Context, queryID string, variables map[string]any) map[string][]map[string]any {
	start := time.Now()
	results := make(map[string][]map[string]any, s.cluster.Size())

	tokens, err := s.issuer.IssueSet(s.cluster.Audiences())
	if err != nil {
		s.metrics.StoreOperation("execute_query", false, time.Since(start))
		s.log.Error("Failed to execute query", slog.String("query", queryID), "err", err)
		return results
	}

	perNode := make([][]map[string]any, s.cluster.Size())
	errs := make([]error, s.cluster.Size())

	var g errgroup.Group
	for i, node := range s.cluster.Nodes {
		i, node := i, node // per-iteration copies for go < 1.22
		g.Go(func() error {
			errs[i] = s.withToken(ctx, tokens, node, func(ctx context.Context, token string) error {
				docs, err := s.client.ExecuteQuery(ctx, node, token, queryID, variables)
				perNode[i] = docs
				return err
			})
			return nil
		})
	}
	_ = g.Wait()

	for i, node := range s.cluster.Nodes {
		if errs[i] != nil {
			s.log.Warn("Query failed on node",
				slog.String("query", queryID),
				slog.String("node", node.Name),
				"err", errs[i])
			continue
		}
		results[node.Name] = perNode[i]
	}

	s.metrics.StoreOperation("execute_query", len(results) == s.cluster.Size(), time.Since(start))
	return results
}

// eachNode issues a fresh token set and calls fn for every node in order,
// stopping at the first error.
func (s *ReplicatedStore) eachNode(ctx context.Context, fn func(context.Context, interfaces.NodeDescriptor, string) error) error {
	tokens, err := s.issuer.IssueSet(s.cluster.Audiences())
	if err != nil {
		return fmt.Errorf("could not issue tokens: %w", err)
	}

	for i, node := range s.cluster.Nodes {
		err := s.withToken(ctx, tokens, node, func(ctx context.Context, token string) error {
			return fn(ctx, node, token)
		})
		if err != nil {
			if i == 0 {
				return err
			}
			return fmt.Errorf("%w: stopped at %s after %d of %d nodes: %w", interfaces.ErrPartialWrite, node.Name, i, s.cluster.Size(), err)
		}
	}
	return nil
}

// withToken runs fn with the node's token from the batch and a per-call timeout.
func (s *ReplicatedStore) withToken(ctx context.Context, tokens interfaces.TokenSet, node interfaces.NodeDescriptor, fn func(context.Context, string) error) error {
	token, found := tokens.For(node.Identity)
	if !found {
		return fmt.Errorf("%w: no token for node %s", interfaces.ErrAuth, node.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cluster.NodeTimeout)
	defer cancel()

	return fn(ctx, token.Token)
}

// failureReason names the error taxonomy entry for logs.
func failureReason(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrConfig):
		return "config"
	case errors.Is(err, interfaces.ErrPartialWrite):
		return "partial_write"
	case errors.Is(err, interfaces.ErrAuth):
		return "auth"
	case errors.Is(err, interfaces.ErrReconstruction):
		return "reconstruction"
	case errors.Is(err, interfaces.ErrNodeUnavailable):
		return "node_unavailable"
	default:
		return "unknown"
	}
}

func sameLabels(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, found := b[k]; !found || w != v {
			return false
		}
	}
	return true
}
