package storage

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/shardvault/api/nodeapi"
	"github.com/ruteri/shardvault/api/nodeclient"
	"github.com/ruteri/shardvault/cryptoutils"
	"github.com/ruteri/shardvault/interfaces"
	"github.com/ruteri/shardvault/kms"
	"github.com/ruteri/shardvault/nodestore"
	"github.com/ruteri/shardvault/tokens"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const testSchemaID = "credentials"

var nodeNames = []string{"node_a", "node_b", "node_c", "node_d", "node_e"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCluster runs real node API handlers behind httptest servers.
type testCluster struct {
	config  interfaces.ClusterConfig
	orgKey  *cryptoutils.OrgKey
	cipher  *kms.ShamirCipher
	stores  []*nodestore.Store
	failing []*atomic.Bool
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	orgKey, _, err := cryptoutils.GenerateOrgKey()
	require.NoError(t, err)
	t.Cleanup(orgKey.Destroy)

	clusterKey, err := kms.GenerateClusterKey(n)
	require.NoError(t, err)
	t.Cleanup(clusterKey.Destroy)

	c := &testCluster{
		config: interfaces.ClusterConfig{
			OrgIdentity: orgKey.DID(),
			SchemaID:    testSchemaID,
			TokenTTL:    tokens.DefaultTTL,
			NodeTimeout: 5 * time.Second,
		},
		orgKey: orgKey,
		cipher: kms.NewShamirCipher(clusterKey),
	}

	trusted := map[string]*ecdsa.PublicKey{orgKey.DID(): orgKey.Public}
	for i := 0; i < n; i++ {
		name := nodeNames[i]
		identity := fmt.Sprintf("did:nil:%s", name)

		store := nodestore.NewStore(nodestore.NewMemoryBackend(), logger)
		require.NoError(t, store.CreateSchema(ctx, interfaces.Schema{ID: testSchemaID, Name: "credentials", Keys: []string{"_id"}}))

		failing := atomic.NewBool(false)
		mux := chi.NewRouter()
		mux.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if failing.Load() {
					http.Error(w, "node down", http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
			})
		})
		nodeapi.NewHandler(store, tokens.NewVerifier(identity, trusted), logger).RegisterRoutes(mux)

		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)

		c.config.Nodes = append(c.config.Nodes, interfaces.NodeDescriptor{Name: name, BaseURL: srv.URL, Identity: identity})
		c.stores = append(c.stores, store)
		c.failing = append(c.failing, failing)
	}

	return c
}

func (c *testCluster) issuer(t *testing.T, opts ...tokens.Option) *tokens.Issuer {
	t.Helper()
	issuer, err := tokens.NewIssuer(c.orgKey, c.config.OrgIdentity, c.config.TokenTTL, opts...)
	require.NoError(t, err)
	return issuer
}

func (c *testCluster) store(t *testing.T, opts ...tokens.Option) *ReplicatedStore {
	t.Helper()
	store, err := NewReplicatedStore(c.config, c.issuer(t, opts...), c.cipher, nodeclient.NewClient(testLogger()), testLogger())
	require.NoError(t, err)
	return store
}

// recordsOn returns the documents node i holds for recordID.
func (c *testCluster) recordsOn(t *testing.T, i int, recordID string) []map[string]any {
	t.Helper()
	docs, err := c.stores[i].Find(context.Background(), testSchemaID, map[string]any{"_id": recordID})
	require.NoError(t, err)
	return docs
}

// insertShare writes a stored record directly into node i.
func (c *testCluster) insertShare(t *testing.T, i int, record interfaces.StoredRecord) {
	t.Helper()
	doc := map[string]any{"_id": record.ID, "owner_id": record.OwnerID, "share": record.Share}
	if len(record.Labels) != 0 {
		labels := make(map[string]any, len(record.Labels))
		for k, v := range record.Labels {
			labels[k] = v
		}
		doc["labels"] = labels
	}
	require.NoError(t, c.stores[i].Insert(context.Background(), testSchemaID, doc))
}

