package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruteri/shardvault/interfaces"
	"github.com/ruteri/shardvault/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReplicatedStore_PutGet(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.Put(ctx, "alice", "r1", []byte("hello")))

	records := store.Get(ctx, "alice")
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].RecordID)
	assert.Equal(t, "alice", records[0].OwnerID)
	assert.Equal(t, []byte("hello"), records[0].Plaintext)

	for i := range cluster.stores {
		docs := cluster.recordsOn(t, i, "r1")
		require.Len(t, docs, 1, "node %d", i)
		assert.NotEqual(t, "hello", docs[0]["share"])
	}
}

func TestReplicatedStore_EmptyPlaintext(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.Put(ctx, "alice", "r1", []byte{}))

	records := store.Get(ctx, "alice")
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].RecordID)
	assert.Empty(t, records[0].Plaintext)
}

func TestReplicatedStore_RoundTripSizes(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{1, 2, 5} {
		cluster := newTestCluster(t, n)
		store := cluster.store(t)

		require.True(t, store.Put(ctx, "0xabc", "r1", []byte("secret")), "n=%d", n)
		records := store.Get(ctx, "")
		require.Len(t, records, 1, "n=%d", n)
		assert.Equal(t, []byte("secret"), records[0].Plaintext)
	}
}

func TestReplicatedStore_FailFast(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	cluster.failing[1].Store(true)
	require.False(t, store.Put(ctx, "0xabc", "r1", []byte("secret")))

	assert.Len(t, cluster.recordsOn(t, 0, "r1"), 1)
	assert.Len(t, cluster.recordsOn(t, 1, "r1"), 0)
	assert.Len(t, cluster.recordsOn(t, 2, "r1"), 0)

	// The partial record stays invisible once the node is back.
	cluster.failing[1].Store(false)
	assert.Empty(t, store.Get(ctx, "0xabc"))
}

func TestReplicatedStore_PartialWriteError(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	cluster.failing[2].Store(true)
	err := store.put(ctx, interfaces.SecretRecord{RecordID: "r1", OwnerID: "0xabc", Plaintext: []byte("secret")})
	require.ErrorIs(t, err, interfaces.ErrPartialWrite)
	require.ErrorIs(t, err, interfaces.ErrNodeUnavailable)

	kind, ok := interfaces.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, interfaces.KindUnavailable, kind)

	cluster.failing[2].Store(false)
	cluster.failing[0].Store(true)
	err = store.put(ctx, interfaces.SecretRecord{RecordID: "r2", OwnerID: "0xabc", Plaintext: []byte("secret")})
	require.Error(t, err)
	require.NotErrorIs(t, err, interfaces.ErrPartialWrite)
}

func TestReplicatedStore_CompletenessGating(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.Put(ctx, "alice", "complete", []byte("visible")))

	cluster.failing[2].Store(true)
	require.False(t, store.Put(ctx, "alice", "partial", []byte("invisible")))
	cluster.failing[2].Store(false)

	records := store.Get(ctx, "alice")
	require.Len(t, records, 1)
	assert.Equal(t, "complete", records[0].RecordID)
}

func TestReplicatedStore_IdempotentReads(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.Put(ctx, "alice", "r2", []byte("two")))
	require.True(t, store.Put(ctx, "alice", "r1", []byte("one")))
	require.True(t, store.Put(ctx, "bob", "r3", []byte("three")))

	first := store.Get(ctx, "alice")
	second := store.Get(ctx, "alice")
	require.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "r1", first[0].RecordID)
	assert.Equal(t, "r2", first[1].RecordID)

	assert.Len(t, store.Get(ctx, ""), 3)
}

func TestReplicatedStore_OwnerFilterCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.Put(ctx, "0xABCdef", "r1", []byte("secret")))

	records := store.Get(ctx, "0xabcDEF")
	require.Len(t, records, 1)
	assert.Equal(t, "0xABCdef", records[0].OwnerID)
	assert.Empty(t, store.Get(ctx, "0xabc"))
}

func TestReplicatedStore_Labels(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.PutSecret(ctx, interfaces.SecretRecord{
		RecordID:  "r1",
		OwnerID:   "alice",
		Labels:    map[string]string{"title": "github"},
		Plaintext: []byte("ghp_token"),
	}))

	records := store.Get(ctx, "alice")
	require.Len(t, records, 1)
	assert.Equal(t, map[string]string{"title": "github"}, records[0].Labels)
}

func TestReplicatedStore_DropsInconsistentGroups(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	shares, err := cluster.cipher.Split([]byte("secret"), 3)
	require.NoError(t, err)

	owners := []string{"alice", "alice", "mallory"}
	for i := range cluster.stores {
		cluster.insertShare(t, i, interfaces.StoredRecord{ID: "r1", OwnerID: owners[i], Share: shares[i]})
	}

	assert.Empty(t, store.Get(ctx, ""))
}

func TestReplicatedStore_MismatchedSharesNeverReconstruct(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	first, err := cluster.cipher.Split([]byte("secret one"), 3)
	require.NoError(t, err)
	second, err := cluster.cipher.Split([]byte("secret two"), 3)
	require.NoError(t, err)

	mixed := []string{first[0], second[1], first[2]}
	for i := range cluster.stores {
		cluster.insertShare(t, i, interfaces.StoredRecord{ID: "r1", OwnerID: "alice", Share: mixed[i]})
	}

	assert.Empty(t, store.Get(ctx, "alice"))
}

func TestReplicatedStore_ExpiredTokens(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)

	past := func() time.Time { return time.Now().Add(-time.Hour) }
	store := cluster.store(t, tokens.WithClock(past))

	require.False(t, store.Put(ctx, "alice", "r1", []byte("hello")))
	for i := range cluster.stores {
		assert.Empty(t, cluster.recordsOn(t, i, "r1"))
	}
	assert.Empty(t, store.Get(ctx, "alice"))

	err := store.put(ctx, interfaces.SecretRecord{RecordID: "r1", OwnerID: "alice", Plaintext: []byte("hello")})
	require.ErrorIs(t, err, interfaces.ErrAuth)
	kind, ok := interfaces.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, interfaces.KindAuth, kind)
}

func TestReplicatedStore_SchemaViolation(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	schemaID, ok := store.DefineCollection(ctx, "labelled credentials", map[string]any{
		"type":     "object",
		"required": []any{"_id", "owner_id", "share", "labels"},
	})
	require.True(t, ok)

	labelled := store.ForSchema(schemaID)
	assert.Equal(t, testSchemaID, store.SchemaID())

	require.False(t, labelled.Put(ctx, "alice", "r1", []byte("hello")))
	require.True(t, labelled.PutSecret(ctx, interfaces.SecretRecord{
		RecordID:  "r1",
		OwnerID:   "alice",
		Labels:    map[string]string{"title": "t"},
		Plaintext: []byte("hello"),
	}))

	records := labelled.Get(ctx, "alice")
	require.Len(t, records, 1)
	assert.Equal(t, []byte("hello"), records[0].Plaintext)
}

func TestReplicatedStore_DuplicateRecordID(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.Put(ctx, "alice", "r1", []byte("first")))
	require.False(t, store.Put(ctx, "alice", "r1", []byte("second")))

	records := store.Get(ctx, "alice")
	require.Len(t, records, 1)
	assert.Equal(t, []byte("first"), records[0].Plaintext)
}

func TestReplicatedStore_PutNew(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 2)
	store := cluster.store(t)

	id, ok := store.PutNew(ctx, "alice", []byte("hello"))
	require.True(t, ok)
	require.NotEmpty(t, id)

	records := store.Get(ctx, "alice")
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].RecordID)
}

func TestReplicatedStore_NodeDownHidesReads(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.Put(ctx, "alice", "r1", []byte("hello")))

	cluster.failing[1].Store(true)
	assert.Empty(t, store.Get(ctx, "alice"))

	cluster.failing[1].Store(false)
	assert.Len(t, store.Get(ctx, "alice"), 1)
}

func TestReplicatedStore_Queries(t *testing.T) {
	ctx := context.Background()
	cluster := newTestCluster(t, 3)
	store := cluster.store(t)

	require.True(t, store.Put(ctx, "alice", "r1", []byte("one")))
	require.True(t, store.Put(ctx, "bob", "r2", []byte("two")))

	require.True(t, store.DefineQuery(ctx, interfaces.Query{
		ID:     "by-owner",
		Name:   "records by owner",
		Filter: map[string]any{"owner_id": "$owner"},
	}))
	require.False(t, store.DefineQuery(ctx, interfaces.Query{ID: "by-owner", Filter: map[string]any{}}))
	require.False(t, store.DefineQuery(ctx, interfaces.Query{Filter: map[string]any{}}))

	cluster.failing[2].Store(true)
	results := store.ExecuteQuery(ctx, "by-owner", map[string]any{"owner": "bob"})
	require.Len(t, results, 2)
	for _, node := range []string{"node_a", "node_b"} {
		require.Len(t, results[node], 1)
		assert.Equal(t, "r2", results[node][0]["_id"])
	}
	assert.NotContains(t, results, "node_c")
}

func TestNewReplicatedStore_Validation(t *testing.T) {
	cluster := newTestCluster(t, 3)
	issuer := cluster.issuer(t)
	client := &mockNodeClient{}

	_, err := NewReplicatedStore(interfaces.ClusterConfig{}, issuer, cluster.cipher, client, nil)
	require.ErrorIs(t, err, interfaces.ErrConfig)

	twoNodes := cluster.config
	twoNodes.Nodes = twoNodes.Nodes[:2]
	_, err = NewReplicatedStore(twoNodes, issuer, cluster.cipher, client, nil)
	require.ErrorIs(t, err, interfaces.ErrConfig)

	_, err = NewReplicatedStore(cluster.config, nil, cluster.cipher, client, nil)
	require.ErrorIs(t, err, interfaces.ErrConfig)

	noSchema := cluster.config
	noSchema.SchemaID = ""
	store, err := NewReplicatedStore(noSchema, issuer, cluster.cipher, client, nil)
	require.NoError(t, err)
	require.ErrorIs(t, store.put(context.Background(), interfaces.SecretRecord{RecordID: "r1"}), interfaces.ErrConfig)
	require.False(t, store.Put(context.Background(), "alice", "r1", []byte("x")))
}

type mockNodeClient struct {
	mock.Mock
}

func (m *mockNodeClient) Write(ctx context.Context, node interfaces.NodeDescriptor, token, schemaID string, records []interfaces.StoredRecord) error {
	return m.Called(node.Name, records).Error(0)
}

func (m *mockNodeClient) Read(ctx context.Context, node interfaces.NodeDescriptor, token, schemaID string, filter map[string]any) ([]interfaces.StoredRecord, error) {
	args := m.Called(node.Name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.StoredRecord), args.Error(1)
}

func (m *mockNodeClient) CreateSchema(ctx context.Context, node interfaces.NodeDescriptor, token string, schema interfaces.Schema) error {
	return m.Called(node.Name, schema.Name).Error(0)
}

func (m *mockNodeClient) CreateQuery(ctx context.Context, node interfaces.NodeDescriptor, token string, query interfaces.Query) error {
	return m.Called(node.Name, query.ID).Error(0)
}

func (m *mockNodeClient) ExecuteQuery(ctx context.Context, node interfaces.NodeDescriptor, token, queryID string, variables map[string]any) ([]map[string]any, error) {
	args := m.Called(node.Name, queryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func TestReplicatedStore_WriteOrderWithMock(t *testing.T) {
	cluster := newTestCluster(t, 3)
	client := &mockNodeClient{}

	store, err := NewReplicatedStore(cluster.config, cluster.issuer(t), cluster.cipher, client, testLogger())
	require.NoError(t, err)

	rejected := &interfaces.NodeError{Node: "node_b", Op: "write", Kind: interfaces.KindRejected, Status: 200, Err: errors.New("duplicate key")}
	client.On("Write", "node_a", mock.MatchedBy(func(records []interfaces.StoredRecord) bool {
		return len(records) == 1 && records[0].ID == "r1" && records[0].OwnerID == "0xabc" && records[0].Share != ""
	})).Return(nil).Once()
	client.On("Write", "node_b", mock.Anything).Return(rejected).Once()

	require.False(t, store.Put(context.Background(), "0xabc", "r1", []byte("secret")))

	client.AssertExpectations(t)
	client.AssertNotCalled(t, "Write", "node_c", mock.Anything)
}

func TestReplicatedStore_DefineCollectionFailFast(t *testing.T) {
	cluster := newTestCluster(t, 3)
	client := &mockNodeClient{}

	store, err := NewReplicatedStore(cluster.config, cluster.issuer(t), cluster.cipher, client, testLogger())
	require.NoError(t, err)

	client.On("CreateSchema", "node_a", "credentials").Return(nil).Once()
	client.On("CreateSchema", "node_b", "credentials").Return(&interfaces.NodeError{Node: "node_b", Kind: interfaces.KindUnavailable, Err: errors.New("down")}).Once()

	id, ok := store.DefineCollection(context.Background(), "credentials", nil)
	require.False(t, ok)
	require.Empty(t, id)

	client.AssertExpectations(t)
	client.AssertNotCalled(t, "CreateSchema", "node_c", mock.Anything)
}
