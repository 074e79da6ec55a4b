package storecommon

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/shardvault/config"
	"github.com/ruteri/shardvault/cryptoutils"
	"github.com/ruteri/shardvault/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, clusterKey string) *config.Config {
	t.Helper()
	key, secretHex, err := cryptoutils.GenerateOrgKey()
	require.NoError(t, err)
	key.Destroy()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
org:
  secret_key: %q
cluster:
  schema_id: credentials
  cluster_key: %q
  nodes:
    - {name: node_a, url: "http://127.0.0.1:8181", did: "did:nil:node_a"}
    - {name: node_b, url: "http://127.0.0.1:8182", did: "did:nil:node_b"}
`, secretHex, clusterKey)))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestOpen(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("pinned cluster key", func(t *testing.T) {
		c, err := Open(testConfig(t, strings.Repeat("ab", 32)), log, nil)
		require.NoError(t, err)
		defer c.Close()

		assert.Equal(t, "credentials", c.Store.SchemaID())
		assert.Len(t, c.Store.Nodes(), 2)
	})

	t.Run("ephemeral cluster key", func(t *testing.T) {
		c, err := Open(testConfig(t, ""), log, nil)
		require.NoError(t, err)
		c.Close()
		c.Close()
	})

	t.Run("malformed cluster key", func(t *testing.T) {
		_, err := Open(testConfig(t, "zz"), log, nil)
		require.ErrorIs(t, err, interfaces.ErrConfig)
	})
}
