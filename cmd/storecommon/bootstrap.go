// Package storecommon wires a ReplicatedStore from the cluster configuration
// file for the gateway and the operator CLI.
package storecommon

import (
	"fmt"
	"log/slog"

	"github.com/ruteri/shardvault/api/nodeclient"
	"github.com/ruteri/shardvault/cmd/flags"
	"github.com/ruteri/shardvault/config"
	"github.com/ruteri/shardvault/kms"
	"github.com/ruteri/shardvault/metrics"
	"github.com/ruteri/shardvault/storage"
	"github.com/ruteri/shardvault/tokens"
	"github.com/urfave/cli/v2"
)

// Cluster owns the store and the key material behind it.
type Cluster struct {
	Config *config.Config
	Store  *storage.ReplicatedStore

	release []func()
}

// Close destroys the protected keys.
func (c *Cluster) Close() {
	for _, fn := range c.release {
		fn()
	}
	c.release = nil
}

// LoadConfig reads the file named by the cluster flags.
func LoadConfig(cCtx *cli.Context) (*config.Config, error) {
	return config.Load(cCtx.Context, cCtx.String(flags.ConfigFileFlag.Name),
		config.WithDotEnv(cCtx.StringSlice(flags.DotEnvFlag.Name)...))
}

// Open builds a ReplicatedStore from cfg. A nil recorder disables metrics.
func Open(cfg *config.Config, log *slog.Logger, recorder *metrics.Recorder) (*Cluster, error) {
	cluster, err := cfg.ClusterConfig()
	if err != nil {
		return nil, err
	}

	orgKey, err := cfg.OrgKey()
	if err != nil {
		return nil, err
	}
	c := &Cluster{Config: cfg, release: []func(){orgKey.Destroy}}

	issuer, err := tokens.NewIssuer(orgKey, cluster.OrgIdentity, cluster.TokenTTL)
	if err != nil {
		c.Close()
		return nil, err
	}

	var clusterKey *kms.ClusterKey
	if cfg.Cluster.ClusterKey != "" {
		clusterKey, err = kms.ClusterKeyFromHex(cluster.Size(), cfg.Cluster.ClusterKey)
	} else {
		log.Warn("No cluster key configured, generating an ephemeral one; shares will not be readable after restart",
			slog.String("env", config.EnvClusterKey))
		clusterKey, err = kms.GenerateClusterKey(cluster.Size())
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	c.release = append(c.release, clusterKey.Destroy)

	keyID := clusterKey.ID()
	log.Info("Cluster key loaded", slog.String("keyID", fmt.Sprintf("%x", keyID[:])), slog.Int("nodes", cluster.Size()))

	client := nodeclient.NewClient(log, nodeclient.WithMetrics(recorder))
	store, err := storage.NewReplicatedStore(cluster, issuer, kms.NewShamirCipher(clusterKey), client, log,
		storage.WithMetrics(recorder))
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store = store

	return c, nil
}
