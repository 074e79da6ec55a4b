package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ruteri/shardvault/cryptoutils"
	"github.com/ruteri/shardvault/interfaces"
	"gopkg.in/yaml.v3"
)

const (
	EnvOrgSecretKey = "SHARDVAULT_ORG_SECRET_KEY"
	EnvClusterKey   = "SHARDVAULT_CLUSTER_KEY"

	DefaultTokenTTL    = 60 * time.Second
	DefaultNodeTimeout = 10 * time.Second
)

// Config is the parsed configuration file.
type Config struct {
	Org     OrgConfig     `yaml:"org"`
	Cluster ClusterConfig `yaml:"cluster"`
}

// OrgConfig identifies the token issuer.
type OrgConfig struct {
	DID       string `yaml:"did"`
	SecretKey string `yaml:"secret_key"`
}

// ClusterConfig describes the storage nodes.
type ClusterConfig struct {
	SchemaID    string                      `yaml:"schema_id"`
	TokenTTL    time.Duration               `yaml:"token_ttl"`
	NodeTimeout time.Duration               `yaml:"node_timeout"`
	ClusterKey  string                      `yaml:"cluster_key"`
	Nodes       []interfaces.NodeDescriptor `yaml:"nodes"`
}

// SecretResolver resolves secret references such as vault:// URIs.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

type loadOptions struct {
	resolver SecretResolver
	dotenv   []string
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithSecretResolver resolves vault:// references with r instead of a client
// built from VAULT_ADDR and VAULT_TOKEN.
func WithSecretResolver(r SecretResolver) LoadOption {
	return func(o *loadOptions) {
		o.resolver = r
	}
}

// WithDotEnv loads the given files into the environment before expansion.
// Missing files are ignored and variables already set are not overwritten.
func WithDotEnv(paths ...string) LoadOption {
	return func(o *loadOptions) {
		o.dotenv = append(o.dotenv, paths...)
	}
}

// Load reads, expands, overrides, resolves and validates a configuration file.
func Load(ctx context.Context, path string, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	for _, envFile := range o.dotenv {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: loading %s: %v", interfaces.ErrConfig, envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConfig, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.resolveSecrets(ctx, o.resolver); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse expands ${VAR} references and decodes YAML. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	cfg := &Config{}
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConfig, err)
	}

	if cfg.Cluster.TokenTTL == 0 {
		cfg.Cluster.TokenTTL = DefaultTokenTTL
	}
	if cfg.Cluster.NodeTimeout == 0 {
		cfg.Cluster.NodeTimeout = DefaultNodeTimeout
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvOrgSecretKey); v != "" {
		c.Org.SecretKey = v
	}
	if v := os.Getenv(EnvClusterKey); v != "" {
		c.Cluster.ClusterKey = v
	}
}

func (c *Config) resolveSecrets(ctx context.Context, resolver SecretResolver) error {
	for _, secret := range []*string{&c.Org.SecretKey, &c.Cluster.ClusterKey} {
		if !strings.HasPrefix(*secret, VaultScheme) {
			continue
		}

		if resolver == nil {
			r, err := NewVaultResolver("", "")
			if err != nil {
				return err
			}
			resolver = r
		}

		value, err := resolver.Resolve(ctx, *secret)
		if err != nil {
			return fmt.Errorf("%w: resolving secret: %v", interfaces.ErrConfig, err)
		}
		*secret = value
	}
	return nil
}

// Validate checks that the configuration describes a usable cluster.
// The organization DID, when set, must match the secret key.
func (c *Config) Validate() error {
	if c.Org.SecretKey == "" {
		return fmt.Errorf("%w: organization secret key is not set (use %s)", interfaces.ErrConfig, EnvOrgSecretKey)
	}

	key, err := c.OrgKey()
	if err != nil {
		return err
	}
	defer key.Destroy()

	if c.Org.DID != "" && c.Org.DID != key.DID() {
		return fmt.Errorf("%w: organization did %s does not match the secret key", interfaces.ErrConfig, c.Org.DID)
	}

	cluster := c.clusterConfig(key.DID())
	return cluster.Validate()
}

// OrgKey parses the organization secret key. The caller owns the returned key
// and should Destroy it when done.
func (c *Config) OrgKey() (*cryptoutils.OrgKey, error) {
	key, err := cryptoutils.ParseOrgKey(c.Org.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConfig, err)
	}
	return key, nil
}

// OrgIdentity returns the configured DID or the one derived from the key.
func (c *Config) OrgIdentity() (string, error) {
	if c.Org.DID != "" {
		return c.Org.DID, nil
	}
	key, err := c.OrgKey()
	if err != nil {
		return "", err
	}
	defer key.Destroy()
	return key.DID(), nil
}

// ClusterConfig returns the runtime cluster description.
func (c *Config) ClusterConfig() (interfaces.ClusterConfig, error) {
	identity, err := c.OrgIdentity()
	if err != nil {
		return interfaces.ClusterConfig{}, err
	}
	return c.clusterConfig(identity), nil
}

func (c *Config) clusterConfig(identity string) interfaces.ClusterConfig {
	return interfaces.ClusterConfig{
		OrgIdentity: identity,
		SchemaID:    c.Cluster.SchemaID,
		TokenTTL:    c.Cluster.TokenTTL,
		NodeTimeout: c.Cluster.NodeTimeout,
		Nodes:       append([]interfaces.NodeDescriptor(nil), c.Cluster.Nodes...),
	}
}
