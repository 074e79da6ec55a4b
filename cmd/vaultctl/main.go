package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/ruteri/shardvault/api"
	"github.com/ruteri/shardvault/api/credentials"
	"github.com/ruteri/shardvault/cmd/flags"
	"github.com/ruteri/shardvault/cmd/storecommon"
	"github.com/ruteri/shardvault/config"
	"github.com/ruteri/shardvault/cryptoutils"
	"github.com/ruteri/shardvault/interfaces"
	"github.com/ruteri/shardvault/kms"
	"github.com/ruteri/shardvault/tokens"
	"github.com/urfave/cli/v2"
)

var flagGateway = &cli.StringFlag{
	Name:    "gateway",
	EnvVars: []string{"SHARDVAULT_GATEWAY"},
	Usage:   "gateway URL; when set put/get go through the gateway instead of the nodes",
}
var flagOwner = &cli.StringFlag{
	Name:     "owner",
	Required: true,
	Usage:    "owner id of the credential",
}
var flagRecordID = &cli.StringFlag{
	Name:  "id",
	Usage: "record id, generated when empty",
}
var flagLabel = &cli.StringSliceFlag{
	Name:  "label",
	Usage: "public label stored in clear next to the shares, key=value, repeatable",
}
var flagPlaintext = &cli.StringFlag{
	Name:    "plaintext",
	EnvVars: []string{"SHARDVAULT_PLAINTEXT"},
	Usage:   "secret value; read from stdin when empty",
}
var flagName = &cli.StringFlag{
	Name:     "name",
	Required: true,
	Usage:    "human readable name",
}
var flagSchemaFile = &cli.StringFlag{
	Name:  "schema-file",
	Usage: "JSON schema every record of the collection must satisfy",
}
var flagUpdateConfig = &cli.BoolFlag{
	Name:  "update-config",
	Usage: "write the new collection id to cluster.schema_id in the config file",
}
var flagQueryID = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "query id",
}
var flagFilter = &cli.StringFlag{
	Name:  "filter",
	Value: "{}",
	Usage: `JSON filter, string values "$name" are query variables`,
}
var flagVar = &cli.StringSliceFlag{
	Name:  "var",
	Usage: "query variable, name=value, repeatable",
}
var flagAudience = &cli.StringSliceFlag{
	Name:  "audience",
	Usage: "node identity to issue a token for, repeatable; defaults to the configured nodes",
}

func main() {
	app := &cli.App{
		Name:  "vaultctl",
		Usage: "Operate a shardvault cluster",
		Flags: append(append([]cli.Flag{flagGateway, flags.LogServiceFlagFn("vaultctl")}, flags.ClusterFlags...), flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "generate an organization key and a cluster key",
				Action: func(cCtx *cli.Context) error {
					orgKey, secretHex, err := cryptoutils.GenerateOrgKey()
					if err != nil {
						return err
					}
					defer orgKey.Destroy()

					clusterKey := make([]byte, kms.ClusterKeySize)
					if _, err := rand.Read(clusterKey); err != nil {
						return fmt.Errorf("failed to generate cluster key: %w", err)
					}
					defer cryptoutils.Wipe(clusterKey)

					return printJSON(map[string]string{
						"did":         orgKey.DID(),
						"public_key":  orgKey.PublicKeyHex(),
						"secret_key":  secretHex,
						"cluster_key": hex.EncodeToString(clusterKey),
					})
				},
			},
			{
				Name:  "issue-tokens",
				Usage: "mint one node token per audience",
				Flags: []cli.Flag{flagAudience},
				Action: func(cCtx *cli.Context) error {
					cfg, err := storecommon.LoadConfig(cCtx)
					if err != nil {
						return err
					}
					cluster, err := cfg.ClusterConfig()
					if err != nil {
						return err
					}

					audiences := cCtx.StringSlice(flagAudience.Name)
					if len(audiences) == 0 {
						audiences = cluster.Audiences()
					}

					issued, err := tokens.Issue(cfg.Org.SecretKey, cluster.OrgIdentity, audiences, cluster.TokenTTL)
					if err != nil {
						return err
					}
					return printJSON(issued)
				},
			},
			{
				Name:  "put",
				Usage: "store a credential on every node",
				Flags: []cli.Flag{flagOwner, flagRecordID, flagLabel, flagPlaintext},
				Action: func(cCtx *cli.Context) error {
					plaintext, err := readPlaintext(cCtx)
					if err != nil {
						return err
					}
					labels, err := parsePairs(cCtx.StringSlice(flagLabel.Name))
					if err != nil {
						return err
					}

					req := api.CredentialRequest{
						OwnerID:   cCtx.String(flagOwner.Name),
						RecordID:  cCtx.String(flagRecordID.Name),
						Labels:    labels,
						Plaintext: plaintext,
					}

					if gateway := cCtx.String(flagGateway.Name); gateway != "" {
						resp, err := credentials.NewClient(gateway).Put(cCtx.Context, req)
						if err != nil {
							return err
						}
						return printJSON(resp)
					}

					return withStore(cCtx, func(c *storecommon.Cluster) error {
						if req.RecordID == "" {
							req.RecordID = uuid.NewString()
						}
						ok := c.Store.PutSecret(cCtx.Context, interfaces.SecretRecord{
							RecordID:  req.RecordID,
							OwnerID:   req.OwnerID,
							Labels:    req.Labels,
							Plaintext: []byte(req.Plaintext),
						})
						return printJSON(api.CredentialResponse{RecordID: req.RecordID, Stored: ok})
					})
				},
			},
			{
				Name:  "get",
				Usage: "reconstruct the credentials of an owner",
				Flags: []cli.Flag{flagOwner},
				Action: func(cCtx *cli.Context) error {
					owner := cCtx.String(flagOwner.Name)

					if gateway := cCtx.String(flagGateway.Name); gateway != "" {
						creds, err := credentials.NewClient(gateway).List(cCtx.Context, owner)
						if err != nil {
							return err
						}
						return printJSON(creds)
					}

					return withStore(cCtx, func(c *storecommon.Cluster) error {
						records := c.Store.Get(cCtx.Context, owner)
						creds := make([]api.Credential, 0, len(records))
						for _, r := range records {
							creds = append(creds, api.Credential{
								RecordID:  r.RecordID,
								OwnerID:   r.OwnerID,
								Labels:    r.Labels,
								Plaintext: string(r.Plaintext),
							})
						}
						return printJSON(creds)
					})
				},
			},
			{
				Name:  "define-collection",
				Usage: "register a collection on every node and print its id",
				Flags: []cli.Flag{flagName, flagSchemaFile, flagUpdateConfig},
				Action: func(cCtx *cli.Context) error {
					var jsonSchema map[string]any
					if path := cCtx.String(flagSchemaFile.Name); path != "" {
						data, err := os.ReadFile(path)
						if err != nil {
							return err
						}
						if err := json.Unmarshal(data, &jsonSchema); err != nil {
							return fmt.Errorf("invalid schema file: %w", err)
						}
					}

					return withStore(cCtx, func(c *storecommon.Cluster) error {
						id, ok := c.Store.DefineCollection(cCtx.Context, cCtx.String(flagName.Name), jsonSchema)
						if !ok {
							return errors.New("collection was not registered on every node")
						}
						if cCtx.Bool(flagUpdateConfig.Name) {
							if err := config.SetSchemaID(cCtx.String(flags.ConfigFileFlag.Name), id); err != nil {
								return fmt.Errorf("collection %s registered but config not updated: %w", id, err)
							}
						}
						return printJSON(map[string]string{"schema": id})
					})
				},
			},
			{
				Name:  "define-query",
				Usage: "register a stored query on every node",
				Flags: []cli.Flag{flagQueryID, flagName, flagFilter},
				Action: func(cCtx *cli.Context) error {
					var filter map[string]any
					if err := json.Unmarshal([]byte(cCtx.String(flagFilter.Name)), &filter); err != nil {
						return fmt.Errorf("invalid filter: %w", err)
					}

					return withStore(cCtx, func(c *storecommon.Cluster) error {
						ok := c.Store.DefineQuery(cCtx.Context, interfaces.Query{
							ID:     cCtx.String(flagQueryID.Name),
							Name:   cCtx.String(flagName.Name),
							Filter: filter,
						})
						if !ok {
							return errors.New("query was not registered on every node")
						}
						return nil
					})
				},
			},
			{
				Name:  "execute-query",
				Usage: "run a stored query on every node",
				Flags: []cli.Flag{flagQueryID, flagVar},
				Action: func(cCtx *cli.Context) error {
					pairs, err := parsePairs(cCtx.StringSlice(flagVar.Name))
					if err != nil {
						return err
					}
					variables := make(map[string]any, len(pairs))
					for k, v := range pairs {
						variables[k] = v
					}

					return withStore(cCtx, func(c *storecommon.Cluster) error {
						return printJSON(c.Store.ExecuteQuery(cCtx.Context, cCtx.String(flagQueryID.Name), variables))
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withStore(cCtx *cli.Context, fn func(*storecommon.Cluster) error) error {
	logger := flags.SetupLogger(cCtx)

	cfg, err := storecommon.LoadConfig(cCtx)
	if err != nil {
		return err
	}

	cluster, err := storecommon.Open(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer cluster.Close()

	return fn(cluster)
}

func readPlaintext(cCtx *cli.Context) (string, error) {
	if v := cCtx.String(flagPlaintext.Name); v != "" {
		return v, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read plaintext from stdin: %w", err)
	}
	plaintext := strings.TrimRight(string(data), "\r\n")
	if plaintext == "" {
		return "", errors.New("plaintext is empty")
	}
	return plaintext, nil
}

func parsePairs(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	res := make(map[string]string, len(values))
	for _, v := range values {
		k, val, found := strings.Cut(v, "=")
		if !found || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", v)
		}
		res[k] = val
	}
	return res, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
