/*
Package config loads the cluster description and client secrets.

A configuration file is YAML; ${VAR} references are expanded from the
environment before parsing, and a .env file can populate the environment
first:

	org:
	  did: did:nil:03a1...             # optional, derived from the key
	  secret_key: ${SHARDVAULT_ORG_SECRET_KEY}
	cluster:
	  schema_id: 3f2b1c9e-8d4a-4b6e-9a1f-2c3d4e5f6a7b
	  token_ttl: 60s
	  node_timeout: 10s
	  cluster_key: vault://secret/shardvault#cluster_key
	  nodes:
	    - name: node_a
	      url: https://nildb-a.example.com
	      did: did:nil:030923...

SHARDVAULT_ORG_SECRET_KEY and SHARDVAULT_CLUSTER_KEY, when set, override the
file. Secret values of the form vault://<mount>/<path>#<field> are read from a
HashiCorp Vault KV v2 engine using VAULT_ADDR and VAULT_TOKEN.

Every problem is reported as interfaces.ErrConfig.
*/
package config
