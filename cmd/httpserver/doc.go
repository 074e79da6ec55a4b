/*
Command httpserver runs the credential gateway.

It loads the cluster file (see package config), mints node tokens with the
organization key, and serves

	POST /api/v1/credentials          store a credential across all nodes
	GET  /api/v1/credentials?owner=X  list reconstructed credentials of X

next to the usual /livez, /readyz and /drain endpoints. Prometheus metrics are
served on --metrics-addr.

	SHARDVAULT_ORG_SECRET_KEY=... SHARDVAULT_CLUSTER_KEY=... \
		httpserver --config shardvault.yaml --listen-addr 0.0.0.0:8080
*/
package main
