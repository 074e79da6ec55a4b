/*
Command devnode runs a single storage node implementing the node API
(schemas, data create/read, stored queries) for local clusters and
integration tests.

Start three nodes trusting the same organization:

	devnode --did did:nil:node_a --trusted-issuer did:nil:<org pubkey> \
		--listen-addr 127.0.0.1:8181 --metrics-addr 127.0.0.1:9181 \
		--storage file:///var/lib/shardvault/a --schema credentials
*/
package main
