/*
Command vaultctl is the operator CLI for a shardvault cluster.

	vaultctl keygen
	vaultctl --config shardvault.yaml define-collection --name credentials --schema-file schema.json --update-config
	vaultctl --config shardvault.yaml put --owner alice --label title=github --plaintext hello
	vaultctl --config shardvault.yaml get --owner alice
	vaultctl --gateway http://127.0.0.1:8080 get --owner alice
	vaultctl --config shardvault.yaml issue-tokens

put and get talk to the nodes directly unless --gateway is given.
*/
package main
