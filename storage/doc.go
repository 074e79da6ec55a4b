/*
Package storage implements ReplicatedStore, the client-side view of a cluster
of independent storage nodes holding secret-shared credentials.

A write splits the secret into one share per node with an interfaces.ShareCipher,
mints a fresh set of node tokens and writes the shares sequentially in cluster
order. The first failing node stops the write; shares already accepted by
earlier nodes are not rolled back:

	put("0xabc", "r1", "secret") with node_b down
	  node_a: r1 stored
	  node_b: write fails, put returns false
	  node_c: never contacted

A read queries all nodes concurrently, groups the returned shares by record id
and reconstructs only the groups holding exactly one share from every node.
Partial records stay invisible. Owner filtering is case-insensitive and
happens after reconstruction.

The store also registers collections and stored queries on every node, which
is how a new deployment creates the collection the records live in.
*/
package storage
