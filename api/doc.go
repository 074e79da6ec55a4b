/*
Package api holds the wire types shared by the node API and the credential
gateway, plus the HTTP server configuration.

Subpackages:

1. nodeclient - client for the node HTTP API (one node per call)
2. nodeapi - chi handler implementing the node HTTP API on top of a nodestore backend
3. credentials - gateway handler and client exposing put/get of secret records

# Node API

Every node exposes, behind a bearer token (ES256K JWT, see package tokens):

	POST /api/v1/schemas          {_id, name, keys, schema}
	POST /api/v1/data/create      {schema, data: [records]}
	POST /api/v1/data/read        {schema, filter}
	POST /api/v1/queries          {_id, name, schema, filter}
	POST /api/v1/queries/execute  {id, variables}

Writes succeed only with status 200 and an empty data.errors list; schema and
query registration succeed only with status 200 and an empty errors list.

# Gateway API

	POST /api/v1/credentials      {owner_id, record_id?, labels, plaintext}
	GET  /api/v1/credentials?owner=<owner_id>
*/
package api
