/*
Package nodeapi implements the storage node HTTP API.

It is used by the devnode binary and by tests to run a full cluster locally.
Routes, all POST with JSON bodies and a bearer token:

	/api/v1/schemas          register a collection {_id, name, keys, schema}
	/api/v1/data/create      {schema, data: [...]} -> {data: {created, errors}}
	/api/v1/data/read        {schema, filter} -> {data: [...]}
	/api/v1/queries          register a query {_id, name, schema, filter}
	/api/v1/queries/execute  {id, variables} -> {data: [...]}

Tokens must be ES256K JWTs addressed to the node identity and signed by a
trusted issuer; anything else is answered with 401. Documents are validated
against the collection's JSON schema, and violations or duplicate ids are
listed in data.errors of a 200 response rather than failing the request.
*/
package nodeapi
