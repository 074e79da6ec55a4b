/*
Package nodestore persists the state of a development storage node: registered
collections, stored queries and the per-collection documents.

Documents are kept as JSON objects in an ObjectStore addressed by slash
separated keys:

	schemas/<schema id>
	queries/<query id>
	data/<schema id>/<document id>

ObjectStore implementations are selected by URI through Factory:

  - memory:// keeps everything in process memory
  - file:///path stores one file per object below path
  - s3://[KEY:SECRET@]bucket/prefix?region=us-east-1&endpoint=host stores
    objects in Amazon S3 or a compatible service

Store layers the document semantics on top: unique ids per collection,
top-level equality filters and typed not-found errors.
*/
package nodestore
