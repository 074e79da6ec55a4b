/*
Package nodeclient implements interfaces.NodeClient over the node HTTP API.

Every call is a single authenticated JSON POST carrying a bearer token and the
caller's context. Failures are reported as *interfaces.NodeError tagged with a
FailureKind:

  - unavailable: transport errors, timeouts and non-200 statuses
  - auth: 401 or 403, typically an expired or foreign token
  - rejected: 200 with a non-empty error list in the body
  - malformed: a 200 body that does not decode

The client never retries; deciding what a failure means for a multi-node
operation is left to the storage package.
*/
package nodeclient
