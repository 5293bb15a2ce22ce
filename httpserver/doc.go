// Package httpserver provides the HTTP surface of the attested trace
// ingestion service.
//
// Two API endpoints implement the protocol:
//
//	POST /api/v1/attested/challenge  issue a challenge for a key id
//	POST /api/v1/attested/traces     submit an attested trace
//
// Routing by explicit path replaces classification by payload shape: the
// transport decides which operation a request is before the core ever sees
// it. Responses use a uniform envelope: {"outcome":"success", ...} on
// success, {"outcome":"failure","error":...} otherwise. Attestation failures
// are reported without detail; trace validation failures carry the specific
// reason, since it only describes the client's own payload.
//
// The server also exposes /livez, /readyz, /drain and /undrain for operations,
// an optional pprof mount, and a Prometheus metrics server on a dedicated
// address.
package httpserver
