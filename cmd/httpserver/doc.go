// Package main (cmd/httpserver) runs the attested trace ingestion server.
//
// The server exposes two API endpoints: challenge issuance and attested trace
// submission. Clients first request a single-use challenge for their App
// Attest key, produce an attestation binding that challenge, and then submit
// the attestation together with the chat trace. Accepted traces are written to
// the configured storage backend twice, as canonical JSON and as a shareable
// HTML page, and the client receives the URL of the HTML object.
//
// The master secret backing challenge issuance is taken from the
// --master-secret flag (or MASTER_SECRET), either inline as hex or as a
// vault:// reference resolved through HashiCorp Vault.
//
// Example usage with S3 storage:
//
//	attested-trace-backend --listen-addr=0.0.0.0:8080 \
//	    --app-id=TEAMID.com.example.app \
//	    --master-secret=vault://vault.example.com:8200/secret/trace-backend \
//	    --storage-uri='s3://my-bucket?region=us-east-1'
//
// The server implements graceful shutdown on SIGINT/SIGTERM and serves health
// checks, Prometheus metrics, and optional pprof endpoints.
package main
