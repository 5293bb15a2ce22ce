// Package storage provides keyed blob store backends for persisted traces.
//
// Unlike content-addressed stores, keys here are caller-derived paths: the
// ingestion writer computes them deterministically from trace content, which
// makes every write idempotent (same trace, same keys, last-writer-wins).
//
// Backends are specified by URI:
//
//	s3://bucket-name?region=us-west-2
//	s3://ACCESS:SECRET@bucket-name?region=us-west-2&endpoint=https://minio.local
//	file:///var/lib/trace-store
//
// S3 objects are written with a public-read ACL and surfaced under the
// bucket's public base address; the file backend exists for development and
// tests.
package storage
