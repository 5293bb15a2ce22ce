// Package ingest persists accepted traces to a blob store.
//
// Each trace becomes two objects whose keys are derived purely from trace
// content:
//
//	{logPrefix}/{systemFingerprint}/{YYYYMMDD}/{id}.json
//	{sharePrefix}/{systemFingerprint}/{YYYYMMDD}/{id}.html
//
// The date component is the UTC calendar date of the trace's created
// timestamp. Because the trace id fixes the storage location, resubmission is
// idempotent and safe to use as a client retry strategy. The writer performs
// no compensation for a partial write: a failed HTML write leaves the JSON
// object persisted.
package ingest
