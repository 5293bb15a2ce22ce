package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/genui/attested-trace-backend/interfaces"
	"github.com/genui/attested-trace-backend/trace"
)

// Writer persists accepted traces as two objects: the canonical JSON record
// and a rendered HTML view. Both storage keys are fully determined by trace
// content, so resubmitting a trace with the same id overwrites the same
// objects instead of creating duplicates.
type Writer struct {
	store       interfaces.BlobStore
	logPrefix   string
	sharePrefix string
	log         *slog.Logger
}

// NewWriter creates a writer persisting to store under the given key prefixes.
func NewWriter(store interfaces.BlobStore, logPrefix, sharePrefix string, log *slog.Logger) *Writer {
	return &Writer{
		store:       store,
		logPrefix:   logPrefix,
		sharePrefix: sharePrefix,
		log:         log,
	}
}

// Keys derives the JSON and HTML storage keys for a trace.
func (w *Writer) Keys(tr *trace.Trace) (jsonKey, htmlKey string) {
	datePrefix := time.Unix(tr.Created, 0).UTC().Format("20060102")
	jsonKey = fmt.Sprintf("%s/%s/%s/%s.json", w.logPrefix, tr.SystemFingerprint, datePrefix, tr.ID)
	htmlKey = fmt.Sprintf("%s/%s/%s/%s.html", w.sharePrefix, tr.SystemFingerprint, datePrefix, tr.ID)
	return jsonKey, htmlKey
}

// Write persists the trace and returns the public URL of the HTML view.
//
// The JSON object is written first. If the HTML write then fails, the JSON
// object stays persisted without its HTML counterpart; no rollback is
// attempted. The client can recover by resubmitting: both writes land on the
// same keys.
func (w *Writer) Write(ctx context.Context, tr *trace.Trace) (string, error) {
	data, err := tr.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to serialize trace: %w", err)
	}

	jsonKey, htmlKey := w.Keys(tr)

	if err := w.store.Put(ctx, jsonKey, data, "application/json"); err != nil {
		w.log.Error("Failed to write trace JSON",
			slog.String("key", jsonKey),
			slog.String("backend", w.store.Name()),
			"err", err)
		return "", fmt.Errorf("writing %s: %w", jsonKey, err)
	}

	html := RenderChatHTML(data)
	if err := w.store.Put(ctx, htmlKey, []byte(html), "text/html"); err != nil {
		w.log.Error("Failed to write trace HTML; JSON object remains persisted",
			slog.String("json_key", jsonKey),
			slog.String("html_key", htmlKey),
			slog.String("backend", w.store.Name()),
			"err", err)
		return "", fmt.Errorf("writing %s: %w", htmlKey, err)
	}

	url := w.store.URL(htmlKey)
	w.log.Info("Trace persisted",
		slog.String("trace_id", tr.ID),
		slog.String("json_key", jsonKey),
		slog.String("html_key", htmlKey))

	return url, nil
}
