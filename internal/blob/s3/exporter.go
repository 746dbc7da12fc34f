package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// SnapshotWriter is the upload surface the exporter needs.
type SnapshotWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Exporter uploads a batch run's confidence reports as a JSONL snapshot,
// one report per line, under a key partitioned by run month:
//
//	snapshots/2026/08/run-<uuid>.jsonl
type Exporter struct {
	writer SnapshotWriter
	prefix string
}

// NewExporter creates an Exporter writing under the given key prefix.
// An empty prefix defaults to "snapshots".
func NewExporter(writer SnapshotWriter, prefix string) *Exporter {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Exporter{writer: writer, prefix: prefix}
}

// ExportRun serializes the reports to JSONL and uploads them under the run's
// snapshot key, returning the key written.
func (e *Exporter) ExportRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, reports []domain.ConfidenceReport) (string, error) {
	buf, err := marshalJSONL(reports)
	if err != nil {
		return "", fmt.Errorf("s3blob: export run %s: %w", runID, err)
	}

	path := e.snapshotPath(runID, startedAt)
	if err := e.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: export run %s: %w", runID, err)
	}
	return path, nil
}

// snapshotPath builds the S3 key for a run snapshot.
func (e *Exporter) snapshotPath(runID uuid.UUID, startedAt time.Time) string {
	return fmt.Sprintf("%s/%s/run-%s.jsonl", e.prefix, startedAt.UTC().Format("2006/01"), runID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
