// Package archive copies committed batches to object storage as newline-delimited JSON.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/aura-marketing/etl/internal/models"
	"github.com/aura-marketing/etl/internal/warehouse"
)

// ContentType of archived batches.
const ContentType = "application/x-ndjson"

// Uploader is satisfied by *storage.S3.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Archiver writes one object per run.
type Archiver struct {
	up     Uploader
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// New creates an archiver writing under prefix.
func New(up Uploader, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{up: up, prefix: prefix, logger: logger, now: time.Now}
}

// Archive uploads records and returns the object key.
func (a *Archiver) Archive(ctx context.Context, runID string, table warehouse.TableRef, records []models.AdEventRecord) (string, error) {
	body, err := Encode(records)
	if err != nil {
		return "", err
	}
	key := Key(a.prefix, table, runID, a.now())
	uri, err := a.up.Upload(ctx, key, ContentType, bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	a.logger.Info("batch archived", zap.String("run_id", runID), zap.String("uri", uri), zap.Int("rows", len(records)))
	return key, nil
}

// Key returns <prefix>/<schema.table>/dt=YYYY-MM-DD/<run_id>.ndjson, partitioned by the UTC date of at.
func Key(prefix string, table warehouse.TableRef, runID string, at time.Time) string {
	return path.Join(prefix, table.String(), "dt="+at.UTC().Format(time.DateOnly), runID+".ndjson")
}

// Encode renders records as one JSON object per line.
func Encode(records []models.AdEventRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
