package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// ClosedPositionSource is the slice of the history store the archiver needs.
type ClosedPositionSource interface {
	ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]domain.ClosedPosition, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

var _ domain.Archiver = (*Archiver)(nil)

// Archiver exports closed positions older than a cutoff to object storage as
// JSONL and then prunes them from the primary store. Rows are only deleted
// after the upload succeeded.
type Archiver struct {
	writer  domain.BlobWriter
	history ClosedPositionSource
	audit   domain.AuditStore // optional
	logger  *slog.Logger
	now     func() time.Time
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, history ClosedPositionSource, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		history: history,
		audit:   audit,
		logger:  logger.With(slog.String("component", "archiver")),
		now:     time.Now,
	}
}

// ArchiveClosedPositions uploads every position closed before the cutoff to
// archive/closed_positions/ and deletes them from the store. It returns the
// number of archived records.
func (a *Archiver) ArchiveClosedPositions(ctx context.Context, before time.Time) (int64, error) {
	closed, err := a.history.ListClosedBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions query: %w", err)
	}
	if len(closed) == 0 {
		a.logger.InfoContext(ctx, "nothing to archive", slog.Time("before", before))
		return 0, nil
	}

	buf, err := marshalJSONL(closed)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions marshal: %w", err)
	}

	path := archivePath("closed_positions", before, a.now())
	exists, err := a.writer.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions: %w", err)
	}
	if exists {
		return 0, fmt.Errorf("s3blob: archive closed positions: %s already exists", path)
	}

	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions upload: %w", err)
	}

	count := int64(len(closed))
	deleted, err := a.history.DeleteClosedBefore(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive closed positions prune: %w", err)
	}

	a.logger.InfoContext(ctx, "closed positions archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int64("deleted", deleted),
	)

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.closed_positions", map[string]any{
			"path":    path,
			"count":   count,
			"deleted": deleted,
			"before":  before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive closed positions audit log: %w", err)
		}
	}
	return count, nil
}

// archivePath builds the object key, partitioned by the cutoff date:
//
//	archive/closed_positions/2026-01-31/1769900000.jsonl
func archivePath(kind string, before, now time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%d.jsonl", kind, before.UTC().Format("2006-01-02"), now.Unix())
}

// marshalJSONL encodes records as newline-delimited JSON.
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
