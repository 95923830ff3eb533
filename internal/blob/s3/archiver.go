package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// multipartThreshold switches uploads to the multipart path.
const multipartThreshold = 16 * 1024 * 1024

// LedgerArchiveStore is the part of the funding ledger the archiver needs.
type LedgerArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.FundingAction, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// Archiver implements domain.Archiver. Ledger rows older than the cutoff are
// written as JSON lines, one object per batch, and deleted from the store
// only after the upload succeeded.
type Archiver struct {
	writer    domain.BlobWriter
	ledger    LedgerArchiveStore
	audit     domain.AuditStore
	batchSize int
	now       func() time.Time
}

// NewArchiver creates an Archiver moving batchSize rows per object.
func NewArchiver(writer domain.BlobWriter, ledger LedgerArchiveStore, audit domain.AuditStore, batchSize int) *Archiver {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Archiver{
		writer:    writer,
		ledger:    ledger,
		audit:     audit,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// ArchiveFundingActions archives every ledger row created before the cutoff
// and returns how many rows were moved.
func (a *Archiver) ArchiveFundingActions(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for part := 0; ; part++ {
		rows, err := a.ledger.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive funding actions query: %w", err)
		}
		if len(rows) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(rows)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive funding actions marshal: %w", err)
		}

		path := archivePath(before, a.now(), part)
		if len(buf) > multipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: archive funding actions upload: %w", err)
		}

		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		deleted, err := a.ledger.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive funding actions delete: %w", err)
		}
		total += deleted

		if err := a.audit.Log(ctx, "archive.funding_actions", map[string]any{
			"path":   path,
			"count":  len(rows),
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			return total, fmt.Errorf("s3blob: archive funding actions audit log: %w", err)
		}

		if len(rows) < a.batchSize {
			return total, nil
		}
	}
}

// archivePath partitions archives by cutoff date and run time:
//
//	funding_actions/2026-01-31/20260430T030000Z-0000.jsonl
func archivePath(before, run time.Time, part int) string {
	return fmt.Sprintf("funding_actions/%s/%s-%04d.jsonl",
		before.UTC().Format("2006-01-02"), run.UTC().Format("20060102T150405Z"), part)
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

var _ domain.Archiver = (*Archiver)(nil)
