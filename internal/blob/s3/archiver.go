package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

// Archiver exports old lifecycle records (purchases, redemptions, claims)
// to JSONL objects in blob storage. Deletion of archived rows from the
// primary store is intentionally not performed here; that is a separate,
// explicit step executed after the archive has been verified.
type Archiver struct {
	writer  domain.BlobWriter
	records domain.RecordStore
	audit   domain.AuditStore
}

// NewArchiver creates an Archiver over the given writer and record store.
func NewArchiver(writer domain.BlobWriter, records domain.RecordStore, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, records: records, audit: audit}
}

// ArchivePurchases exports purchase records created before the cutoff to
// archive/purchases/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchivePurchases(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.records.ListPurchasesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive purchases query: %w", err)
	}
	return archiveUpload(ctx, a, "purchases", before, recs)
}

// ArchiveRedemptions exports redemption records created before the cutoff
// to archive/redemptions/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchiveRedemptions(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.records.ListRedemptionsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive redemptions query: %w", err)
	}
	return archiveUpload(ctx, a, "redemptions", before, recs)
}

// ArchiveClaims exports claim records created before the cutoff to
// archive/claims/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchiveClaims(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.records.ListClaimsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive claims query: %w", err)
	}
	return archiveUpload(ctx, a, "claims", before, recs)
}

// ArchiveAll runs the three exports and returns the total record count,
// stopping at the first failure.
func (a *Archiver) ArchiveAll(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, fn := range []func(context.Context, time.Time) (int64, error){
		a.ArchivePurchases, a.ArchiveRedemptions, a.ArchiveClaims,
	} {
		n, err := fn(ctx, before)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func archiveUpload[T any](ctx context.Context, a *Archiver, kind string, before time.Time, recs []T) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(recs))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by
// the year-month of the cutoff:
//
//	archive/purchases/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
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
