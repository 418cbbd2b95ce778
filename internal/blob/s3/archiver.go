package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// multipartThreshold is the payload size above which archives are uploaded
// through the multipart manager.
const multipartThreshold = 16 << 20

const (
	archivePrefix    = "archive/"
	jsonlContentType = "application/x-ndjson"
)

// ResolutionArchiveStore provides read access to resolution records for
// archival purposes.
type ResolutionArchiveStore interface {
	// ListBefore returns all records resolved strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.ResolutionRecord, error)
}

// ChallengeArchiveStore provides read access to challenges for archival
// purposes.
type ChallengeArchiveStore interface {
	// ListBefore returns all challenges filed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Challenge, error)
}

// BlobChecker reports whether an object already exists.
type BlobChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, and uploading the result to S3.
//
// Archived rows stay in Postgres. Resolution records are the audit trail and
// are never deleted by this service.
type ArchiveImpl struct {
	writer      domain.BlobWriter
	checker     BlobChecker
	resolutions ResolutionArchiveStore
	challenges  ChallengeArchiveStore
	audit       domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl. checker may be nil, in which case
// an existing archive for the same month is overwritten.
func NewArchiver(
	writer domain.BlobWriter,
	checker BlobChecker,
	resolutions ResolutionArchiveStore,
	challenges ChallengeArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:      writer,
		checker:     checker,
		resolutions: resolutions,
		challenges:  challenges,
		audit:       audit,
	}
}

// ArchiveResolutions uploads every resolution record before the cutoff to
// archive/resolutions/YYYY-MM.jsonl and returns the number archived.
func (a *ArchiveImpl) ArchiveResolutions(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.resolutions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive resolutions query: %w", err)
	}
	return archive(ctx, a, "resolutions", before, recs)
}

// ArchiveChallenges uploads every challenge before the cutoff to
// archive/challenges/YYYY-MM.jsonl and returns the number archived.
func (a *ArchiveImpl) ArchiveChallenges(ctx context.Context, before time.Time) (int64, error) {
	chs, err := a.challenges.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive challenges query: %w", err)
	}
	return archive(ctx, a, "challenges", before, chs)
}

func archive[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	path := archivePath(kind, before)
	if a.checker != nil {
		exists, err := a.checker.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive %s exists check: %w", kind, err)
		}
		if exists {
			return 0, nil
		}
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))

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

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/resolutions/2025-01.jsonl
//	archive/challenges/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("%s%s/%s.jsonl", archivePrefix, kind, before.UTC().Format("2006-01"))
}

// ArchiveObject is one monthly archive file.
type ArchiveObject struct {
	Kind         string
	Month        string
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobLister lists objects under a prefix.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// ListArchives returns the monthly archive files of kind, or of every kind
// when kind is empty, oldest month first. Keys that do not follow the
// archive layout are ignored.
func ListArchives(ctx context.Context, lister BlobLister, kind string) ([]ArchiveObject, error) {
	prefix := archivePrefix
	if kind != "" {
		prefix += kind + "/"
	}
	infos, err := lister.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := make([]ArchiveObject, 0, len(infos))
	for _, info := range infos {
		k, month, ok := parseArchivePath(info.Path)
		if !ok {
			continue
		}
		out = append(out, ArchiveObject{
			Kind:         k,
			Month:        month,
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func parseArchivePath(path string) (kind, month string, ok bool) {
	rest, found := strings.CutPrefix(path, archivePrefix)
	if !found {
		return "", "", false
	}
	kind, file, found := strings.Cut(rest, "/")
	if !found || kind == "" {
		return "", "", false
	}
	month, found = strings.CutSuffix(file, ".jsonl")
	if !found {
		return "", "", false
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return "", "", false
	}
	return kind, month, true
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
