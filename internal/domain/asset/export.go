package asset

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"mediastore/internal/pkg/validator"
)

// Export is a set of authorized, containment-checked paths ready to be zipped. Files are
// opened one at a time while writing.
type Export struct {
	entries []exportEntry
	skipped int
}

type exportEntry struct {
	name    string
	path    string
	modTime time.Time
}

func (e *Export) Included() int { return len(e.entries) }
func (e *Export) Skipped() int  { return e.skipped }

// WriteZip streams every entry into a zip archive.
func (e *Export) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, entry := range e.entries {
		if err := writeEntry(zw, entry); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, entry exportEntry) error {
	f, err := os.Open(entry.path)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", entry.name, err)
	}
	defer f.Close()

	hdr := &zip.FileHeader{Name: entry.name, Method: zip.Deflate, Modified: entry.modTime}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", entry.name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("zip entry %s: %w", entry.name, err)
	}
	return nil
}

// PrepareExport re-authorizes every id and resolves the files that pass. Ids that are not
// visible, not stored locally, or fail containment are skipped.
func (s *Service) PrepareExport(ctx context.Context, req Requester, in ExportRequest) (*Export, error) {
	const op = "asset.PrepareExport"

	if fields := validator.Validate(in); fields != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Detail: "invalid request", Fields: fields}
	}

	exp := &Export{}
	seen := make(map[string]bool, len(in.IDs))
	for _, id := range in.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		a, err := s.authorize(ctx, op, req, id, false)
		if err != nil {
			if IsKind(err, KindInternal) {
				s.log.Warn("export authorization failed", "asset_id", id, "error", err)
			}
			exp.skipped++
			continue
		}
		if a.StorageProvider != ProviderLocalFS {
			exp.skipped++
			continue
		}
		abs, err := s.root.Resolve(a.StorageKey)
		if err != nil {
			s.log.Error("stored key failed containment check", "asset_id", a.ID, "key", a.StorageKey, "error", err)
			exp.skipped++
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			s.log.Warn("export skipped unreadable file", "asset_id", a.ID, "error", err)
			exp.skipped++
			continue
		}
		exp.entries = append(exp.entries, exportEntry{
			name:    a.ID + "." + ExtForMime(a.Mime),
			path:    abs,
			modTime: info.ModTime(),
		})
	}
	return exp, nil
}

// ExportFilename is the default download name for an archive built at t.
func ExportFilename(t time.Time) string {
	return "assets-" + t.UTC().Format("20060102-150405") + ".zip"
}
