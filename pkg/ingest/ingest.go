// Package ingest is the import pipeline: it detects the format of a health
// export file, drives the matching adapter over it, folds the adapter's
// observations into a caller-owned aggregator, and persists the flushed
// records through the store.  One call handles one file; concurrent imports
// share nothing but the store underneath.
package ingest

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"health-analyzer/pkg/canonical"
	"health-analyzer/pkg/externaldb"
	"health-analyzer/pkg/logger"
)

// ErrUnsupportedFormat is returned when neither the extension nor the
// content sniff matches any adapter.  It is the only per-file condition that
// fails an import outright — everything row-level degrades to counted
// errors inside the ImportResult.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Store is what the orchestrator needs underneath: the canonical persistence
// contract plus the import-history table used to skip byte-identical
// re-uploads.
type Store interface {
	canonical.Store
	FindImportHistory(ctx context.Context, source, sourceID string) (bool, error)
	EnsureImportHistory(ctx context.Context, source, sourceID, status, message string) error
}

// Importer runs imports against one store.  SyncDays bounds how far back
// external-database imports reach; zero means no cutoff.
type Importer struct {
	Store    Store
	SyncDays int
}

// ImportFile ingests one file from disk.
func (imp *Importer) ImportFile(ctx context.Context, path string, userID int64) (*canonical.ImportResult, error) {
	return imp.importFile(ctx, filepath.Base(path), path, userID)
}

// ImportReader ingests an uploaded stream.  The payload is spooled to a
// temporary file first: archives and SQLite databases need random access,
// and the spool keeps upload memory flat no matter the file size.
func (imp *Importer) ImportReader(ctx context.Context, name string, r io.Reader, userID int64) (*canonical.ImportResult, error) {
	tmp, err := os.CreateTemp("", "health-import-*")
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	return imp.importFile(ctx, name, tmp.Name(), userID)
}

// importFile wraps the run with the buffered logger so a failed import
// replays its detail and a successful one prints a single line.
func (imp *Importer) importFile(ctx context.Context, name, path string, userID int64) (*canonical.ImportResult, error) {
	importID := newImportID()
	logger.Begin(importID)
	res, err := imp.run(ctx, importID, name, path, userID)
	if err != nil {
		logger.FlushError(importID, err)
	} else {
		logger.Success(importID, name)
	}
	return res, err
}

func (imp *Importer) run(ctx context.Context, importID, name, path string, userID int64) (*canonical.ImportResult, error) {
	digest, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", name, err)
	}
	seen, err := imp.Store.FindImportHistory(ctx, "upload", digest)
	if err != nil {
		// A broken lookup must not block the upload; the import just
		// loses its dedup shortcut for this file.
		logger.Append(importID, fmt.Sprintf("import history lookup failed: %v", err))
	}
	if seen {
		res := canonical.NewImportResult()
		res.AddWarning("file already imported, skipping")
		logger.Append(importID, fmt.Sprintf("%s matches a previous import (%s), skipping", name, digest[:12]))
		return res, nil
	}

	head := make([]byte, 512)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	f.Close()

	kind := DetectKind(name, head)
	logger.Append(importID, fmt.Sprintf("%s detected as %s", name, kind))

	var res *canonical.ImportResult
	switch kind {
	case KindSQLite:
		res, err = externaldb.Import(ctx, path, userID, imp.SyncDays, imp.Store)
		if err != nil {
			return nil, err
		}
	case KindUnknown:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	default:
		res, err = imp.runAdapter(ctx, kind, path, userID)
		if err != nil {
			return nil, err
		}
	}

	message := fmt.Sprintf("%s: %d inserted, %d updated, %d rows", name, res.TotalInserted(), res.TotalUpdated(), res.RowsParsed)
	if err := imp.Store.EnsureImportHistory(ctx, "upload", digest, "imported", message); err != nil {
		logger.Append(importID, fmt.Sprintf("import history not recorded: %v", err))
	}
	logger.Append(importID, message)
	return res, nil
}

// runAdapter drives one format adapter over the file and persists the
// aggregated snapshot.
func (imp *Importer) runAdapter(ctx context.Context, kind Kind, path string, userID int64) (*canonical.ImportResult, error) {
	res := canonical.NewImportResult()
	agg := canonical.NewAggregator(userID, string(kind))

	switch kind {
	case KindArchive:
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		err = parseArchive(&zr.Reader, agg, res)
		zr.Close()
		if err != nil {
			return nil, err
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		err = parseFlat(kind, f, agg, res)
		f.Close()
		if err != nil {
			return nil, err
		}
		res.FilesParsed = 1
	}

	if err := agg.Flush().Persist(ctx, imp.Store, res); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	return res, nil
}

// parseFlat dispatches the single-stream adapters.
func parseFlat(kind Kind, r io.Reader, agg *canonical.Aggregator, res *canonical.ImportResult) error {
	switch kind {
	case KindCSV:
		return parseTabular(r, agg, res)
	case KindExcel:
		return parseExcel(r, agg, res)
	case KindTCX:
		return parseTCX(r, agg, res)
	case KindGPX:
		return parseGPX(r, agg, res)
	case KindHealthXML:
		return parseHealthXML(r, agg, res)
	case KindFIT:
		return parseFIT(r, agg, res)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind)
}

// hashFile streams the file through SHA-256 so re-uploads of byte-identical
// exports can be skipped via import history.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

const importIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newImportID produces a short tag for correlating an import's log lines.
func newImportID() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = importIDAlphabet[rand.Intn(len(importIDAlphabet))]
	}
	return string(b)
}
