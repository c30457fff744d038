package ingest

import (
	"archive/zip"
	"encoding/csv"
	"path/filepath"
	"strings"

	"health-analyzer/pkg/canonical"
)

// parseArchive walks a ZIP of CSVs entry by entry, one open stream at a
// time — the archive is never extracted to disk or memory as a whole.  Each
// CSV entry's header is sniffed; entries with no recognizable shape are
// skipped silently, and an archive where nothing matched surfaces a warning
// so the caller can report "no recognizable data found" without treating the
// upload as a failure.
func parseArchive(zr *zip.Reader, agg *canonical.Aggregator, res *canonical.ImportResult) error {
	recognized := 0
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(zf.Name)); ext != ".csv" && ext != ".txt" && ext != ".tsv" {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			res.AddError("archive entry %q: %v", zf.Name, err)
			continue
		}
		br := newHeaderReader(rc)
		shape := sniffEntryShape(br)
		if shape == shapeUnknown {
			rc.Close()
			continue
		}
		recognized++
		res.FilesParsed++
		if err := parseTabular(br, agg, res); err != nil {
			res.AddError("archive entry %q: %v", zf.Name, err)
		}
		rc.Close()
	}
	if recognized == 0 {
		res.AddWarning("no recognizable data found in archive")
	}
	return nil
}

// sniffEntryShape peeks an entry's header line and classifies it without
// consuming the stream.
func sniffEntryShape(br *headerReader) rowShape {
	headerLine, err := br.peekLine()
	if err != nil {
		return shapeUnknown
	}
	cr := csv.NewReader(strings.NewReader(headerLine))
	cr.Comma = detectDelimiter(headerLine)
	cr.LazyQuotes = true
	headers, err := cr.Read()
	if err != nil {
		return shapeUnknown
	}
	return classifyHeader(headers)
}
