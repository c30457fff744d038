package ingest

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Kind identifies a source file family the pipeline knows how to parse.
type Kind string

const (
	KindCSV       Kind = "csv"
	KindExcel     Kind = "excel"
	KindTCX       Kind = "tcx"
	KindGPX       Kind = "gpx"
	KindHealthXML Kind = "health-xml"
	KindArchive   Kind = "archive"
	KindFIT       Kind = "fit"
	KindSQLite    Kind = "sqlite"
	KindUnknown   Kind = "unknown"
)

// sqliteMagic is the 16-byte header every SQLite database starts with.
var sqliteMagic = []byte("SQLite format 3\x00")

// DetectKind resolves the adapter for a file: the declared extension first,
// then a content sniff over the first block when the extension is missing or
// ambiguous.  XML needs the sniff even with a good extension because .xml
// may carry TCX, GPX, or a health-record export.
func DetectKind(filename string, head []byte) Kind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv":
		return KindCSV
	case ".xlsx", ".xls", ".xlsm":
		return KindExcel
	case ".tcx":
		return KindTCX
	case ".gpx":
		return KindGPX
	case ".fit":
		return KindFIT
	case ".zip":
		return KindArchive
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite
	case ".xml":
		if k := sniffXML(head); k != KindUnknown {
			return k
		}
		return KindHealthXML
	}
	return sniffContent(head)
}

// sniffContent classifies by magic bytes and recognizable markers alone.
func sniffContent(head []byte) Kind {
	if bytes.HasPrefix(head, sqliteMagic) {
		return KindSQLite
	}
	// FIT files carry ".FIT" at offset 8 of the header.
	if len(head) >= 12 && bytes.Equal(head[8:12], []byte(".FIT")) {
		return KindFIT
	}
	if bytes.HasPrefix(head, []byte("PK\x03\x04")) {
		// Both xlsx workbooks and plain ZIP archives are PK containers; a
		// workbook's first entry is [Content_Types].xml.
		if bytes.Contains(head, []byte("[Content_Types]")) {
			return KindExcel
		}
		return KindArchive
	}
	if k := sniffXML(head); k != KindUnknown {
		return k
	}
	if looksDelimited(head) {
		return KindCSV
	}
	return KindUnknown
}

// sniffXML distinguishes the three XML families by their root markers.
func sniffXML(head []byte) Kind {
	if !bytes.Contains(head, []byte("<?xml")) && !bytes.Contains(head, []byte("<gpx")) &&
		!bytes.Contains(head, []byte("<TrainingCenterDatabase")) && !bytes.Contains(head, []byte("<HealthData")) {
		return KindUnknown
	}
	switch {
	case bytes.Contains(head, []byte("<gpx")), bytes.Contains(head, []byte("topografix.com/GPX")):
		return KindGPX
	case bytes.Contains(head, []byte("TrainingCenterDatabase")):
		return KindTCX
	case bytes.Contains(head, []byte("<HealthData")), bytes.Contains(head, []byte("<Record ")):
		return KindHealthXML
	}
	return KindUnknown
}

// looksDelimited guesses tabular text: a first line with at least one
// separator and no binary bytes.
func looksDelimited(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	if bytes.IndexByte(line, 0) >= 0 {
		return false
	}
	return bytes.ContainsAny(line, ",;\t")
}

// detectDelimiter picks the separator the header line actually uses.
// Comma wins ties to match the exports we see in practice.
func detectDelimiter(line string) rune {
	counts := map[rune]int{',': strings.Count(line, ","), ';': strings.Count(line, ";"), '\t': strings.Count(line, "\t")}
	best, bestN := ',', counts[',']
	if counts[';'] > bestN {
		best, bestN = ';', counts[';']
	}
	if counts['\t'] > bestN {
		best = '\t'
	}
	return best
}
