package ingest

import (
	"archive/zip"
	"bytes"
	"testing"

	"health-analyzer/pkg/canonical"
)

// buildZip assembles an in-memory archive from name → content pairs.
func buildZip(t *testing.T, entries map[string]string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %q: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reopen zip: %v", err)
	}
	return zr
}

// TestParseArchiveCountsRecognizedEntries pins the files-parsed semantics:
// an archive with one recognizable CSV next to an unrelated one reports one
// parsed file and no warnings.
func TestParseArchiveCountsRecognizedEntries(t *testing.T) {
	t.Parallel()

	zr := buildZip(t, map[string]string{
		"activities.csv": "Date,Steps\n2024-01-05,8532\n",
		"unrelated.csv":  "Foo,Bar\n1,2\n",
		"readme.txt":     "not,tabular,health\ndata,at,all\n",
		"photo.jpg":      "\xff\xd8\xff",
	})

	agg := canonical.NewAggregator(1, "archive")
	res := canonical.NewImportResult()
	if err := parseArchive(zr, agg, res); err != nil {
		t.Fatalf("parseArchive: %v", err)
	}

	if res.FilesParsed != 1 {
		t.Errorf("FilesParsed = %d, want 1", res.FilesParsed)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none when something was recognized", res.Warnings)
	}

	snap := agg.Flush()
	if len(snap.Activity) != 1 || snap.Activity[0].Steps == nil || *snap.Activity[0].Steps != 8532 {
		t.Fatalf("activity from archive entry missing: %+v", snap.Activity)
	}
}

// TestParseArchiveNothingRecognized verifies the no-data warning path.
func TestParseArchiveNothingRecognized(t *testing.T) {
	t.Parallel()

	zr := buildZip(t, map[string]string{
		"unrelated.csv": "Foo,Bar\n1,2\n",
	})

	agg := canonical.NewAggregator(1, "archive")
	res := canonical.NewImportResult()
	if err := parseArchive(zr, agg, res); err != nil {
		t.Fatalf("parseArchive: %v", err)
	}
	if res.FilesParsed != 0 {
		t.Errorf("FilesParsed = %d, want 0", res.FilesParsed)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want the no-data warning", res.Warnings)
	}
}

// TestParseArchiveMixedShapes checks that different entry shapes land in
// their own entity kinds within a single import.
func TestParseArchiveMixedShapes(t *testing.T) {
	t.Parallel()

	zr := buildZip(t, map[string]string{
		"steps.csv": "Date,Steps\n2024-01-05,1000\n",
		"sleep.csv": "Date,Sleep Score,Sleep Duration\n2024-01-05,80,07:00\n",
		"scale.csv": "Date,Weight (kg),Body Fat %\n2024-01-05,81.5,18.2\n",
	})

	agg := canonical.NewAggregator(1, "archive")
	res := canonical.NewImportResult()
	if err := parseArchive(zr, agg, res); err != nil {
		t.Fatalf("parseArchive: %v", err)
	}
	if res.FilesParsed != 3 {
		t.Fatalf("FilesParsed = %d, want 3", res.FilesParsed)
	}

	snap := agg.Flush()
	if len(snap.Activity) != 1 || len(snap.Sleep) != 1 || len(snap.Body) != 1 {
		t.Fatalf("entity spread = %d/%d/%d activity/sleep/body, want 1/1/1",
			len(snap.Activity), len(snap.Sleep), len(snap.Body))
	}
	if snap.Body[0].WeightKg == nil || *snap.Body[0].WeightKg != 81.5 {
		t.Errorf("weight = %v, want 81.5", snap.Body[0].WeightKg)
	}
	if snap.Body[0].RawPayload == "" {
		t.Error("body record lost its raw payload")
	}
}
