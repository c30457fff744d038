package ingest

import "testing"

// TestDetectKind pins the extension and magic-byte routing: the declared
// extension wins where unambiguous, .xml and extensionless files fall back
// to the content sniff.
func TestDetectKind(t *testing.T) {
	t.Parallel()

	fitHead := append([]byte{0x0e, 0x10, 0x43, 0x08, 0x00, 0x00, 0x00, 0x00}, []byte(".FIT")...)

	cases := []struct {
		name     string
		filename string
		head     []byte
		want     Kind
	}{
		{"csv extension", "export.csv", nil, KindCSV},
		{"tsv extension", "export.tsv", nil, KindCSV},
		{"xlsx extension", "data.xlsx", nil, KindExcel},
		{"tcx extension", "run.tcx", nil, KindTCX},
		{"gpx extension", "run.gpx", nil, KindGPX},
		{"fit extension", "workout.fit", nil, KindFIT},
		{"zip extension", "backup.zip", nil, KindArchive},
		{"sqlite extension", "garmin.db", nil, KindSQLite},
		{"xml carrying health records", "export.xml",
			[]byte(`<?xml version="1.0"?><HealthData locale="en_US">`), KindHealthXML},
		{"xml carrying gpx", "track.xml",
			[]byte(`<?xml version="1.0"?><gpx xmlns="http://www.topografix.com/GPX/1/1">`), KindGPX},
		{"xml carrying tcx", "activity.xml",
			[]byte(`<?xml version="1.0"?><TrainingCenterDatabase>`), KindTCX},
		{"xml with no markers defaults to health", "mystery.xml",
			[]byte(`<unknown/>`), KindHealthXML},
		{"no extension sqlite magic", "upload", []byte("SQLite format 3\x00rest"), KindSQLite},
		{"no extension fit header", "upload", fitHead, KindFIT},
		{"no extension xlsx container", "upload",
			[]byte("PK\x03\x04....[Content_Types].xml"), KindExcel},
		{"no extension plain zip", "upload", []byte("PK\x03\x04....data/file.csv"), KindArchive},
		{"no extension delimited text", "upload", []byte("Date,Steps\n2024-01-05,8532\n"), KindCSV},
		{"no extension binary garbage", "upload", []byte{0x00, 0x01, 0x02, 0x03}, KindUnknown},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectKind(c.filename, c.head); got != c.want {
				t.Errorf("DetectKind(%q) = %s, want %s", c.filename, got, c.want)
			}
		})
	}
}

// TestDetectDelimiter checks the separator vote, including the comma
// tie-break.
func TestDetectDelimiter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line string
		want rune
	}{
		{"Date,Steps,Calories", ','},
		{"Date;Steps;Calories", ';'},
		{"Date\tSteps\tCalories", '\t'},
		{"Date,Steps;Calories,Distance", ','},
	}
	for _, c := range cases {
		if got := detectDelimiter(c.line); got != c.want {
			t.Errorf("detectDelimiter(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}
