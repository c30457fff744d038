package ingest

import (
	"bufio"
	"io"
	"strings"

	"health-analyzer/pkg/canonical"
	"health-analyzer/pkg/fieldmap"
	"health-analyzer/pkg/normalize"
)

// Health-record XML exports encode each observation as one flat element per
// line and routinely exceed 500 MB.  Running a real XML parser over that is
// pointless work: the pipeline scans line by line for record markers and
// pulls attributes out with a string scanner, never holding more than one
// line in memory.

// maxHealthXMLLine bounds the scanner buffer; record lines are short but the
// export's DTD header can be a single multi-kilobyte line.
const maxHealthXMLLine = 4 * 1024 * 1024

// parseHealthXML streams a record-attribute export, recognizing step-count,
// heart-rate (plus resting variant), and categorical sleep-analysis records.
// Counts accumulate per day in the aggregator and are averaged or summed at
// flush.  Unrecognized record types are simply not ours to interpret.
func parseHealthXML(r io.Reader, agg *canonical.Aggregator, res *canonical.ImportResult) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxHealthXMLLine)

	found := 0
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "<Record ") {
			continue
		}
		recType, ok := xmlAttr(line, "type")
		if !ok {
			res.AddError("record line without type attribute")
			continue
		}
		startRaw, ok := xmlAttr(line, "startDate")
		if !ok {
			res.AddError("record %q without startDate", recType)
			continue
		}
		start, ok := normalize.Time(startRaw)
		if !ok {
			res.AddError("record %q with unparseable startDate %q", recType, startRaw)
			continue
		}
		day := start.Format(normalize.ISODate)
		value, _ := xmlAttr(line, "value")

		// Order matters: "RestingHeartRate" also contains "HeartRate".
		switch {
		case strings.Contains(recType, "SleepAnalysis"):
			if !strings.Contains(value, "Asleep") {
				continue // InBed and Awake records are not sleep time
			}
			endRaw, ok := xmlAttr(line, "endDate")
			if !ok {
				res.AddError("sleep record without endDate")
				continue
			}
			end, ok := normalize.Time(endRaw)
			if !ok {
				res.AddError("sleep record with unparseable endDate %q", endRaw)
				continue
			}
			agg.AddSleepInterval(start, end)
			found++
			res.RowsParsed++

		case strings.Contains(recType, "StepCount"):
			v, ok := fieldmap.Number(value)
			if !ok {
				res.AddError("step record with non-numeric value %q", value)
				continue
			}
			agg.AddSteps(day, int64(v))
			found++
			res.RowsParsed++

		case strings.Contains(recType, "RestingHeartRate"):
			v, ok := fieldmap.Number(value)
			if !ok {
				continue
			}
			rec := agg.Day(day)
			if rec.RestingHeartRate == nil {
				rec.RestingHeartRate = canonical.Int(int64(v))
			}
			agg.AddSample(canonical.BiometricSample{
				Type:     "resting_heart_rate",
				StartAt:  start.Unix(),
				ValueNum: canonical.Float(v),
				Unit:     "bpm",
			})
			found++
			res.RowsParsed++

		case strings.Contains(recType, "HeartRate"):
			v, ok := fieldmap.Number(value)
			if !ok {
				continue
			}
			agg.AddHeartRate(day, v)
			agg.AddSample(canonical.BiometricSample{
				Type:     "heart_rate",
				StartAt:  start.Unix(),
				ValueNum: canonical.Float(v),
				Unit:     "bpm",
			})
			found++
			res.RowsParsed++
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if found == 0 {
		res.AddWarning("no recognizable records in health export")
	}
	return nil
}

// xmlAttr extracts one attribute value from a single-line element without
// invoking an XML parser.  Good enough for machine-written exports where
// attributes never contain escaped quotes.
func xmlAttr(line, key string) (string, bool) {
	// The leading space keeps "type" from matching inside a longer
	// attribute name such as sourceType.
	marker := " " + key + `="`
	i := strings.Index(line, marker)
	if i < 0 {
		return "", false
	}
	rest := line[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}
