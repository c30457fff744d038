package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"health-analyzer/pkg/canonical"
)

// parseExcel treats every sheet of a workbook as an independent tabular
// file: first row is the header, the sheet is classified once, and rows are
// streamed through the excelize row iterator rather than loaded wholesale.
// Sheets with no recognizable shape are skipped; a workbook where no sheet
// matched gets the same warning the archive adapter uses.
func parseExcel(r io.Reader, agg *canonical.Aggregator, res *canonical.ImportResult) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		// Legacy binary .xls workbooks land here too: only the OOXML
		// container is readable, everything else is unsupported.
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	recognized := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.Rows(sheet)
		if err != nil {
			res.AddError("sheet %q: %v", sheet, err)
			continue
		}
		if !rows.Next() {
			rows.Close()
			continue
		}
		headers, err := rows.Columns()
		if err != nil {
			res.AddError("sheet %q header: %v", sheet, err)
			rows.Close()
			continue
		}
		shape := classifyHeader(headers)
		if shape == shapeUnknown {
			rows.Close()
			continue
		}
		recognized++

		for rows.Next() {
			record, err := rows.Columns()
			if err != nil {
				res.AddError("sheet %q: bad row: %v", sheet, err)
				continue
			}
			if len(record) == 0 {
				continue
			}
			res.RowsParsed++
			handleRow(shape, rowToMap(headers, record), agg, res)
		}
		if err := rows.Error(); err != nil {
			res.AddError("sheet %q: %v", sheet, err)
		}
		rows.Close()
	}
	if recognized == 0 {
		res.AddWarning("no recognizable sheets in workbook")
	}
	return nil
}
