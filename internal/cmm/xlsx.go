package cmm

import (
	"bytes"
	"errors"
	"strings"

	"github.com/xuri/excelize/v2"

	"balloon/pkg/models"
)

var zipMagic = []byte("PK\x03\x04")

func isSpreadsheet(in *Input) bool {
	return in.Ext == ".xlsx" || in.Ext == ".xlsm" || bytes.HasPrefix(in.Data, zipMagic)
}

// parseSpreadsheet reads the first worksheet that yields records.
func parseSpreadsheet(in *Input) ([]models.MeasuredFeatureRecord, error) {
	const op = "parseSpreadsheet"

	f, err := excelize.OpenReader(bytes.NewReader(in.Data))
	if err != nil {
		return nil, WrapReportError(op, ErrUnreadableSpreadsheet, err.Error())
	}
	defer f.Close()

	var firstErr error
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		records, err := ParseRows(trimRows(rows), models.FormatSpreadsheet)
		if errors.Is(err, ErrNoHeader) || len(records) == 0 {
			continue
		}
		return records, nil
	}
	if firstErr != nil {
		return nil, WrapReportError(op, ErrUnreadableSpreadsheet, firstErr.Error())
	}
	return nil, nil
}

func trimRows(rows [][]string) [][]string {
	for _, row := range rows {
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
	}
	return rows
}
