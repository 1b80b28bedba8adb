// Package export writes the end-of-session artifacts: the spreadsheet mirror
// of the captured records and the PDF rendition of the saved document.
package export

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/GouthamSPC/Screenshot2/src/record"
)

const (
	imageColumn      = "C"
	imageColumnWidth = 40
	// maxRowHeight is the largest row height a worksheet accepts, in points.
	maxRowHeight = 409
)

var header = []interface{}{"Counter", "Description", "Image"}

// RowResult is the outcome of one record's row.
type RowResult struct {
	Row       int
	ImagePath string
	Err       error
}

// SheetReport summarizes a spreadsheet export.
type SheetReport struct {
	Path     string
	Rows     []RowResult
	// Appended is true when rows were added to an existing workbook.
	Appended bool
}

// Failed returns the number of rows whose image could not be embedded.
func (r SheetReport) Failed() int {
	n := 0
	for _, row := range r.Rows {
		if row.Err != nil {
			n++
		}
	}
	return n
}

// RowHeight converts an image height in pixels to a row height in points.
func RowHeight(heightPx int) float64 {
	h := float64(heightPx) * 72 / 96
	if h > maxRowHeight {
		return maxRowHeight
	}
	return h
}

// WriteSpreadsheet writes a new workbook at path with a header row and one
// row per record, image embedded in column C. Any file at path is replaced.
// A row whose image fails gets an error string instead; only a failure to
// save the workbook is returned as an error.
func WriteSpreadsheet(records []record.Record, path string) (SheetReport, error) {
	return writeSheet(records, path, false)
}

// AppendSpreadsheet adds the records after the last used row of the workbook
// at path, keeping its earlier rows and images. Without a file at path it
// behaves like WriteSpreadsheet.
func AppendSpreadsheet(records []record.Record, path string) (SheetReport, error) {
	return writeSheet(records, path, true)
}

func writeSheet(records []record.Record, path string, appendExisting bool) (SheetReport, error) {
	report := SheetReport{Path: path}

	f, appended, err := openWorkbook(path, appendExisting)
	if err != nil {
		return report, err
	}
	report.Appended = appended
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close workbook: %v", err)
		}
	}()
	sheet := f.GetSheetName(0)

	existing, err := f.GetRows(sheet)
	if err != nil {
		return report, fmt.Errorf("failed to read rows of %s: %w", path, err)
	}
	next := len(existing) + 1
	if next == 1 {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return report, fmt.Errorf("failed to write header: %w", err)
		}
		next = 2
	}
	if err := f.SetColWidth(sheet, imageColumn, imageColumn, imageColumnWidth); err != nil {
		return report, fmt.Errorf("failed to size image column: %w", err)
	}

	for i, rec := range records {
		row := next + i
		res := RowResult{Row: row, ImagePath: rec.ImagePath}

		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &[]interface{}{rec.Counter, rec.Description}); err != nil {
			return report, fmt.Errorf("failed to write row %d: %w", row, err)
		}

		if err := embedImage(f, sheet, row, rec.ImagePath); err != nil {
			log.Printf("Error adding image to spreadsheet: %v", err)
			res.Err = err
			cell := fmt.Sprintf("%s%d", imageColumn, row)
			if err := f.SetCellValue(sheet, cell, fmt.Sprintf("Error: %v", err)); err != nil {
				return report, fmt.Errorf("failed to write %s: %w", cell, err)
			}
		} else {
			log.Printf("Added image to spreadsheet: %s", rec.ImagePath)
		}
		report.Rows = append(report.Rows, res)
	}

	if err := f.SaveAs(path); err != nil {
		return report, fmt.Errorf("failed to save spreadsheet %s: %w", path, err)
	}
	log.Printf("Spreadsheet with %d new rows written to %s (appended=%v, %d image errors)", len(records), path, appended, report.Failed())
	return report, nil
}

// openWorkbook opens the workbook at path when appendExisting is set and a
// file exists there; otherwise it creates a new one.
func openWorkbook(path string, appendExisting bool) (f *excelize.File, appended bool, err error) {
	if !appendExisting {
		return excelize.NewFile(), false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return excelize.NewFile(), false, nil
		}
		return nil, false, fmt.Errorf("failed to stat spreadsheet %s: %w", path, err)
	}
	f, err = excelize.OpenFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open spreadsheet %s: %w", path, err)
	}
	return f, true, nil
}

func embedImage(f *excelize.File, sheet string, row int, imagePath string) error {
	file, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", imagePath, err)
	}

	cell := fmt.Sprintf("%s%d", imageColumn, row)
	if err := f.AddPicture(sheet, cell, imagePath, &excelize.GraphicOptions{
		AltText:         imagePath,
		PrintObject:     boolPtr(true),
		LockAspectRatio: true,
	}); err != nil {
		return err
	}
	return f.SetRowHeight(sheet, row, RowHeight(cfg.Height))
}

func boolPtr(b bool) *bool { return &b }
