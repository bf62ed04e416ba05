// Package report materializes enrichment results into a formatted picking
// report workbook and persists it with retry on file contention.
package report

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/DeviceIngineering/-tocka-marketplace/constants"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/common"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/enrich"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
)

const sheet = "Sheet1"

// Column widths of the generated report, tuned for warehouse printouts.
var colWidths = map[string]float64{
	"A": 13,  // sticker
	"B": 7,   // quantity
	"C": 12,  // article
	"D": 26,  // slot summary
	"E": 104, // product name
}

// Writer assembles and persists picking reports.
type Writer struct {
	logger     *slog.Logger
	retries    int
	retryDelay time.Duration

	// save is swappable in tests to simulate contention.
	save func(f *excelize.File, path string) error
}

func NewWriter(logger *slog.Logger, retries int, retryDelay time.Duration) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if retries <= 0 {
		retries = 5
	}
	return &Writer{
		logger:     logger,
		retries:    retries,
		retryDelay: retryDelay,
		save:       func(f *excelize.File, path string) error { return f.SaveAs(path) },
	}
}

// Write builds the report for one job and persists it at dest. Row order
// equals input order; every input row yields exactly one output row even when
// its lookup came back empty.
func (w *Writer) Write(jobID string, rows []enrich.InputRow, results []enrich.Result, dest string, registry jobs.Registry) error {
	if len(rows) != len(results) {
		return fmt.Errorf("rows/results length mismatch: %d vs %d", len(rows), len(results))
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, h := range constants.ReportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		sticker := ResolveSticker(row.Sticker, row.OrderCode)
		values := []any{sticker, row.Quantity, results[i].Article, results[i].SlotSummary, results[i].ProductName}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	if err := w.style(f, len(rows)); err != nil {
		return fmt.Errorf("style report: %w", err)
	}
	return w.saveWithRetries(f, dest, jobID, registry)
}

func (w *Writer) style(f *excelize.File, dataRows int) error {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	centered, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	leftAligned, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	stickerStyle, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Font:      &excelize.Font{Bold: true, Size: 12},
	})
	if err != nil {
		return err
	}

	lastRow := dataRows + 1
	if err := f.SetCellStyle(sheet, "A1", fmt.Sprintf("D%d", lastRow), centered); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "E1", fmt.Sprintf("E%d", lastRow), leftAligned); err != nil {
		return err
	}
	for col, width := range colWidths {
		_ = f.SetColWidth(sheet, col, col, width)
	}

	// Sticker cells get split and emphasized on data rows only.
	for r := 2; r <= lastRow; r++ {
		cell := fmt.Sprintf("A%d", r)
		value, _ := f.GetCellValue(sheet, cell)
		split, styled := SplitSticker(value)
		if !styled {
			continue
		}
		_ = f.SetCellValue(sheet, cell, split)
		_ = f.SetCellStyle(sheet, cell, cell, stickerStyle)
	}
	return nil
}

// saveWithRetries persists the workbook, waiting out transient contention
// (the destination open in a spreadsheet program elsewhere). Contention waits
// the configured delay between attempts; other save errors get a short pause
// before the next try. A cancel landing between attempts aborts without
// persisting.
func (w *Writer) saveWithRetries(f *excelize.File, dest, jobID string, registry jobs.Registry) error {
	var lastErr error
	for attempt := 1; attempt <= w.retries; attempt++ {
		registry.SetStatus(jobID, fmt.Sprintf("saving report, attempt %d of %d", attempt, w.retries))
		if registry.IsCancelled(jobID) {
			return common.ErrCancelled
		}
		err := w.save(f, dest)
		if err == nil {
			w.logger.Info("report.save.ok", "job_id", jobID, "path", dest, "attempt", attempt)
			return nil
		}
		lastErr = err
		w.logger.Warn("report.save.retry", "job_id", jobID, "path", dest, "attempt", attempt, "error", err)
		if attempt == w.retries {
			break
		}
		time.Sleep(w.retryPause(err))
	}
	return fmt.Errorf("save report after %d attempts: %w", w.retries, lastErr)
}

func (w *Writer) retryPause(err error) time.Duration {
	if isContention(err) {
		return w.retryDelay
	}
	return time.Second
}

// isContention reports whether the save failed because the destination is
// held open elsewhere. Classified by errno: other filesystem faults (a
// missing directory, a full disk) are not worth the long contention wait.
func isContention(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EBUSY, syscall.EACCES, syscall.EPERM:
		return true
	}
	return false
}
