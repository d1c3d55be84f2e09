// Package export serializes the dashboard's task table to a spreadsheet.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/terra-clan/planner-kpi/internal/models"
)

const sheetName = "Tasks"

var header = []string{"Title", "AssignedTo", "Bucket", "Plan", "Status", "DueDate", "CreatedDate"}

// naiveTimestamp renders a UTC instant without zone information. Spreadsheet
// consumers choke on zone-aware values, so the zone is stripped, not
// converted.
func naiveTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// WriteTasks writes the task rows as an XLSX workbook. Rows are written in
// the order given; callers pass them pre-sorted by due date.
func WriteTasks(w io.Writer, tasks []models.Task) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, task := range tasks {
		due := ""
		if task.DueDate != nil {
			due = naiveTimestamp(*task.DueDate)
		}

		values := []interface{}{
			task.Title,
			task.AssignedTo,
			task.Bucket,
			task.Plan,
			string(task.Status),
			due,
			naiveTimestamp(task.CreatedAt),
		}

		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
