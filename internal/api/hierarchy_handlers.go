package api

import (
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/planner-kpi/internal/models"
)

// handleImportHierarchy replaces the reporting hierarchy from a CSV body with
// two columns: employee email, manager email. A header row is tolerated and
// skipped when its first cell is not an email address.
func (s *Server) handleImportHierarchy(w http.ResponseWriter, r *http.Request) {
	reader := csv.NewReader(r.Body)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records []models.HierarchyRecord
	row := 0
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_csv", err.Error())
			return
		}
		row++

		if len(fields) < 2 {
			respondError(w, http.StatusBadRequest, "invalid_csv", "each row needs an employee email and a manager email")
			return
		}

		employee := models.NormalizeEmail(fields[0])
		manager := models.NormalizeEmail(fields[1])

		// Header row
		if row == 1 && !strings.Contains(employee, "@") {
			continue
		}

		if employee == "" || manager == "" {
			slog.Warn("skipping hierarchy row with empty email", "row", row)
			continue
		}

		records = append(records, models.HierarchyRecord{
			EmployeeEmail: employee,
			ManagerEmail:  manager,
		})
	}

	if len(records) == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "no hierarchy rows found in upload")
		return
	}

	if err := s.repo.ReplaceHierarchy(r.Context(), records); err != nil {
		slog.Error("failed to replace hierarchy", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to store hierarchy")
		return
	}

	viewer := ""
	if session := SessionFromContext(r.Context()); session != nil {
		viewer = session.Viewer
	}
	slog.Info("reporting hierarchy replaced", "rows", len(records), "by", viewer)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"imported": len(records),
	})
}
