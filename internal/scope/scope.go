package scope

import (
	"github.com/terra-clan/planner-kpi/internal/models"
)

// Resolve determines which emails the viewer may see tasks for. A viewer who
// never appears as a manager in the hierarchy sees only themselves; a manager
// sees themselves plus their direct reports, in hierarchy order.
//
// Inputs are expected to be normalized (lowercase, trimmed) at load time.
// The result always contains the viewer and never contains duplicates.
func Resolve(viewer string, hierarchy []models.HierarchyRecord) []string {
	result := []string{viewer}
	seen := map[string]bool{viewer: true}

	for _, rec := range hierarchy {
		if rec.ManagerEmail != viewer {
			continue
		}
		if seen[rec.EmployeeEmail] {
			continue
		}
		seen[rec.EmployeeEmail] = true
		result = append(result, rec.EmployeeEmail)
	}

	return result
}

// Contains reports whether email is inside the resolved scope
func Contains(scope []string, email string) bool {
	for _, s := range scope {
		if s == email {
			return true
		}
	}
	return false
}
