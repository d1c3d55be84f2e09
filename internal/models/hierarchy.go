package models

// HierarchyRecord is one row of the reporting hierarchy: an employee and the
// manager they report to. Emails are normalized (lowercase, trimmed) when the
// table is loaded, so consumers compare them directly.
type HierarchyRecord struct {
	EmployeeEmail string `json:"employee_email"`
	ManagerEmail  string `json:"manager_email"`
}
