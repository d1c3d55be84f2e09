package models

// AssigneeKPI pairs one assignee with the snapshot computed over their rows
type AssigneeKPI struct {
	AssignedTo string      `json:"assigned_to"`
	KPI        KPISnapshot `json:"kpi"`
}

// DashboardView is everything one render of the dashboard needs: the viewer's
// visibility scope, the aggregate snapshot, the per-assignee breakdown (only
// populated for managers), and the task table sorted by due date.
type DashboardView struct {
	Viewer    string        `json:"viewer"`
	Period    string        `json:"period"`
	Employee  string        `json:"employee,omitempty"`
	Scope     []string      `json:"scope"`
	KPI       KPISnapshot   `json:"kpi"`
	Breakdown []AssigneeKPI `json:"breakdown,omitempty"`
	Tasks     []Task        `json:"tasks"`
}
