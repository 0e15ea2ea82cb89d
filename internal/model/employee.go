package model

// EmployeeProfile is the directory record fetched once per scheduler session.
type EmployeeProfile struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Designation  string `json:"designation"`
}
