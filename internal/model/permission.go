package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionAttemptsRead allows listing attempts of an exam.
	PermissionAttemptsRead Permission = "attempts:read"

	// PermissionAttemptsForceSubmit allows closing a student's attempt.
	PermissionAttemptsForceSubmit Permission = "attempts:force_submit"

	// PermissionExamsMonitor allows attaching to the live exam monitor.
	PermissionExamsMonitor Permission = "exams:monitor"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionAttemptsRead,
	PermissionAttemptsForceSubmit,
	PermissionExamsMonitor,
}

// ValidPermission reports whether p is a known permission code.
func ValidPermission(p string) bool {
	for _, known := range AllPermissions {
		if string(known) == p {
			return true
		}
	}
	return false
}
