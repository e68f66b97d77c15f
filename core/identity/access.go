package identity

// CanAccess reports whether grant allows reading courseID, or one of its sub-courses when subCourseID is not empty.
//
// Disabled principals never have access and administrators always do, even for ids that do not exist.
// A course-level grant covers every sub-course that has no entry of its own.
func CanAccess(grant RoleGrant, courseID, subCourseID string) bool {
	switch {
	case grant.Role == RoleDisabled:
		return false
	case grant.Role.IsAdmin():
		return true
	}

	cg, ok := grant.Courses[courseID]
	if !ok {
		return false
	}
	if subCourseID == "" {
		if cg.HasAccess {
			return true
		}
		for _, granted := range cg.SubCourses {
			if granted {
				return true
			}
		}
		return false
	}
	if granted, ok := cg.SubCourses[subCourseID]; ok {
		return granted
	}
	return cg.HasAccess
}
