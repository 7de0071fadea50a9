package library

// QuotaFor returns how many loans a person with the given role may hold open
// at the same time.
func QuotaFor(role Role) int {
	if role == RoleTeacher {
		return 4
	}
	return 2
}
