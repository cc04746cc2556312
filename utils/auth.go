package utils

// Permission levels, highest first.
const (
	DeveloperPermission  = "developer"
	SuperAdminPermission = "super_admin"
	AdminPermission      = "admin"
	GuestPermission      = "guest"
)

// Permissions are the ids that grant access to the moderation commands.
type Permissions struct {
	AdminRoleIDs      []string
	SuperAdminRoleIDs []string
	DeveloperUserIDs  []string
}

func contains(slice []string, item string) bool {
	for _, a := range slice {
		if a == item {
			return true
		}
	}
	return false
}

// CheckPermission returns the highest permission level of a member.
func (p Permissions) CheckPermission(userRoleIDs []string, userID string) string {
	if contains(p.DeveloperUserIDs, userID) {
		return DeveloperPermission
	}
	for _, roleID := range userRoleIDs {
		if contains(p.SuperAdminRoleIDs, roleID) {
			return SuperAdminPermission
		}
	}
	for _, roleID := range userRoleIDs {
		if contains(p.AdminRoleIDs, roleID) {
			return AdminPermission
		}
	}
	return GuestPermission
}

// CanModerate reports whether the level may manage filters.
func CanModerate(level string) bool {
	return level != GuestPermission
}
