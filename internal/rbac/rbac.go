package rbac

// Role constants. A wallet's role is relative to one escrow unit: the same
// address can be client on one job and freelancer on another.
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

// Permission constants
const (
	PermCreateListing      = "create_listing"
	PermDeactivateListing  = "deactivate_listing"
	PermApproveApplication = "approve_application"
	PermSubmitCheckpoint   = "submit_checkpoint"
	PermApproveCheckpoint  = "approve_checkpoint"
	PermRejectCheckpoint   = "reject_checkpoint"
	PermCancelJob          = "cancel_job"
	PermDownloadOriginal   = "download_original"
)

// RolePermissions defines what each role can do on a job it is party to.
var RolePermissions = map[string][]string{
	RoleClient: {
		PermCreateListing, PermDeactivateListing, PermApproveApplication,
		PermApproveCheckpoint, PermRejectCheckpoint, PermCancelJob, PermDownloadOriginal,
		// Client CANNOT: PermSubmitCheckpoint
	},
	RoleFreelancer: {
		PermSubmitCheckpoint, PermCancelJob,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsReleaseOperation reports whether the permission moves escrowed funds.
func IsReleaseOperation(permission string) bool {
	return permission == PermApproveCheckpoint || permission == PermCancelJob
}
