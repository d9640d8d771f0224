// internal/models/account.go
package models

import "time"

// Role is an account's current marketplace role. Transitional roles track the
// onboarding lifecycle; suspended roles block marketplace-facing actions
// without discarding the application record.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"

	RoleFarmer                  Role = "farmer"
	RoleIncompleteFarmer        Role = "incomplete_farmer"
	RolePendingFarmer           Role = "pending_farmer"
	RoleSuspendedFarmer         Role = "suspended_farmer"
	RoleDeliveryAgent           Role = "delivery_agent"
	RoleIncompleteDeliveryAgent Role = "incomplete_delivery_agent"
	RolePendingDeliveryAgent    Role = "pending_delivery_agent"
	RoleSuspendedDeliveryAgent  Role = "suspended_delivery_agent"
)

// Account is an applicant or administrator identity held by the account
// directory. Only the review engine's transition logic mutates Role.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PendingRole returns the transitional role set while an application for the
// type awaits review.
func PendingRole(t ApplicationType) Role {
	if t == TypeDeliveryAgent {
		return RolePendingDeliveryAgent
	}
	return RolePendingFarmer
}

// IncompleteRole returns the role set after rejection, permitting
// resubmission.
func IncompleteRole(t ApplicationType) Role {
	if t == TypeDeliveryAgent {
		return RoleIncompleteDeliveryAgent
	}
	return RoleIncompleteFarmer
}

// SuspendedRole returns the role set on suspension.
func SuspendedRole(t ApplicationType) Role {
	if t == TypeDeliveryAgent {
		return RoleSuspendedDeliveryAgent
	}
	return RoleSuspendedFarmer
}

// TerminalRole returns the role granted on approval.
func TerminalRole(t ApplicationType) Role {
	if t == TypeDeliveryAgent {
		return RoleDeliveryAgent
	}
	return RoleFarmer
}
