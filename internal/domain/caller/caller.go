// Package caller models who is invoking an operation. Every public operation
// takes a Context value and checks it through one of the Require helpers,
// instead of ad hoc identity comparisons spread through the flows.
package caller

import "agrilend-settlement/internal/domain/loan"

type Role string

const (
	RoleBorrower  Role = "borrower"
	RoleAdmin     Role = "admin"
	RoleScheduler Role = "scheduler"
)

type Context struct {
	Role Role
	// BorrowerID is set only for RoleBorrower.
	BorrowerID string
}

func Borrower(id string) Context { return Context{Role: RoleBorrower, BorrowerID: id} }
func Admin() Context             { return Context{Role: RoleAdmin} }
func Scheduler() Context         { return Context{Role: RoleScheduler} }

// RequireAdmin gates operations needing elevated authorization.
func RequireAdmin(c Context) error {
	if c.Role != RoleAdmin {
		return loan.ErrUnauthorized
	}
	return nil
}

// RequireOperator admits the scheduler and admins.
func RequireOperator(c Context) error {
	if c.Role != RoleAdmin && c.Role != RoleScheduler {
		return loan.ErrUnauthorized
	}
	return nil
}

// RequireBorrower admits only the named borrower.
func RequireBorrower(c Context, borrowerID string) error {
	if c.Role != RoleBorrower || c.BorrowerID == "" || c.BorrowerID != borrowerID {
		return loan.ErrUnauthorized
	}
	return nil
}
