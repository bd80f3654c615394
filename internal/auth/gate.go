package auth

import (
	apperrors "github.com/motorline/catalog-service/pkg/errors"
)

// Roles recognized by the gate. Anything else is treated as guest.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
)

// Caller identifies who is performing an operation. A zero Caller is an
// anonymous guest.
type Caller struct {
	ID   string
	Role string
}

// IsAuthenticated reports whether the caller carries an identity.
func (c Caller) IsAuthenticated() bool {
	return c.ID != ""
}

// Operation names the actions the gate evaluates.
type Operation string

const (
	OpCreateCar    Operation = "car.create"
	OpUpdateCar    Operation = "car.update"
	OpDeleteCar    Operation = "car.delete"
	OpSetStatus    Operation = "car.set_status"
	OpMutateImages Operation = "car.mutate_images"
	OpAddReview    Operation = "review.add"
	OpUpdateReview Operation = "review.update"
	OpDeleteReview Operation = "review.delete"
	OpGetCar       Operation = "car.get"
)

// Gate is the stateless policy evaluator. Every mutation consults it before
// any store or cache access.
type Gate struct{}

// NewGate creates the policy gate.
func NewGate() *Gate {
	return &Gate{}
}

// Check evaluates the policy for the caller and operation. resourceOwnerID is
// the review author for review operations and ignored otherwise. Rules are
// evaluated in precedence order; the first match wins.
func (g *Gate) Check(caller Caller, op Operation, resourceOwnerID string) error {
	switch op {
	case OpCreateCar, OpUpdateCar, OpDeleteCar, OpSetStatus, OpMutateImages:
		if caller.Role != RoleAdmin {
			return apperrors.Forbidden("admin role required")
		}
		return nil

	case OpAddReview:
		if !caller.IsAuthenticated() {
			return apperrors.Unauthenticated("authentication required to review")
		}
		return nil

	case OpUpdateReview:
		if caller.ID != "" && caller.ID == resourceOwnerID {
			return nil
		}
		return apperrors.Forbidden("only the review author may update it")

	case OpDeleteReview:
		if caller.ID != "" && caller.ID == resourceOwnerID {
			return nil
		}
		if caller.Role == RoleAdmin {
			return nil
		}
		return apperrors.Forbidden("only the review author or an admin may delete it")

	case OpGetCar:
		return nil
	}

	return apperrors.Forbidden("unknown operation")
}
