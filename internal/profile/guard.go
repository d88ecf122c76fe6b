package profile

import (
	"fmt"
	"tigertrust/internal/domain"
)

type Operation uint8

const (
	OpInitialize Operation = iota
	OpUpdateScore
	OpRecordLoan
	OpRecordRepayment
	OpUpdateVerification
)

var operationNames = [...]string{
	OpInitialize:         "initialize",
	OpUpdateScore:        "update_score",
	OpRecordLoan:         "record_loan",
	OpRecordRepayment:    "record_repayment",
	OpUpdateVerification: "update_verification",
}

func (o Operation) String() string {
	if int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("Operation(%d)", uint8(o))
}

type Role uint8

const (
	RoleOwner Role = iota
	RoleAuthority
)

func (o Operation) RequiredRole() Role {
	if o == OpUpdateScore {
		return RoleAuthority
	}
	return RoleOwner
}

// Guard holds the set of identities trusted to assign scores.
type Guard struct {
	authorities map[domain.Pubkey]struct{}
}

func NewGuard(authorities ...domain.Pubkey) *Guard {
	g := &Guard{authorities: make(map[domain.Pubkey]struct{}, len(authorities))}
	for _, a := range authorities {
		g.authorities[a] = struct{}{}
	}
	return g
}

func (g *Guard) IsAuthority(caller domain.Pubkey) bool {
	_, ok := g.authorities[caller]
	return ok
}

// Authorize checks the caller against the role op requires. For initialize the owner is
// the caller by construction, so owner is the identity the record will belong to.
func (g *Guard) Authorize(op Operation, caller, owner domain.Pubkey) error {
	switch op.RequiredRole() {
	case RoleAuthority:
		if !g.IsAuthority(caller) {
			return fmt.Errorf("%w: %s requires the score authority, got %s", ErrUnauthorized, op, caller)
		}
	default:
		if caller != owner {
			return fmt.Errorf("%w: %s requires the owner %s, got %s", ErrUnauthorized, op, owner, caller)
		}
	}
	return nil
}

// CheckExistence enforces that initialize targets an empty address and every other
// operation targets an existing record.
func CheckExistence(op Operation, exists bool) error {
	if op == OpInitialize {
		if exists {
			return ErrProfileAlreadyExists
		}
		return nil
	}
	if !exists {
		return ErrProfileNotFound
	}
	return nil
}
