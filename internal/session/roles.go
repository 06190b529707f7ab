package session

import (
	"errors"
	"math/rand/v2"
	"slices"
)

type Role string

const (
	RoleWhite Role = "white"
	RoleBlack Role = "black"
)

var ErrRolesExhausted = errors.New("both roles already assigned")

// Complement returns the other role of the pair.
func (r Role) Complement() Role {
	if r == RoleWhite {
		return RoleBlack
	}
	return RoleWhite
}

func (r Role) Valid() bool { return r == RoleWhite || r == RoleBlack }

// NextRole decides the role of the next joiner from the roles already handed
// out in a session: a coin flip for the first, the complement for the second.
func NextRole(assigned []Role, coin func() bool) (Role, error) {
	switch len(assigned) {
	case 0:
		if coin() {
			return RoleWhite, nil
		}
		return RoleBlack, nil
	case 1:
		return assigned[0].Complement(), nil
	default:
		return "", ErrRolesExhausted
	}
}

// FairCoin is the default coin: 50/50, independent per call.
func FairCoin() bool { return rand.IntN(2) == 0 }

func removeRole(assigned []Role, r Role) []Role {
	if i := slices.Index(assigned, r); i >= 0 {
		return slices.Delete(assigned, i, i+1)
	}
	return assigned
}
