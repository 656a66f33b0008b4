package traderdemo

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownRole = errors.New("unknown role")

// Role selects which demo persona an invocation acts as.
type Role int

const (
	RoleBank Role = iota + 1
	RoleSeller
)

var roleNames = map[Role]string{
	RoleBank:   "BANK",
	RoleSeller: "SELLER",
}

// Roles lists the accepted roles in the order they appear in usage output.
func Roles() []Role {
	return []Role{RoleBank, RoleSeller}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	if r == 0 {
		return ""
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole matches raw against the role names, ignoring case and surrounding space.
func ParseRole(raw string) (Role, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	for role, name := range roleNames {
		if token == name {
			return role, nil
		}
	}
	if token == "" {
		return 0, fmt.Errorf("%w: value is empty", ErrUnknownRole)
	}
	return 0, fmt.Errorf("%w: %q (expected BANK or SELLER)", ErrUnknownRole, raw)
}

// Set and the String method above let a *Role back a flag.Value.
func (r *Role) Set(raw string) error {
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
