package rbac

import "strings"

// Policy maps a role to the permission patterns it holds. A pattern is an
// exact permission, a "group:*" prefix, or "*".
type Policy map[string][]string

type Checker struct {
	policy Policy
}

func NewChecker(p Policy) *Checker {
	if p == nil {
		p = DefaultPolicy
	}
	return &Checker{policy: p}
}

// Allows reports whether role holds every one of perms. Unknown roles hold
// nothing.
func (c *Checker) Allows(role string, perms ...string) bool {
	if _, ok := c.policy[role]; !ok {
		return false
	}
	for _, perm := range perms {
		if !c.grants(role, perm) {
			return false
		}
	}
	return true
}

// Granted lists the known permissions role holds, in Known order.
func (c *Checker) Granted(role string) []string {
	out := []string{}
	for _, perm := range Known {
		if c.grants(role, perm) {
			out = append(out, perm)
		}
	}
	return out
}

func (c *Checker) grants(role, perm string) bool {
	for _, p := range c.policy[role] {
		if covers(p, perm) {
			return true
		}
	}
	return false
}

func covers(pattern, perm string) bool {
	switch {
	case pattern == "*", pattern == perm:
		return true
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
