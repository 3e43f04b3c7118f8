package rights

func Superuser() Rule {
	return func(c Check) bool {
		return c.Subject != nil && c.Subject.Superuser
	}
}

func Authenticated() Rule {
	return func(c Check) bool {
		return c.Subject != nil && c.Subject.ID != ""
	}
}

// Capability grants when the subject holds one of caps on the target unit
// or inherits it from an ancestor.
func Capability(caps ...string) Rule {
	return func(c Check) bool {
		return c.Holds(caps...)
	}
}

func CapabilityAtRoot(caps ...string) Rule {
	return func(c Check) bool {
		return c.HoldsAtRoot(caps...)
	}
}

// BlankOwner grants on unscoped targets. For an instance the subject must
// be its blank owner; for unit-level checks (listing, creating) any
// authenticated subject qualifies since results are restricted to its own
// items.
func BlankOwner() Rule {
	return func(c Check) bool {
		if c.Subject == nil || c.Subject.ID == "" || c.Target.Unit != nil {
			return false
		}
		if c.Target.Entity == nil {
			return true
		}
		return c.Target.Entity.UnitID == "" && c.Target.Entity.BlankOwnerID == c.Subject.ID
	}
}

// StatusIn grants when the target entity is in one of states. Unit-level
// checks have no status and always pass.
func StatusIn(states ...string) Rule {
	return func(c Check) bool {
		if c.Target.Entity == nil {
			return true
		}
		for _, s := range states {
			if c.Target.Entity.Status == s {
				return true
			}
		}
		return false
	}
}

func AnyOf(rules ...Rule) Rule {
	return func(c Check) bool {
		for _, r := range rules {
			if r(c) {
				return true
			}
		}
		return false
	}
}

func AllOf(rules ...Rule) Rule {
	return func(c Check) bool {
		for _, r := range rules {
			if !r(c) {
				return false
			}
		}
		return len(rules) > 0
	}
}

func Not(rule Rule) Rule {
	return func(c Check) bool {
		return !rule(c)
	}
}
