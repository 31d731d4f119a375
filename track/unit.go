package track

// unit is the tracked state of one buffer or one texture cell.
//
// last is the usage at the end of the scope. first, when set, is the usage
// the resource must be in when the scope starts; it differs from last only
// after a replace-mode merge or a Prepend.
type unit[U use] struct {
	first    U
	hasFirst bool
	last     U
}

// port returns the usage the resource is expected in on entry to the scope.
func (u unit[U]) port() U {
	if u.hasFirst {
		return u.first
	}
	return u.last
}

// combine folds a new usage into an extend-mode state. ok is false when the
// two usages cannot coexist within one scope.
func combine[U use](old, next U) (U, bool) {
	if old == 0 || old == next || !(old | next).writes() {
		return old | next, true
	}
	return old, false
}

// extend records next in extend mode.
func (u *unit[U]) extend(next U) (U, bool) {
	old := u.last
	if old == next && next.ordered() {
		return old, true
	}
	merged, ok := combine(old, next)
	if !ok {
		return old, false
	}
	u.last = merged
	return old, true
}

// prepend declares the usage the resource is in before the scope.
func (u *unit[U]) prepend(prev U) (U, bool) {
	if u.hasFirst && u.first != prev {
		return u.first, false
	}
	u.first = prev
	u.hasFirst = true
	return prev, true
}

// replace merges other in replace mode and reports whether a transition
// from the returned old usage to the returned new usage is required.
func (u *unit[U]) replace(other unit[U]) (old, next U, transition bool) {
	old = u.last
	next = other.port()
	if !u.hasFirst {
		u.first = old
		u.hasFirst = true
	}
	u.last = other.last
	if old == next && next.ordered() {
		return old, next, false
	}
	return old, next, true
}
