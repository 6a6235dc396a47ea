package eventbus

import "strings"

// A Type identifies a kind of Event within an explicit hierarchy of event
// types. Every Type, except for roots, names exactly one super-type.
//
// Types are compared by identity, so always refer to a Type through the pointer
// returned by NewType (usually stored in a package-level variable).
type Type struct {
	name  string
	super *Type
}

// NewType declares a new event type named name as a subtype of super. A nil
// super declares a new root type, unrelated to AnyEvent.
//
// Declare types once, at package initialisation. Subscribers registered for
// super receive events of the new type as well.
func NewType(name string, super *Type) *Type {
	if name == "" {
		panic("eventbus: event type name must not be empty")
	}
	return &Type{name: name, super: super}
}

// The predeclared event types. Every one of them is a direct subtype of
// AnyEvent, so subscribing to AnyEvent observes every event on a Bus.
var (
	AnyEvent         = NewType("event", nil)
	NavigationEvents = NewType("navigation", AnyEvent)
	BrowseEvents     = NewType("browse", AnyEvent)
	ThemeEvents      = NewType("theme", AnyEvent)
	PageActionEvents = NewType("page-action", AnyEvent)
	HotkeyEvents     = NewType("hotkey", AnyEvent)
)

// Name returns the name t was declared with.
func (t *Type) Name() string { return t.name }

// Super returns the super-type of t, or nil if t is a root type.
func (t *Type) Super() *Type { return t.super }

// Is reports whether t is k or a (possibly indirect) subtype of k.
func (t *Type) Is(k *Type) bool {
	for x := t; x != nil; x = x.super {
		if x == k {
			return true
		}
	}
	return false
}

// String returns the path of t from its root, e.g. "event/theme".
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var path []string
	for x := t; x != nil; x = x.super {
		path = append(path, x.name)
	}
	var b strings.Builder
	for i := len(path) - 1; i >= 0; i-- {
		b.WriteString(path[i])
		if i > 0 {
			b.WriteByte('/')
		}
	}
	return b.String()
}
