package eventbus

import (
	"encoding/gob"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Event is a notification published on a Bus. Every event carries a unique
// identity, generated when it is constructed, and a Type that determines which
// subscribers receive it.
//
// Events are values; never modify an event after it has been published. Use
// the New* constructors, which assign the identity.
type Event interface {
	ID() uuid.UUID
	Type() *Type
}

// Same reports whether a and b are the same event, that is, whether they share
// their identity. Contents are not compared.
func Same(a, b Event) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID() == b.ID()
}

// Register the concrete events with gob, so they can travel as Event
// interface values (see Encode and Forward).
func init() {
	gob.Register(Navigation{})
	gob.Register(Browse{})
	gob.Register(Theme{})
	gob.Register(PageAction{})
	gob.Register(Hotkey{})
}

// Navigation asks the application to navigate to a target, e.g. a resource or
// a workspace location.
type Navigation struct {
	EventID uuid.UUID
	Target  string
}

// NewNavigation returns a Navigation event towards target.
func NewNavigation(target string) Navigation {
	return Navigation{EventID: uuid.New(), Target: target}
}

func (e Navigation) ID() uuid.UUID { return e.EventID }
func (e Navigation) Type() *Type   { return NavigationEvents }

// Browse asks the application to open a URI.
type Browse struct {
	EventID uuid.UUID
	URI     string
}

// NewBrowse returns a Browse event for uri.
func NewBrowse(uri string) Browse {
	return Browse{EventID: uuid.New(), URI: uri}
}

func (e Browse) ID() uuid.UUID { return e.EventID }
func (e Browse) Type() *Type   { return BrowseEvents }

// ThemeChange enumerates the closed set of theme notifications.
type ThemeChange int

const (
	ThemeChanged ThemeChange = iota // the whole theme was replaced
	FontChanged
	ColorChanged
	ThemeAdded
	ThemeRemoved
)

func (c ThemeChange) String() string {
	switch c {
	case ThemeChanged:
		return "theme-changed"
	case FontChanged:
		return "font-changed"
	case ColorChanged:
		return "color-changed"
	case ThemeAdded:
		return "theme-added"
	case ThemeRemoved:
		return "theme-removed"
	default:
		return fmt.Sprintf("ThemeChange(%d)", int(c))
	}
}

// Theme notifies that the visual theme has changed.
type Theme struct {
	EventID uuid.UUID
	Change  ThemeChange
}

// NewTheme returns a Theme event of the given change.
func NewTheme(change ThemeChange) Theme {
	return Theme{EventID: uuid.New(), Change: change}
}

func (e Theme) ID() uuid.UUID { return e.EventID }
func (e Theme) Type() *Type   { return ThemeEvents }

// PageActionKind enumerates the actions a PageAction event requests.
type PageActionKind int

const (
	SourceViewOn PageActionKind = iota
	SourceViewOff
)

func (k PageActionKind) String() string {
	switch k {
	case SourceViewOn:
		return "source-view-on"
	case SourceViewOff:
		return "source-view-off"
	default:
		return fmt.Sprintf("PageActionKind(%d)", int(k))
	}
}

// PageAction toggles a page-level view.
type PageAction struct {
	EventID uuid.UUID
	Action  PageActionKind
}

// NewPageAction returns a PageAction event requesting action.
func NewPageAction(action PageActionKind) PageAction {
	return PageAction{EventID: uuid.New(), Action: action}
}

func (e PageAction) ID() uuid.UUID { return e.EventID }
func (e PageAction) Type() *Type   { return PageActionEvents }

// Hotkey notifies that a key chord was pressed.
type Hotkey struct {
	EventID uuid.UUID
	Chord   Chord
}

// NewHotkey returns a Hotkey event for chord.
func NewHotkey(chord Chord) Hotkey {
	return Hotkey{EventID: uuid.New(), Chord: chord}
}

func (e Hotkey) ID() uuid.UUID { return e.EventID }
func (e Hotkey) Type() *Type   { return HotkeyEvents }

// Modifier is a bit set of the modifier keys held in a Chord.
type Modifier uint8

const (
	Ctrl Modifier = 1 << iota
	Alt
	Shift
	Meta
)

var modifierNames = []struct {
	m    Modifier
	name string
}{
	{Ctrl, "Ctrl"},
	{Alt, "Alt"},
	{Shift, "Shift"},
	{Meta, "Meta"},
}

// Chord describes a key combination: a set of modifiers and a single key.
type Chord struct {
	Modifiers Modifier
	Key       string
}

// String formats c as modifiers and key joined by '+', e.g. "Ctrl+Shift+P".
// Modifiers always appear in the same order.
func (c Chord) String() string {
	var parts []string
	for _, n := range modifierNames {
		if c.Modifiers&n.m != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(append(parts, c.Key), "+")
}

var errEmptyKey = errors.New("missing key")

// ParseChord parses the format produced by Chord.String. Modifier names are
// case-insensitive and may appear in any order; the last element is the key.
func ParseChord(s string) (Chord, error) {
	parts := strings.Split(s, "+")
	key := strings.TrimSpace(parts[len(parts)-1])
	if key == "" {
		return Chord{}, fmt.Errorf("parse chord %q: %w", s, errEmptyKey)
	}
	var c Chord
	for _, p := range parts[:len(parts)-1] {
		m, ok := lookupModifier(strings.TrimSpace(p))
		if !ok {
			return Chord{}, fmt.Errorf("parse chord %q: unknown modifier %q", s, p)
		}
		c.Modifiers |= m
	}
	c.Key = key
	return c, nil
}

func lookupModifier(name string) (Modifier, bool) {
	for _, n := range modifierNames {
		if strings.EqualFold(n.name, name) {
			return n.m, true
		}
	}
	return 0, false
}
