package modeler

import "sync"

// An Element is a viewer backed by a UI element. The owner of the element
// reports its lifecycle through the Attachment.
type Element interface {
	Attachment() *Attachment
}

// Attachment records whether a UI element is attached to the visible
// hierarchy. The owner of the element calls Attach and Detach as the element
// is added to and removed from its parent.
//
// Observers registered with OnDetach are notified of the transition from
// attached to detached only. Detaching an element that was never attached, or
// detaching it twice, notifies nobody.
//
// The zero value is a detached Attachment, ready to use. An Attachment is safe
// for concurrent use.
type Attachment struct {
	mu        sync.Mutex
	attached  bool
	nextID    uint64
	observers map[uint64]func()
}

// Attach marks the element as attached.
func (a *Attachment) Attach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attached = true
}

// Detach marks the element as detached. If it was attached, every observer
// registered with OnDetach is called, on the calling goroutine, and then
// forgotten.
func (a *Attachment) Detach() {
	a.mu.Lock()
	if !a.attached {
		a.mu.Unlock()
		return
	}
	a.attached = false
	observers := a.observers
	a.observers = nil
	a.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Attached reports whether the element is currently attached.
func (a *Attachment) Attached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached
}

// OnDetach registers fn to be called on the next transition from attached to
// detached; fn is called at most once. The returned function unregisters fn
// and is safe to call more than once.
func (a *Attachment) OnDetach(fn func()) (cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.observers == nil {
		a.observers = make(map[uint64]func())
	}
	id := a.nextID
	a.nextID++
	a.observers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.observers, id)
	}
}
