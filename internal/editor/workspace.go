package editor

import (
	"errors"
	"sync"

	"github.com/dshills/tandem/internal/event"
)

// ErrNoOpener is returned by Open when an editor is missing and the
// workspace cannot create one.
var ErrNoOpener = errors.New("workspace has no opener")

// Opener creates an editor for a uri that is not open yet.
type Opener func(uri string) (*Editor, error)

// Workspace tracks the open editors and the active one.
type Workspace struct {
	mu      sync.Mutex
	editors map[string]*Editor
	order   []string
	active  *Editor
	opener  Opener

	didChangeActive event.Emitter[*Editor]
	didAdd          event.Emitter[*Editor]
}

// NewWorkspace creates a workspace. opener may be nil.
func NewWorkspace(opener Opener) *Workspace {
	return &Workspace{
		editors: make(map[string]*Editor),
		opener:  opener,
	}
}

// SetOpener replaces the opener.
func (w *Workspace) SetOpener(opener Opener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opener = opener
}

// Add registers an editor. An editor already open for the same uri is
// returned instead.
func (w *Workspace) Add(e *Editor) *Editor {
	w.mu.Lock()
	if existing, ok := w.editors[e.URI()]; ok {
		w.mu.Unlock()
		return existing
	}
	w.editors[e.URI()] = e
	w.order = append(w.order, e.URI())
	w.mu.Unlock()

	e.OnDidDestroy(func() { w.remove(e) })
	w.didAdd.Emit(e)
	return e
}

// Open activates the editor for uri, creating it with the opener when
// needed.
func (w *Workspace) Open(uri string) (*Editor, error) {
	if e, ok := w.Editor(uri); ok {
		w.Activate(e)
		return e, nil
	}

	w.mu.Lock()
	opener := w.opener
	w.mu.Unlock()
	if opener == nil {
		return nil, ErrNoOpener
	}

	e, err := opener(uri)
	if err != nil {
		return nil, err
	}
	e = w.Add(e)
	w.Activate(e)
	return e, nil
}

// Activate makes e the active editor.
func (w *Workspace) Activate(e *Editor) {
	w.mu.Lock()
	if w.active == e {
		w.mu.Unlock()
		return
	}
	w.active = e
	w.mu.Unlock()
	w.didChangeActive.Emit(e)
}

// ActiveEditor returns the active editor or nil.
func (w *Workspace) ActiveEditor() *Editor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Editor returns the open editor for uri.
func (w *Workspace) Editor(uri string) (*Editor, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.editors[uri]
	return e, ok
}

// Editors returns the open editors in the order they were added.
func (w *Workspace) Editors() []*Editor {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Editor, 0, len(w.order))
	for _, uri := range w.order {
		out = append(out, w.editors[uri])
	}
	return out
}

// OnDidChangeActiveEditor registers fn for activation changes. fn receives
// nil when the last active editor closes.
func (w *Workspace) OnDidChangeActiveEditor(fn func(*Editor)) event.Subscription {
	return w.didChangeActive.Subscribe(fn)
}

// OnDidAddEditor registers fn for newly added editors.
func (w *Workspace) OnDidAddEditor(fn func(*Editor)) event.Subscription {
	return w.didAdd.Subscribe(fn)
}

func (w *Workspace) remove(e *Editor) {
	w.mu.Lock()
	if w.editors[e.URI()] != e {
		w.mu.Unlock()
		return
	}
	delete(w.editors, e.URI())
	for i, uri := range w.order {
		if uri == e.URI() {
			w.order = append(w.order[:i:i], w.order[i+1:]...)
			break
		}
	}
	wasActive := w.active == e
	if wasActive {
		w.active = nil
	}
	w.mu.Unlock()

	if wasActive {
		w.didChangeActive.Emit(nil)
	}
}
