package syncer

import (
	"sync"
	"time"

	"laynote-sync-client/internal/domain"
	"laynote-sync-client/internal/editor"
	"laynote-sync-client/internal/events"
	"laynote-sync-client/internal/protocol"
)

// Sender is the slice of the connection manager the engine sends through.
type Sender interface {
	UpdateContent(noteID, content string)
	UpdateTitle(noteID, title string)
}

// Engine tracks one open note: it debounces local content edits, sends title
// edits immediately, and applies remote updates to the editor unless they
// match the value this client last sent. That last-sent comparison is the echo
// guard — re-applying our own broadcast would reset the editor's cursor and
// selection.
type Engine struct {
	sender   Sender
	hub      *events.Hub
	editor   editor.Editor
	interval time.Duration
	onChange func(domain.Note)

	mu               sync.Mutex
	note             *domain.Note
	loading          bool
	lastObserved     string
	lastSavedContent string
	lastSavedTitle   string
	debounce         *time.Timer
}

func NewEngine(sender Sender, hub *events.Hub, ed editor.Editor, interval time.Duration) *Engine {
	e := &Engine{
		sender:   sender,
		hub:      hub,
		editor:   ed,
		interval: interval,
	}
	hub.On(events.NoteUpdated, e.handleNoteUpdated)
	return e
}

// SetOnNoteChanged registers the host callback invoked whenever the bound
// note's content or title changes, locally or remotely. Call before Bind.
func (e *Engine) SetOnNoteChanged(fn func(domain.Note)) {
	e.onChange = fn
}

// Bind loads note into the editor and starts tracking edits. Any pending
// debounce from a previously bound note is cancelled and the echo guard is
// reseeded, so nothing leaks across notes. The load itself must not register
// as a user edit; the loading flag suppresses the edit path while the content
// is pushed in.
func (e *Engine) Bind(note domain.Note) {
	e.mu.Lock()
	e.stopDebounceLocked()
	bound := note
	e.note = &bound
	e.loading = true
	e.mu.Unlock()

	e.editor.SetContent(note.Content, false)

	e.mu.Lock()
	e.loading = false
	e.lastObserved = note.Content
	e.lastSavedContent = note.Content
	e.lastSavedTitle = note.Title
	e.mu.Unlock()
}

// Unbind detaches the current note and cancels any pending debounce. An edit
// made just before unbinding is never sent afterwards.
func (e *Engine) Unbind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopDebounceLocked()
	e.note = nil
	e.loading = false
	e.lastObserved = ""
	e.lastSavedContent = ""
	e.lastSavedTitle = ""
}

// Note returns a copy of the currently bound note, if any.
func (e *Engine) Note() (domain.Note, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.note == nil {
		return domain.Note{}, false
	}
	return *e.note, true
}

// ContentChanged is the editor's change notification. An unchanged value is a
// no-op; a changed one restarts the single trailing-edge debounce timer, so a
// typing burst collapses into one send carrying its final state.
func (e *Engine) ContentChanged(content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.note == nil || e.loading {
		return
	}
	if content == e.lastObserved {
		return
	}
	e.lastObserved = content
	e.stopDebounceLocked()
	e.debounce = time.AfterFunc(e.interval, e.flush)
}

func (e *Engine) flush() {
	e.mu.Lock()
	if e.note == nil || e.loading {
		e.mu.Unlock()
		return
	}
	e.debounce = nil

	content := e.editor.Content()
	if content == e.lastSavedContent {
		e.mu.Unlock()
		return
	}
	noteID := e.note.ID
	e.lastSavedContent = content
	e.note.Content = content
	note := *e.note
	e.mu.Unlock()

	e.sender.UpdateContent(noteID, content)
	e.notify(note)
}

// TitleChanged sends immediately. Titles change rarely, so they skip the
// debounce the content path needs.
func (e *Engine) TitleChanged(title string) {
	e.mu.Lock()
	if e.note == nil || e.loading || title == e.lastSavedTitle {
		e.mu.Unlock()
		return
	}
	noteID := e.note.ID
	e.lastSavedTitle = title
	e.note.Title = title
	note := *e.note
	e.mu.Unlock()

	e.sender.UpdateTitle(noteID, title)
	e.notify(note)
}

func (e *Engine) handleNoteUpdated(payload any) {
	msg, ok := payload.(*protocol.Message)
	if !ok {
		return
	}

	e.mu.Lock()
	if e.note == nil || msg.NoteID != e.note.ID {
		e.mu.Unlock()
		return
	}

	switch msg.Action {
	case protocol.ActionUpdateContent:
		if msg.Content == e.lastSavedContent {
			// Echo of our own write; applying it would only disturb the cursor.
			e.mu.Unlock()
			return
		}
		e.lastSavedContent = msg.Content
		e.lastObserved = msg.Content
		e.note.Content = msg.Content
		note := *e.note
		e.loading = true
		e.mu.Unlock()

		e.editor.SetContent(msg.Content, false)

		e.mu.Lock()
		e.loading = false
		e.mu.Unlock()

		e.notify(note)

	case protocol.ActionUpdateTitle:
		if msg.Title == e.lastSavedTitle {
			e.mu.Unlock()
			return
		}
		e.lastSavedTitle = msg.Title
		e.note.Title = msg.Title
		note := *e.note
		e.mu.Unlock()

		e.notify(note)

	default:
		e.mu.Unlock()
	}
}

func (e *Engine) notify(note domain.Note) {
	if e.onChange != nil {
		e.onChange(note)
	}
}

func (e *Engine) stopDebounceLocked() {
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
}

// Close unsubscribes from the hub and unbinds. Required before discarding the
// engine; otherwise remote updates keep invoking a dead engine's handler.
func (e *Engine) Close() {
	e.hub.Off(events.NoteUpdated, e.handleNoteUpdated)
	e.Unbind()
}
