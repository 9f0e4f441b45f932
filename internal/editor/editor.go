package editor

import "sync"

// Editor is the surface the sync engine needs from the rich-text component.
// addToHistory distinguishes user-visible edits from programmatic loads:
// remotely applied content must not create an undo entry, otherwise undo would
// walk through other people's keystrokes.
type Editor interface {
	Content() string
	SetContent(content string, addToHistory bool)
}

// MemoryEditor is a plain in-memory Editor used by the CLI host and tests.
type MemoryEditor struct {
	mu      sync.Mutex
	content string
	history []string
}

func NewMemoryEditor() *MemoryEditor {
	return &MemoryEditor{}
}

func (e *MemoryEditor) Content() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

func (e *MemoryEditor) SetContent(content string, addToHistory bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if addToHistory && content != e.content {
		e.history = append(e.history, e.content)
	}
	e.content = content
}

// Undo reverts the latest history entry and reports whether anything was
// reverted.
func (e *MemoryEditor) Undo() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) == 0 {
		return e.content, false
	}
	e.content = e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	return e.content, true
}

func (e *MemoryEditor) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}
