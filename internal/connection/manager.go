package connection

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"laynote-sync-client/internal/events"
	"laynote-sync-client/internal/protocol"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	// ErrTimeout means no open or error arrived within the connect timeout.
	ErrTimeout = errors.New("connection timeout")
	// ErrClosed means Disconnect was called while an attempt was in flight.
	ErrClosed = errors.New("connection closed")
)

// attempt is the shared future for one dial. Every caller that arrives while
// the dial is in flight waits on the same done channel, so concurrent
// Connect calls never open a second socket.
type attempt struct {
	done chan struct{}
	err  error
	once sync.Once
}

func (a *attempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

func (a *attempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager owns the one transport connection for a (url, user) pair and drives
// its lifecycle. Lifecycle and content events go out through the hub; sending
// reconnects lazily and never retries a dropped message.
type Manager struct {
	url            string
	userID         int
	hub            *events.Hub
	connectTimeout time.Duration
	dialer         Dialer

	mu      sync.Mutex
	state   State
	conn    Conn
	attempt *attempt
	gen     int

	writeMu sync.Mutex
}

func NewManager(url string, userID int, hub *events.Hub, connectTimeout, writeWait time.Duration) *Manager {
	return &Manager{
		url:            url,
		userID:         userID,
		hub:            hub,
		connectTimeout: connectTimeout,
		dialer:         &wsDialer{writeWait: writeWait},
		state:          StateDisconnected,
	}
}

// SetDialer swaps the transport factory. Call before Connect.
func (m *Manager) SetDialer(d Dialer) {
	m.dialer = d
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect resolves immediately when already connected, joins the in-flight
// attempt when one exists, and otherwise dials. A dial that produces neither
// an open socket nor an error within the connect timeout fails with
// ErrTimeout.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateConnecting:
		att := m.attempt
		m.mu.Unlock()
		return att.wait(ctx)
	}

	att := &attempt{done: make(chan struct{})}
	m.attempt = att
	m.state = StateConnecting
	m.mu.Unlock()

	go m.dial(att)

	return att.wait(ctx)
}

func (m *Manager) dial(att *attempt) {
	type result struct {
		conn Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := m.dialer.Dial(m.url)
		ch <- result{conn: conn, err: err}
	}()

	var conn Conn
	var err error
	select {
	case res := <-ch:
		conn, err = res.conn, res.err
	case <-time.After(m.connectTimeout):
		err = ErrTimeout
		go func() {
			// A socket that opens after the timeout has no owner.
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	if err != nil {
		m.mu.Lock()
		aborted := m.attempt != att
		if !aborted {
			m.state = StateDisconnected
			m.attempt = nil
		}
		m.mu.Unlock()

		if !aborted {
			reason := "Failed to connect to sync server"
			if errors.Is(err, ErrTimeout) {
				reason = "Connection timeout"
			}
			m.hub.Emit(events.Error, reason)
		}
		att.finish(err)
		return
	}

	m.mu.Lock()
	if m.attempt != att {
		// Disconnect raced the dial; the fresh socket is unwanted.
		m.mu.Unlock()
		conn.Close()
		att.finish(ErrClosed)
		return
	}
	m.state = StateConnected
	m.conn = conn
	m.attempt = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.hub.Emit(events.Connected, nil)
	att.finish(nil)

	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			current := m.gen == gen && m.state == StateConnected
			if current {
				m.state = StateDisconnected
				m.conn = nil
			}
			m.mu.Unlock()

			if current {
				m.hub.Emit(events.Disconnected, nil)
			}
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Printf("connection: dropping frame: %v", err)
		return
	}

	switch msg.Action {
	case protocol.ActionNoteCreated:
		m.hub.Emit(events.NoteCreated, msg)
	case protocol.ActionUpdateContent, protocol.ActionUpdateTitle:
		m.hub.Emit(events.NoteUpdated, msg)
	case protocol.ActionError:
		reason := msg.Message
		if reason == "" {
			reason = "Unknown error"
		}
		m.hub.Emit(events.Error, reason)
	default:
		log.Printf("connection: ignoring unknown action %q", msg.Action)
	}
}

// Send transmits msg, dialing first when disconnected. Delivery is at most
// once: when the lazy connect fails the message is dropped and logged, and the
// next edit cycle tries again.
func (m *Manager) Send(msg *protocol.Message) {
	msg.UserID = m.userID

	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected {
		m.write(conn, msg)
		return
	}

	go func() {
		if err := m.Connect(context.Background()); err != nil {
			log.Printf("connection: dropping %s for note %s: %v", msg.Action, msg.NoteID, err)
			return
		}

		m.mu.Lock()
		conn := m.conn
		connected := m.state == StateConnected
		m.mu.Unlock()

		if !connected {
			log.Printf("connection: dropping %s for note %s: connection lost", msg.Action, msg.NoteID)
			return
		}
		m.write(conn, msg)
	}()
}

func (m *Manager) write(conn Conn, msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("connection: encoding %s: %v", msg.Action, err)
		return
	}

	m.writeMu.Lock()
	err = conn.WriteMessage(data)
	m.writeMu.Unlock()

	if err != nil {
		log.Printf("connection: writing %s for note %s: %v", msg.Action, msg.NoteID, err)
	}
}

func (m *Manager) UpdateContent(noteID, content string) {
	m.Send(&protocol.Message{
		Action:  protocol.ActionUpdateContent,
		NoteID:  noteID,
		Content: content,
	})
}

func (m *Manager) UpdateTitle(noteID, title string) {
	m.Send(&protocol.Message{
		Action: protocol.ActionUpdateTitle,
		NoteID: noteID,
		Title:  title,
	})
}

// Disconnect closes the transport and resets state so a later Connect dials a
// fresh socket.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	att := m.attempt
	wasConnected := m.state == StateConnected
	m.conn = nil
	m.attempt = nil
	m.state = StateDisconnected
	m.gen++
	m.mu.Unlock()

	if att != nil {
		att.finish(ErrClosed)
	}
	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		m.hub.Emit(events.Disconnected, nil)
	}
}
