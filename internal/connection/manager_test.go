package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"laynote-sync-client/internal/events"
	"laynote-sync-client/internal/protocol"
)

type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) lastWrite(t *testing.T) *protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		t.Fatal("no frames written")
	}
	msg, err := protocol.Decode(c.writes[len(c.writes)-1])
	if err != nil {
		t.Fatalf("written frame does not decode: %v", err)
	}
	return msg
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fail  bool
	block chan struct{}
	conns []*fakeConn
}

func (d *fakeDialer) Dial(url string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	fail := d.fail
	block := d.block
	d.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return nil, errors.New("dial refused")
	}

	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) <= i {
		t.Fatalf("expected at least %d connections, got %d", i+1, len(d.conns))
	}
	return d.conns[i]
}

func newTestManager(dialer Dialer) (*Manager, *events.Hub) {
	hub := events.NewHub()
	m := NewManager("ws://sync.test/notes", 42, hub, 100*time.Millisecond, time.Second)
	m.SetDialer(dialer)
	return m, hub
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManager_ConnectEmitsConnected(t *testing.T) {
	dialer := &fakeDialer{}
	m, hub := newTestManager(dialer)

	connected := make(chan struct{}, 1)
	hub.On(events.Connected, func(payload any) { connected <- struct{}{} })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if m.State() != StateConnected {
		t.Errorf("expected state connected, got %s", m.State())
	}

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Error("connected event never fired")
	}
}

func TestManager_ConnectWhenConnectedIsNoop(t *testing.T) {
	dialer := &fakeDialer{}
	m, _ := newTestManager(dialer)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if dialer.dialCount() != 1 {
		t.Errorf("expected 1 dial, got %d", dialer.dialCount())
	}
}

func TestManager_ConcurrentConnectsShareOneDial(t *testing.T) {
	dialer := &fakeDialer{block: make(chan struct{})}
	m, _ := newTestManager(dialer)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- m.Connect(context.Background()) }()
	}

	waitFor(t, "both callers to attach", func() bool { return m.State() == StateConnecting })
	close(dialer.block)

	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	}
	if dialer.dialCount() != 1 {
		t.Errorf("expected exactly 1 dial for concurrent connects, got %d", dialer.dialCount())
	}
}

func TestManager_ConnectTimeout(t *testing.T) {
	dialer := &fakeDialer{block: make(chan struct{})}
	m, hub := newTestManager(dialer)

	errs := make(chan any, 1)
	hub.On(events.Error, func(payload any) { errs <- payload })

	err := m.Connect(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("expected state disconnected after timeout, got %s", m.State())
	}

	select {
	case reason := <-errs:
		if reason != "Connection timeout" {
			t.Errorf("expected %q, got %v", "Connection timeout", reason)
		}
	case <-time.After(time.Second):
		t.Error("error event never fired")
	}
	close(dialer.block)
}

func TestManager_DialFailureEmitsError(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	m, hub := newTestManager(dialer)

	errs := make(chan any, 1)
	hub.On(events.Error, func(payload any) { errs <- payload })

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error, got none")
	}
	if m.State() != StateDisconnected {
		t.Errorf("expected state disconnected, got %s", m.State())
	}

	select {
	case reason := <-errs:
		if reason != "Failed to connect to sync server" {
			t.Errorf("unexpected error reason: %v", reason)
		}
	case <-time.After(time.Second):
		t.Error("error event never fired")
	}
}

func TestManager_RetryAfterFailureSucceeds(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	m, hub := newTestManager(dialer)

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("expected first connect to fail")
	}

	connected := make(chan struct{}, 1)
	hub.On(events.Connected, func(payload any) { connected <- struct{}{} })

	dialer.mu.Lock()
	dialer.fail = false
	dialer.mu.Unlock()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Error("connected event never fired on retry")
	}
}

func TestManager_DispatchesInboundFrames(t *testing.T) {
	dialer := &fakeDialer{}
	m, hub := newTestManager(dialer)

	updated := make(chan *protocol.Message, 4)
	created := make(chan *protocol.Message, 4)
	errs := make(chan any, 4)
	hub.On(events.NoteUpdated, func(payload any) { updated <- payload.(*protocol.Message) })
	hub.On(events.NoteCreated, func(payload any) { created <- payload.(*protocol.Message) })
	hub.On(events.Error, func(payload any) { errs <- payload })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	conn := dialer.conn(t, 0)

	conn.inbound <- []byte(`{"action":"UPDATE_TITLE","noteId":"1","title":"B"}`)
	select {
	case msg := <-updated:
		if msg.Action != protocol.ActionUpdateTitle || msg.Title != "B" {
			t.Errorf("unexpected noteUpdated payload: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("noteUpdated never fired")
	}

	conn.inbound <- []byte(`{"action":"NOTE_CREATED","noteId":"2"}`)
	select {
	case msg := <-created:
		if msg.NoteID != "2" {
			t.Errorf("unexpected noteCreated payload: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("noteCreated never fired")
	}

	conn.inbound <- []byte(`{"action":"ERROR"}`)
	select {
	case reason := <-errs:
		if reason != "Unknown error" {
			t.Errorf("expected default error text, got %v", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("error event never fired")
	}
}

func TestManager_MalformedAndUnknownFramesAreDropped(t *testing.T) {
	dialer := &fakeDialer{}
	m, hub := newTestManager(dialer)

	updated := make(chan *protocol.Message, 4)
	hub.On(events.NoteUpdated, func(payload any) { updated <- payload.(*protocol.Message) })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	conn := dialer.conn(t, 0)

	conn.inbound <- []byte(`{{{not json`)
	conn.inbound <- []byte(`{"action":"NOTE_ARCHIVED","noteId":"1"}`)
	conn.inbound <- []byte(`{"action":"UPDATE_CONTENT","noteId":"1","content":"<p>x</p>"}`)

	select {
	case msg := <-updated:
		if msg.Content != "<p>x</p>" {
			t.Errorf("unexpected payload after dropped frames: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("valid frame after dropped frames never dispatched")
	}

	select {
	case msg := <-updated:
		t.Errorf("unexpected extra dispatch: %+v", msg)
	default:
	}
}

func TestManager_SendStampsUserID(t *testing.T) {
	dialer := &fakeDialer{}
	m, _ := newTestManager(dialer)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m.UpdateContent("1", "<p>xy</p>")

	conn := dialer.conn(t, 0)
	waitFor(t, "frame to be written", func() bool { return conn.writeCount() == 1 })

	msg := conn.lastWrite(t)
	if msg.Action != protocol.ActionUpdateContent || msg.NoteID != "1" || msg.Content != "<p>xy</p>" {
		t.Errorf("unexpected frame: %+v", msg)
	}
	if msg.UserID != 42 {
		t.Errorf("expected userId 42, got %d", msg.UserID)
	}
}

func TestManager_SendReconnectsLazily(t *testing.T) {
	dialer := &fakeDialer{}
	m, _ := newTestManager(dialer)

	m.UpdateTitle("1", "B")

	waitFor(t, "lazy dial", func() bool { return dialer.dialCount() == 1 })
	conn := dialer.conn(t, 0)
	waitFor(t, "frame after lazy connect", func() bool { return conn.writeCount() == 1 })

	msg := conn.lastWrite(t)
	if msg.Action != protocol.ActionUpdateTitle || msg.Title != "B" {
		t.Errorf("unexpected frame: %+v", msg)
	}
}

func TestManager_SendDropsMessageWhenReconnectFails(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	m, _ := newTestManager(dialer)

	m.UpdateContent("1", "<p>lost</p>")

	waitFor(t, "failed lazy dial", func() bool { return dialer.dialCount() == 1 })
	time.Sleep(50 * time.Millisecond)

	if m.State() != StateDisconnected {
		t.Errorf("expected state disconnected, got %s", m.State())
	}
}

func TestManager_DroppedConnectionEmitsDisconnected(t *testing.T) {
	dialer := &fakeDialer{}
	m, hub := newTestManager(dialer)

	disconnected := make(chan struct{}, 1)
	hub.On(events.Disconnected, func(payload any) { disconnected <- struct{}{} })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	dialer.conn(t, 0).Close()

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("disconnected event never fired")
	}
	if m.State() != StateDisconnected {
		t.Errorf("expected state disconnected, got %s", m.State())
	}

	// Reconnection is caller-driven: a fresh Connect opens a fresh socket.
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected reconnect to succeed, got %v", err)
	}
	if dialer.dialCount() != 2 {
		t.Errorf("expected 2 dials, got %d", dialer.dialCount())
	}
}

func TestManager_DisconnectClosesTransport(t *testing.T) {
	dialer := &fakeDialer{}
	m, hub := newTestManager(dialer)

	disconnected := make(chan struct{}, 1)
	hub.On(events.Disconnected, func(payload any) { disconnected <- struct{}{} })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m.Disconnect()

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("disconnected event never fired")
	}

	conn := dialer.conn(t, 0)
	select {
	case <-conn.closed:
	default:
		t.Error("expected transport to be closed")
	}
	if m.State() != StateDisconnected {
		t.Errorf("expected state disconnected, got %s", m.State())
	}
}

func TestManager_ConnectHonorsContext(t *testing.T) {
	dialer := &fakeDialer{block: make(chan struct{})}
	m, _ := newTestManager(dialer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	close(dialer.block)
}

func TestManager_WrittenFramesAreValidJSON(t *testing.T) {
	dialer := &fakeDialer{}
	m, _ := newTestManager(dialer)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m.UpdateContent("1", "<p>a \"quoted\" value</p>")

	conn := dialer.conn(t, 0)
	waitFor(t, "frame to be written", func() bool { return conn.writeCount() == 1 })

	conn.mu.Lock()
	raw := conn.writes[0]
	conn.mu.Unlock()
	if !json.Valid(raw) {
		t.Errorf("written frame is not valid JSON: %s", raw)
	}
}
