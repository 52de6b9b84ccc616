package ws

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/session"
)

// fakeSession records submissions and lets tests drive observers.
type fakeSession struct {
	mu        sync.Mutex
	submitted []string
	submitErr error
	state     session.State
	onChange  func(session.State)
	onNotify  func(model.Notification)
}

func (f *fakeSession) Submit(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, text)
	return nil
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) SetOnChange(fn func(session.State))      { f.onChange = fn }
func (f *fakeSession) SetOnNotify(fn func(model.Notification)) { f.onNotify = fn }

func (f *fakeSession) submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func receiveWithTimeout(t *testing.T, client *Client, timeout time.Duration) []byte {
	t.Helper()
	select {
	case data := <-client.events:
		return data
	case <-time.After(timeout):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func pendingState(client *Client) (string, bool) {
	select {
	case data := <-client.state:
		return string(data), true
	default:
		return "", false
	}
}

func TestHubClientManagement(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	client1 := NewClient(nil)
	client2 := NewClient(nil)

	hub.Register(client1)
	hub.Register(client2)

	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}

	testData := []byte("test broadcast message")
	hub.Broadcast(testData)

	if got := receiveWithTimeout(t, client1, 100*time.Millisecond); string(got) != string(testData) {
		t.Errorf("client1 received wrong data: %s", got)
	}
	if got := receiveWithTimeout(t, client2, 100*time.Millisecond); string(got) != string(testData) {
		t.Errorf("client2 received wrong data: %s", got)
	}

	hub.Unregister(client1)
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unregister, got %d", hub.ClientCount())
	}
	if !client1.IsClosed() {
		t.Error("expected unregistered client to be closed")
	}
}

func TestClientSendAfterClose(t *testing.T) {
	client := NewClient(nil)
	client.Close()
	client.Close()

	// Must not block or panic once closed.
	client.Send([]byte("late"))
	client.offerState([]byte("late"))
	if _, ok := pendingState(client); ok {
		t.Error("closed client accepted a snapshot")
	}
}

func TestClientDroppedWhenBufferFull(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil)
	hub.Register(client)

	for i := 0; i < cap(client.events)+1; i++ {
		client.Send([]byte("x"))
	}
	if !client.IsClosed() {
		t.Error("expected slow client to be closed")
	}
}

func TestHandleMessage_Routing(t *testing.T) {
	fake := &fakeSession{}
	hub := NewHub()
	NewHandler(hub, fake, zerolog.Nop())
	client := NewClient(nil)

	hub.HandleMessage(client, &Message{Type: MessageTypePing})
	var msg Message
	if err := json.Unmarshal(receiveWithTimeout(t, client, 100*time.Millisecond), &msg); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if msg.Type != MessageTypePong {
		t.Errorf("expected pong, got %s", msg.Type)
	}

	hub.HandleMessage(client, &Message{Type: MessageTypeSubmit, Data: "hello"})
	if got := fake.submissions(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("expected submission 'hello', got %v", got)
	}

	hub.HandleMessage(client, &Message{Type: MessageTypeSubmit})
	json.Unmarshal(receiveWithTimeout(t, client, 100*time.Millisecond), &msg)
	if msg.Type != MessageTypeError {
		t.Errorf("expected error for empty submit, got %s", msg.Type)
	}

	fake.submitErr = errors.New("submission blocked: not connected")
	hub.HandleMessage(client, &Message{Type: MessageTypeSubmit, Data: "again"})
	json.Unmarshal(receiveWithTimeout(t, client, 100*time.Millisecond), &msg)
	if msg.Type != MessageTypeError || !strings.Contains(msg.Error, "not connected") {
		t.Errorf("expected blocked error, got %+v", msg)
	}

	hub.HandleMessage(client, &Message{Type: "resize"})
	json.Unmarshal(receiveWithTimeout(t, client, 100*time.Millisecond), &msg)
	if msg.Type != MessageTypeError {
		t.Errorf("expected error for unknown type, got %s", msg.Type)
	}
}

func TestHub_RegisterPrimesLatestState(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	early := NewClient(nil)
	hub.Register(early)
	if _, ok := pendingState(early); ok {
		t.Fatal("no state published yet, expected an empty slot")
	}

	hub.PublishState([]byte("s1"))
	if got, _ := pendingState(early); got != "s1" {
		t.Errorf("expected s1 for attached client, got %q", got)
	}

	late := NewClient(nil)
	hub.Register(late)
	if got, _ := pendingState(late); got != "s1" {
		t.Errorf("expected late joiner primed with s1, got %q", got)
	}
}

func TestClient_StateCoalesces(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	client := NewClient(nil)
	hub.Register(client)

	// A token stream far longer than the event queue never drops the client.
	for i := 0; i < 10*eventBuffer; i++ {
		hub.PublishState([]byte(fmt.Sprintf("s%d", i)))
	}
	hub.Broadcast([]byte("note"))

	if client.IsClosed() {
		t.Fatal("client closed by state backlog")
	}
	if got, _ := pendingState(client); got != fmt.Sprintf("s%d", 10*eventBuffer-1) {
		t.Errorf("expected newest snapshot only, got %q", got)
	}
	if _, ok := pendingState(client); ok {
		t.Error("expected a single pending snapshot")
	}
	if got := receiveWithTimeout(t, client, 100*time.Millisecond); string(got) != "note" {
		t.Errorf("expected queued notification, got %q", got)
	}
}

func dialUI(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	return msg
}

func TestService_Bridge(t *testing.T) {
	fake := &fakeSession{state: session.State{
		SessionID:    "sess-1",
		Connection:   model.ConnectionConnected,
		Conversation: []model.Message{{ID: "u1", Role: model.RoleUser, Content: "earlier"}},
	}}
	nop := zerolog.Nop()
	svc := NewService(fake, &nop)
	defer svc.Close()

	srv := httptest.NewServer(svc)
	defer srv.Close()

	conn := dialUI(t, srv)

	// Snapshot on attach.
	msg := readMessage(t, conn)
	if msg.Type != MessageTypeState {
		t.Fatalf("expected state snapshot, got %s", msg.Type)
	}
	var st session.State
	if err := json.Unmarshal(msg.Payload, &st); err != nil {
		t.Fatalf("failed to unmarshal state: %v", err)
	}
	if len(st.Conversation) != 1 || st.Conversation[0].Content != "earlier" {
		t.Errorf("unexpected snapshot: %+v", st)
	}

	// Submissions reach the session.
	if err := conn.WriteJSON(Message{Type: MessageTypeSubmit, Data: "hi"}); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(fake.submissions()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := fake.submissions(); len(got) != 1 || got[0] != "hi" {
		t.Fatalf("expected submission, got %v", got)
	}

	// Session observers fan out.
	fake.onNotify(model.NewNotification("Agent Busy", "wait"))
	msg = readMessage(t, conn)
	if msg.Type != MessageTypeNotification {
		t.Fatalf("expected notification, got %s", msg.Type)
	}
	var note model.Notification
	json.Unmarshal(msg.Payload, &note)
	if note.Title != "Agent Busy" {
		t.Errorf("unexpected notification: %+v", note)
	}

	fake.onChange(session.State{SessionID: "sess-1", Processing: true})
	msg = readMessage(t, conn)
	if msg.Type != MessageTypeState {
		t.Fatalf("expected state, got %s", msg.Type)
	}

	if svc.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", svc.ClientCount())
	}
}

func TestService_LateClientSeesLatestState(t *testing.T) {
	fake := &fakeSession{state: session.State{SessionID: "sess-1"}}
	nop := zerolog.Nop()
	svc := NewService(fake, &nop)
	defer svc.Close()

	// Changes while nobody is attached still update what the next client sees.
	fake.onChange(session.State{SessionID: "sess-1", Processing: true})

	srv := httptest.NewServer(svc)
	defer srv.Close()

	msg := readMessage(t, dialUI(t, srv))
	if msg.Type != MessageTypeState {
		t.Fatalf("expected state snapshot, got %s", msg.Type)
	}
	var st session.State
	if err := json.Unmarshal(msg.Payload, &st); err != nil {
		t.Fatalf("failed to unmarshal state: %v", err)
	}
	if !st.Processing {
		t.Errorf("expected the latest snapshot, got %+v", st)
	}
}

func TestService_CloseDetachesClients(t *testing.T) {
	fake := &fakeSession{}
	nop := zerolog.Nop()
	svc := NewService(fake, &nop)

	srv := httptest.NewServer(svc)
	defer srv.Close()

	conn := dialUI(t, srv)
	readMessage(t, conn)

	svc.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed")
	}
}
