package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/agentchat/internal/buffer"
	"github.com/remote-agent-terminal/agentchat/internal/db"
	"github.com/remote-agent-terminal/agentchat/internal/model"
	"github.com/remote-agent-terminal/agentchat/internal/repository"
	"github.com/remote-agent-terminal/agentchat/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSession struct {
	mu        sync.Mutex
	submitErr error
	submitted []string
	conv      []model.Message
	frames    []buffer.Frame
}

func (f *fakeSession) ID() string { return "sess-1" }

func (f *fakeSession) Submit(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, text)
	f.conv = append(f.conv,
		model.Message{ID: fmt.Sprintf("u%d", len(f.conv)), Role: model.RoleUser, Content: text},
		model.Message{ID: fmt.Sprintf("a%d", len(f.conv)+1), Role: model.RoleAssistant, IsStreaming: true},
	)
	return nil
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.State{
		SessionID:    "sess-1",
		Conversation: append([]model.Message(nil), f.conv...),
		Connection:   model.ConnectionConnected,
		Processing:   len(f.conv) > 0,
	}
}

func (f *fakeSession) RecentFrames(n int) []buffer.Frame {
	if n <= 0 || n >= len(f.frames) {
		return f.frames
	}
	return f.frames[len(f.frames)-n:]
}

func newChatRouter(sess LiveSession) *gin.Engine {
	r := gin.New()
	NewChatHandler(sess).RegisterRoutes(r.Group("/api"))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestChatHandler_Submit(t *testing.T) {
	sess := &fakeSession{}
	r := newChatRouter(sess)

	w := do(r, http.MethodPost, "/api/messages", `{"message":"hello"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "a1", resp.MessageID)
	assert.Equal(t, []string{"hello"}, sess.submitted)
}

func TestChatHandler_SubmitErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest, CodeValidation},
		{"missing message", `{}`, nil, http.StatusBadRequest, CodeValidation},
		{"blank message", `{"message":"   "}`, nil, http.StatusBadRequest, CodeValidation},
		{"turn in flight", `{"message":"hi"}`, fmt.Errorf("%w: %w", model.ErrBlocked, model.ErrTurnInFlight), http.StatusConflict, CodeAgentBusy},
		{"not connected", `{"message":"hi"}`, fmt.Errorf("%w: %w", model.ErrBlocked, model.ErrNotConnected), http.StatusServiceUnavailable, CodeNotConnected},
		{"encode failure", `{"message":"hi"}`, fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{submitErr: tt.err}
			w := do(newChatRouter(sess), http.MethodPost, "/api/messages", tt.body)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, w).Code)
			assert.Empty(t, sess.submitted)
		})
	}
}

func TestChatHandler_State(t *testing.T) {
	sess := &fakeSession{}
	require.NoError(t, sess.Submit("hi"))

	w := do(newChatRouter(sess), http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st session.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "sess-1", st.SessionID)
	assert.True(t, st.Processing)
	assert.Equal(t, model.ConnectionConnected, st.Connection)
	require.Len(t, st.Conversation, 2)
	assert.Equal(t, "hi", st.Conversation[0].Content)
}

func TestChatHandler_Frames(t *testing.T) {
	ring := buffer.NewFrameRing(8)
	ring.Push(buffer.Outbound, []byte(`{"message":"hi"}`))
	ring.Push(buffer.Inbound, []byte(`{"type":"token","content":"a"}`))
	ring.Push(buffer.Inbound, []byte(`{"type":"agent_end","output":"a"}`))
	sess := &fakeSession{frames: ring.Snapshot()}
	r := newChatRouter(sess)

	w := do(r, http.MethodGet, "/api/debug/frames?n=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var frames []buffer.Frame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &frames))
	require.Len(t, frames, 2)
	assert.Equal(t, buffer.Inbound, frames[0].Direction)

	w = do(r, http.MethodGet, "/api/debug/frames?n=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newChatRouter(&fakeSession{}), http.MethodGet, "/api/debug/frames", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func newSessionRouter(t *testing.T, recordDir string) (*gin.Engine, *repository.TranscriptRepository) {
	t.Helper()
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })

	repo := repository.NewTranscriptRepository(testDB)
	r := gin.New()
	NewSessionHandler(repo, recordDir).RegisterRoutes(r.Group("/api"))
	return r, repo
}

func seedSession(t *testing.T, repo *repository.TranscriptRepository, id string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.CreateSession(ctx, &model.ChatSession{
		ID:        id,
		Endpoint:  "ws://agent/ws/chat",
		CreatedAt: now,
		UpdatedAt: now,
	}))

	out := "file.txt"
	require.NoError(t, repo.SaveTurn(ctx, id,
		model.Message{ID: id + "-u", Role: model.RoleUser, Content: "list files"},
		model.Message{ID: id + "-a", Role: model.RoleAssistant, Content: "done", Tools: []model.ToolExecution{
			{ID: id + "-t", Name: "ls", Input: ".", Output: &out, Status: model.ToolStatusCompleted},
		}},
	))
}

func TestSessionHandler_ListAndGet(t *testing.T) {
	r, repo := newSessionRouter(t, "")
	seedSession(t, repo, "s1")
	seedSession(t, repo, "s2")

	w := do(r, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = do(r, http.MethodGet, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, 2, got.MessageCount)

	w = do(r, http.MethodGet, "/api/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeSessionNotFound, decodeError(t, w).Code)
}

func TestSessionHandler_Messages(t *testing.T) {
	r, repo := newSessionRouter(t, "")
	seedSession(t, repo, "s1")

	w := do(r, http.MethodGet, "/api/sessions/s1/messages", "")
	require.Equal(t, http.StatusOK, w.Code)

	var msgs []model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "done", msgs[1].Content)
	require.Len(t, msgs[1].Tools, 1)
	assert.Equal(t, model.ToolStatusCompleted, msgs[1].Tools[0].Status)

	w = do(r, http.MethodGet, "/api/sessions/nope/messages", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_Recording(t *testing.T) {
	dir := t.TempDir()
	r, repo := newSessionRouter(t, dir)
	seedSession(t, repo, "s1")
	seedSession(t, repo, "s2")

	content := `{"version":2,"timestamp":0}` + "\n" + `[0.1,"i","{\"message\":\"hi\"}"]` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s1.jsonl"), []byte(content), 0o644))

	w := do(r, http.MethodGet, "/api/sessions/s1/recording", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "s1.jsonl")

	w = do(r, http.MethodGet, "/api/sessions/s2/recording", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeRecordingAbsent, decodeError(t, w).Code)

	disabled, repo2 := newSessionRouter(t, "")
	seedSession(t, repo2, "s1")
	w = do(disabled, http.MethodGet, "/api/sessions/s1/recording", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", formatDuration(-time.Second))
	assert.Equal(t, "1m30s", formatDuration(90*time.Second+200*time.Millisecond))
}

func TestToSessionResponse_Duration(t *testing.T) {
	created := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	resp := toSessionResponse(&model.ChatSession{
		ID:        "s1",
		CreatedAt: created,
		UpdatedAt: created.Add(2*time.Minute + 5*time.Second),
	})
	assert.Equal(t, "2m5s", resp.Duration)
	assert.Equal(t, "2026-01-02T10:00:00Z", resp.CreatedAt)
}
