package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/agentchat/internal/db"
	"github.com/remote-agent-terminal/agentchat/internal/model"
)

func newRepo(t *testing.T) *TranscriptRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })
	return NewTranscriptRepository(testDB)
}

func createSession(t *testing.T, repo *TranscriptRepository) *model.ChatSession {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	s := &model.ChatSession{
		ID:        uuid.NewString(),
		Endpoint:  "ws://localhost:8000/ws/chat",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateSession(context.Background(), s))
	return s
}

func strPtr(s string) *string { return &s }

func sampleTurn(text string) (model.Message, model.Message) {
	user := model.Message{ID: uuid.NewString(), Role: model.RoleUser, Content: text}
	assistant := model.Message{
		ID:      uuid.NewString(),
		Role:    model.RoleAssistant,
		Content: "answer to " + text,
		Tools: []model.ToolExecution{
			{ID: uuid.NewString(), Name: "search", Input: "q", Output: strPtr("r"), Status: model.ToolStatusCompleted},
			{ID: uuid.NewString(), Name: "calc", Input: "1+1", Status: model.ToolStatusRunning},
		},
	}
	return user, assistant
}

func TestTranscriptRepository_SessionLifecycle(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo)

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Endpoint, got.Endpoint)
	assert.Equal(t, 0, got.MessageCount)

	_, err = repo.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	list, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].ID)

	require.NoError(t, repo.DeleteSession(ctx, s.ID))
	assert.ErrorIs(t, repo.DeleteSession(ctx, s.ID), model.ErrSessionNotFound)
}

func TestTranscriptRepository_SaveTurnRoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo)

	user, assistant := sampleTurn("hello")
	require.NoError(t, repo.SaveTurn(ctx, s.ID, user, assistant))

	messages, err := repo.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, user.ID, messages[0].ID)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Nil(t, messages[0].Tools)

	assert.Equal(t, assistant.Content, messages[1].Content)
	require.Len(t, messages[1].Tools, 2)
	assert.Equal(t, "search", messages[1].Tools[0].Name)
	require.NotNil(t, messages[1].Tools[0].Output)
	assert.Equal(t, "r", *messages[1].Tools[0].Output)
	assert.Nil(t, messages[1].Tools[1].Output)
	assert.Equal(t, model.ToolStatusRunning, messages[1].Tools[1].Status)

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
}

func TestTranscriptRepository_SaveTurnUnknownSession(t *testing.T) {
	repo := newRepo(t)
	user, assistant := sampleTurn("x")

	err := repo.SaveTurn(context.Background(), "missing", user, assistant)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestTranscriptRepository_SaveTurnIsAtomic(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo)

	user, assistant := sampleTurn("first")
	require.NoError(t, repo.SaveTurn(ctx, s.ID, user, assistant))

	// Reusing the assistant id fails the second insert; the user row must roll back.
	user2, _ := sampleTurn("second")
	err := repo.SaveTurn(ctx, s.ID, user2, assistant)
	require.Error(t, err)

	messages, err := repo.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestTranscriptRepository_EmptyAssistantHasEmptyTools(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	s := createSession(t, repo)

	user := model.Message{ID: "u", Role: model.RoleUser, Content: "hi"}
	assistant := model.Message{ID: "a", Role: model.RoleAssistant, Tools: []model.ToolExecution{}}
	require.NoError(t, repo.SaveTurn(ctx, s.ID, user, assistant))

	messages, err := repo.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.NotNil(t, messages[1].Tools)
	assert.Empty(t, messages[1].Tools)
}

// Saved turns come back in submission order with their content intact.
func TestTranscriptOrderingProperty(t *testing.T) {
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer testDB.Close()

	repo := NewTranscriptRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("turns are listed in the order they were saved", prop.ForAll(
		func(texts []string) bool {
			s := &model.ChatSession{ID: uuid.NewString(), Endpoint: "ws://test/ws/chat", CreatedAt: time.Now(), UpdatedAt: time.Now()}
			if err := repo.CreateSession(ctx, s); err != nil {
				t.Logf("failed to create session: %v", err)
				return false
			}

			for _, text := range texts {
				user, assistant := sampleTurn(text)
				if err := repo.SaveTurn(ctx, s.ID, user, assistant); err != nil {
					t.Logf("failed to save turn: %v", err)
					return false
				}
			}

			messages, err := repo.ListMessages(ctx, s.ID)
			if err != nil || len(messages) != 2*len(texts) {
				return false
			}
			for i, text := range texts {
				if messages[2*i].Content != text || messages[2*i].Role != model.RoleUser {
					return false
				}
				if messages[2*i+1].Content != fmt.Sprintf("answer to %s", text) {
					return false
				}
			}
			return countRows(testDB, s.ID) == len(texts)*2
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func countRows(testDB *sql.DB, sessionID string) int {
	var n int
	testDB.QueryRow(`SELECT COUNT(*) FROM tool_executions t JOIN messages m ON m.id = t.message_id WHERE m.session_id = ?`, sessionID).Scan(&n)
	return n
}
