package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/internal/api"
	"github.com/jtich40/event-driven-integration-demo/internal/events"
	"github.com/jtich40/event-driven-integration-demo/pkg/models"
	"github.com/jtich40/event-driven-integration-demo/pkg/rabbitmq"
	"github.com/jtich40/event-driven-integration-demo/pkg/store"
)

type recordingSender struct {
	msgs []rabbitmq.Message
	err  error
}

func (r *recordingSender) Publish(ctx context.Context, msg rabbitmq.Message) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func newTestAPI(t *testing.T) (*apiClient, *store.MemoryTable[models.User], *recordingSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := store.NewMemoryTable[models.User]()
	sender := &recordingSender{}
	handler := api.NewUserHandler(users, events.NewPublisher(sender, zap.NewNop()), zap.NewNop())
	srv := httptest.NewServer(api.NewRouter(handler, zap.NewNop()))
	t.Cleanup(srv.Close)

	return &apiClient{base: srv.URL, http: srv.Client()}, users, sender
}

func TestCreateUserThenGetAndList(t *testing.T) {
	client, users, sender := newTestAPI(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, client.createUser(ctx, &out, "Ada", "ada@x.io"))
	assert.Contains(t, out.String(), "[ok] created")

	rows, err := users.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id := rows[0].ID
	assert.Contains(t, out.String(), id)

	require.Len(t, sender.msgs, 1)
	assert.True(t, strings.HasPrefix(sender.msgs[0].CorrelationID, "cli-"))

	out.Reset()
	require.NoError(t, client.getUser(ctx, &out, id))
	assert.Contains(t, out.String(), "ada@x.io")

	out.Reset()
	require.NoError(t, client.listUsers(ctx, &out))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "1 users")
}

func TestCreateUser_RejectedRequest(t *testing.T) {
	client, users, _ := newTestAPI(t)

	err := client.createUser(context.Background(), &bytes.Buffer{}, "Ada", "not-an-email")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, 0, users.Len())
}

func TestGetUser_NotFound(t *testing.T) {
	client, _, _ := newTestAPI(t)

	err := client.getUser(context.Background(), &bytes.Buffer{}, "missing")
	assert.EqualError(t, err, "user missing not found")
}

func TestListUsers_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
	}))
	defer srv.Close()

	client := &apiClient{base: srv.URL, http: srv.Client()}
	err := client.listUsers(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestPrintProcessed(t *testing.T) {
	ctx := context.Background()
	audit := store.NewMemoryTable[models.ProcessedEventRecord]()
	require.NoError(t, audit.Put(ctx, models.ProcessedEventRecord{
		EventID:     "e1",
		UserID:      "u1",
		UserEmail:   "a@x.com",
		ExternalID:  "EMP-u1",
		Status:      models.StatusProcessed,
		ProcessedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	var out bytes.Buffer
	require.NoError(t, printProcessed(ctx, &out, audit))

	assert.Contains(t, out.String(), "e1")
	assert.Contains(t, out.String(), "EMP-u1")
	assert.Contains(t, out.String(), "2024-01-01T00:00:00Z")
	assert.Contains(t, out.String(), "1 processed events")
}

func TestReadPayload(t *testing.T) {
	data, err := readPayload(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte("{invalid"), 0o600))
	data, err = readPayload("@" + path)
	require.NoError(t, err)
	assert.Equal(t, "{invalid", string(data))

	_, err = readPayload("@" + filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSendRaw(t *testing.T) {
	sender := &recordingSender{}
	var out bytes.Buffer

	require.NoError(t, sendRaw(context.Background(), &out, sender, []byte("{invalid")))
	require.Len(t, sender.msgs, 1)

	msg := sender.msgs[0]
	assert.Equal(t, events.RoutingKeyUserCreated, msg.RoutingKey)
	assert.Equal(t, "{invalid", string(msg.Body))
	assert.NotEmpty(t, msg.MessageID)
	assert.Contains(t, out.String(), msg.MessageID)

	sender.err = errors.New("nacked")
	assert.Error(t, sendRaw(context.Background(), &out, sender, []byte("{}")))
}
