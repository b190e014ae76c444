package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campuspush/internal/model"
	"campuspush/internal/realtime"
	"campuspush/internal/repository"
	"campuspush/internal/service"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSubmitter struct {
	result     *model.DeliveryResult
	err        error
	lastType   model.NotificationType
	lastTarget model.Target
	lastCaller service.Caller
}

func (f *fakeSubmitter) Submit(_ context.Context, typ model.NotificationType, target model.Target, _ model.Message, caller service.Caller) (*model.DeliveryResult, error) {
	f.lastType = typ
	f.lastTarget = target
	f.lastCaller = caller
	return f.result, f.err
}

type fakeInbox struct {
	records     []model.NotificationRecord
	markReadErr error
	markedID    string
}

func (f *fakeInbox) ListByRecipient(_ context.Context, recipientID string, _, _ int) ([]model.NotificationRecord, error) {
	var out []model.NotificationRecord
	for _, n := range f.records {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeInbox) ListUnread(_ context.Context, recipientID string, _ int) ([]model.NotificationRecord, error) {
	var out []model.NotificationRecord
	for _, n := range f.records {
		if n.RecipientID == recipientID && !n.IsRead {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeInbox) MarkRead(_ context.Context, id, _ string) error {
	if f.markReadErr != nil {
		return f.markReadErr
	}
	f.markedID = id
	return nil
}

func (f *fakeInbox) MarkAllRead(context.Context, string) error { return nil }

type fakeQueueInspector struct {
	stats model.QueueStats
}

func (f *fakeQueueInspector) CountByStatus(context.Context) (model.QueueStats, error) {
	return f.stats, nil
}

type fakeDevices struct {
	registered map[string]string
}

func (f *fakeDevices) Register(_ context.Context, userID, token string) error {
	f.registered[token] = userID
	return nil
}

func (f *fakeDevices) Unregister(_ context.Context, _, token string) error {
	if _, ok := f.registered[token]; !ok {
		return repository.ErrNotFound
	}
	delete(f.registered, token)
	return nil
}

type fakeSubscriber struct {
	events chan realtime.Event
}

func (f *fakeSubscriber) Subscribe(context.Context, string) <-chan realtime.Event {
	return f.events
}

type testEnv struct {
	router    *gin.Engine
	submitter *fakeSubmitter
	inbox     *fakeInbox
	devices   *fakeDevices
	events    chan realtime.Event
}

func newTestEnv() *testEnv {
	env := &testEnv{
		submitter: &fakeSubmitter{result: &model.DeliveryResult{}},
		inbox:     &fakeInbox{},
		devices:   &fakeDevices{registered: make(map[string]string)},
		events:    make(chan realtime.Event, 1),
	}

	log := zap.NewNop()
	notificationHandler := NewNotificationHandler(env.submitter, env.inbox, &fakeQueueInspector{
		stats: model.QueueStats{Pending: 2, Sent: 5, Failed: 1},
	}, log)
	deviceHandler := NewDeviceHandler(env.devices, log)
	streamHandler := NewStreamHandler(&fakeSubscriber{events: env.events}, log)

	r := gin.New()
	auth := r.Group("/")
	auth.Use(AuthMiddleware(testSecret))
	{
		auth.POST("/notifications", notificationHandler.Submit)
		auth.GET("/notifications/status", notificationHandler.Status)
		auth.GET("/notifications", notificationHandler.List)
		auth.GET("/notifications/unread", notificationHandler.ListUnread)
		auth.GET("/notifications/stream", streamHandler.Stream)
		auth.PUT("/notifications/read-all", notificationHandler.MarkAllRead)
		auth.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		auth.POST("/devices", deviceHandler.Register)
		auth.DELETE("/devices/:token", deviceHandler.Unregister)
	}
	env.router = r
	return env
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doRequest(env *testEnv, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestSubmitRequiresToken(t *testing.T) {
	env := newTestEnv()

	w := doRequest(env, http.MethodPost, "/notifications", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(env, http.MethodPost, "/notifications", "garbage", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitPassesCallerIdentity(t *testing.T) {
	env := newTestEnv()
	env.submitter.result = &model.DeliveryResult{Accepted: 1, Enqueued: 2}

	body := `{"type":"test","target":{"kind":"user","user_id":"alice"},"message":{"title":"Hi","body":"there"}}`
	w := doRequest(env, http.MethodPost, "/notifications", signToken(t, "bob", "admin"), body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), `"enqueued":2`)

	assert.Equal(t, model.TypeTest, env.submitter.lastType)
	assert.Equal(t, model.TargetUser, env.submitter.lastTarget.Kind)
	assert.Equal(t, "bob", env.submitter.lastCaller.UserID)
	assert.Equal(t, "admin", env.submitter.lastCaller.Role)
}

func TestSubmitErrorMapping(t *testing.T) {
	body := `{"type":"test","target":"all","message":{"title":"Hi","body":"there"}}`

	env := newTestEnv()
	env.submitter.err = service.ErrValidation
	w := doRequest(env, http.MethodPost, "/notifications", signToken(t, "bob", ""), body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.submitter.err = service.ErrUnauthorized
	w = doRequest(env, http.MethodPost, "/notifications", signToken(t, "bob", ""), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(env, http.MethodPost, "/notifications", signToken(t, "bob", ""), `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusReportsQueueCounts(t *testing.T) {
	env := newTestEnv()

	w := doRequest(env, http.MethodGet, "/notifications/status", signToken(t, "bob", ""), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending":2`)
	assert.Contains(t, w.Body.String(), `"sent":5`)
	assert.Contains(t, w.Body.String(), `"failed":1`)
}

func TestListReturnsOwnNotificationsOnly(t *testing.T) {
	env := newTestEnv()
	env.inbox.records = []model.NotificationRecord{
		{ID: "n1", RecipientID: "bob", Title: "yours", CreatedAt: time.Now()},
		{ID: "n2", RecipientID: "alice", Title: "hers", CreatedAt: time.Now()},
	}

	w := doRequest(env, http.MethodGet, "/notifications", signToken(t, "bob", ""), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "n1")
	assert.NotContains(t, w.Body.String(), "n2")
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv()

	w := doRequest(env, http.MethodPut, "/notifications/n1/read", signToken(t, "bob", ""), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "n1", env.inbox.markedID)

	env.inbox.markReadErr = repository.ErrNotFound
	w = doRequest(env, http.MethodPut, "/notifications/n2/read", signToken(t, "bob", ""), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeviceRegisterAndUnregister(t *testing.T) {
	env := newTestEnv()
	token := signToken(t, "bob", "")

	w := doRequest(env, http.MethodPost, "/devices", token, `{"token":"device-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", env.devices.registered["device-1"])

	w = doRequest(env, http.MethodPost, "/devices", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(env, http.MethodDelete, "/devices/device-1", token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(env, http.MethodDelete, "/devices/device-1", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// closeNotifyRecorder adds the CloseNotifier surface gin's Stream helper
// expects from a real server connection.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func TestStreamForwardsEventsAsSSE(t *testing.T) {
	env := newTestEnv()

	env.events <- realtime.Event{NotificationID: "n1", Title: "Hi", Body: "there"}
	close(env.events)

	req := httptest.NewRequest(http.MethodGet, "/notifications/stream", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "bob", ""))
	w := &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
	env.router.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, "event:notification")
	assert.Contains(t, body, "n1")
}
