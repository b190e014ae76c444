package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campuspush/internal/model"
)

type fakeRecordStore struct {
	records   []model.NotificationRecord
	insertErr error
}

func (s *fakeRecordStore) Insert(_ context.Context, n *model.NotificationRecord) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.records = append(s.records, *n)
	return nil
}

type fakeQueueWriter struct {
	items      []model.DeliveryQueueItem
	enqueueErr error
}

func (q *fakeQueueWriter) Enqueue(_ context.Context, item *model.DeliveryQueueItem) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.items = append(q.items, *item)
	return nil
}

type fakeDirectory struct {
	byID   map[string]model.PushRecipient
	campus map[string][]model.PushRecipient
	all    []model.PushRecipient
}

func (d *fakeDirectory) FindRecipients(_ context.Context, userIDs []string) ([]model.PushRecipient, error) {
	var out []model.PushRecipient
	for _, id := range userIDs {
		if rec, ok := d.byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (d *fakeDirectory) FindCampusRecipients(_ context.Context, domain string) ([]model.PushRecipient, error) {
	return d.campus[domain], nil
}

func (d *fakeDirectory) FindAllRecipients(_ context.Context) ([]model.PushRecipient, error) {
	return d.all, nil
}

type fakePublisher struct {
	published []model.NotificationRecord
}

func (p *fakePublisher) Publish(_ context.Context, n *model.NotificationRecord) {
	p.published = append(p.published, *n)
}

type fixtures struct {
	records   *fakeRecordStore
	queue     *fakeQueueWriter
	dir       *fakeDirectory
	publisher *fakePublisher
	svc       *NotificationService
}

func newFixtures() *fixtures {
	f := &fixtures{
		records:   &fakeRecordStore{},
		queue:     &fakeQueueWriter{},
		dir:       &fakeDirectory{byID: make(map[string]model.PushRecipient)},
		publisher: &fakePublisher{},
	}
	f.svc = NewNotificationService(f.records, f.queue, f.dir, f.publisher, zap.NewNop())
	return f
}

func userTarget(id string) model.Target {
	return model.Target{Kind: model.TargetUser, UserID: id}
}

func validMessage() model.Message {
	return model.Message{Title: "Hello", Body: "World"}
}

func TestSubmitFansOutOneItemPerToken(t *testing.T) {
	f := newFixtures()
	f.dir.byID["alice"] = model.PushRecipient{
		UserID:      "alice",
		PushEnabled: true,
		Tokens:      []string{"token-a", "token-b"},
	}

	result, err := f.svc.Submit(context.Background(), model.TypeTest, userTarget("alice"), validMessage(), Caller{UserID: "bob"})
	require.NoError(t, err)

	// one record, two queue items referencing it
	require.Len(t, f.records.records, 1)
	record := f.records.records[0]
	assert.Equal(t, "alice", record.RecipientID)
	require.NotNil(t, record.SenderID)
	assert.Equal(t, "bob", *record.SenderID)

	require.Len(t, f.queue.items, 2)
	for _, item := range f.queue.items {
		assert.Equal(t, record.ID, item.NotificationID)
		assert.Equal(t, "Hello", item.Title)
		assert.Equal(t, "World", item.Body)
		assert.Equal(t, model.DefaultChannel, item.Channel)
	}
	assert.Equal(t, "token-a", f.queue.items[0].DeviceToken)
	assert.Equal(t, "token-b", f.queue.items[1].DeviceToken)

	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 2, result.Enqueued)
	assert.Len(t, result.NotificationIDs, 1)

	// realtime publish happens once per record
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, record.ID, f.publisher.published[0].ID)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixtures()
	caller := Caller{UserID: "bob"}

	tests := []struct {
		name   string
		typ    model.NotificationType
		target model.Target
		msg    model.Message
	}{
		{"missing title", model.TypeTest, userTarget("a"), model.Message{Body: "b"}},
		{"blank title", model.TypeTest, userTarget("a"), model.Message{Title: "   ", Body: "b"}},
		{"missing body", model.TypeTest, userTarget("a"), model.Message{Title: "t"}},
		{"unknown type", model.NotificationType("nonsense"), userTarget("a"), validMessage()},
		{"user target without id", model.TypeTest, model.Target{Kind: model.TargetUser}, validMessage()},
		{"unknown target kind", model.TypeTest, model.Target{Kind: "cohort"}, validMessage()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tt.typ, tt.target, tt.msg, caller)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	// validation failures must write nothing
	assert.Empty(t, f.records.records)
	assert.Empty(t, f.queue.items)
}

func TestSubmitBroadcastRequiresAdmin(t *testing.T) {
	f := newFixtures()
	f.dir.all = []model.PushRecipient{{UserID: "alice", PushEnabled: true, Tokens: []string{"t"}}}

	_, err := f.svc.Submit(context.Background(), model.TypeAnnouncement, model.Target{Kind: model.TargetAll}, validMessage(), Caller{UserID: "bob", Role: "student"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.records.records)

	_, err = f.svc.Submit(context.Background(), model.TypeAnnouncement, model.Target{Kind: model.TargetCampus, Domain: "example.edu"}, validMessage(), Caller{UserID: "bob"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	result, err := f.svc.Submit(context.Background(), model.TypeAnnouncement, model.Target{Kind: model.TargetAll}, validMessage(), Caller{UserID: "bob", Role: RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
}

func TestSubmitEmptyTargetIsSuccess(t *testing.T) {
	f := newFixtures()

	result, err := f.svc.Submit(context.Background(), model.TypeTest, userTarget("ghost"), validMessage(), Caller{UserID: "bob"})
	require.NoError(t, err)

	assert.Empty(t, result.NotificationIDs)
	assert.Zero(t, result.Accepted)
	assert.Zero(t, result.Enqueued)
	assert.Empty(t, f.records.records)
	assert.Empty(t, f.queue.items)
}

func TestSubmitSkipsDisabledAndTokenless(t *testing.T) {
	f := newFixtures()
	f.dir.byID["disabled"] = model.PushRecipient{UserID: "disabled", PushEnabled: false, Tokens: []string{"t"}}
	f.dir.byID["tokenless"] = model.PushRecipient{UserID: "tokenless", PushEnabled: true}
	f.dir.byID["ok"] = model.PushRecipient{UserID: "ok", PushEnabled: true, Tokens: []string{"t1"}}

	target := model.Target{Kind: model.TargetUsers, UserIDs: []string{"disabled", "tokenless", "ok"}}
	result, err := f.svc.Submit(context.Background(), model.TypeMessage, target, validMessage(), Caller{UserID: "bob"})
	require.NoError(t, err)

	// records exist for every resolved recipient, deliveries only for the
	// push-eligible one
	assert.Len(t, f.records.records, 3)
	assert.Len(t, f.queue.items, 1)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.SkippedDisabled)
	assert.Equal(t, 1, result.SkippedNoToken)
	assert.Len(t, f.publisher.published, 3)
}

func TestSubmitKeepsExplicitChannel(t *testing.T) {
	f := newFixtures()
	f.dir.byID["alice"] = model.PushRecipient{UserID: "alice", PushEnabled: true, Tokens: []string{"t"}}

	msg := validMessage()
	msg.Channel = "announcements"
	msg.Data = map[string]any{"post_id": "42"}

	_, err := f.svc.Submit(context.Background(), model.TypeAnnouncement, userTarget("alice"), msg, Caller{UserID: "bob"})
	require.NoError(t, err)

	require.Len(t, f.queue.items, 1)
	assert.Equal(t, "announcements", f.queue.items[0].Channel)
	assert.Equal(t, map[string]any{"post_id": "42"}, f.queue.items[0].Data)
}

func TestSubmitSystemNotificationHasNoSender(t *testing.T) {
	f := newFixtures()
	f.dir.byID["alice"] = model.PushRecipient{UserID: "alice", PushEnabled: true, Tokens: []string{"t"}}

	_, err := f.svc.Submit(context.Background(), model.TypeSystem, userTarget("alice"), validMessage(), Caller{Role: RoleAdmin})
	require.NoError(t, err)

	require.Len(t, f.records.records, 1)
	assert.Nil(t, f.records.records[0].SenderID)
}

func TestSubmitRecordInsertFailureSkipsEnqueue(t *testing.T) {
	f := newFixtures()
	f.dir.byID["alice"] = model.PushRecipient{UserID: "alice", PushEnabled: true, Tokens: []string{"t"}}
	f.records.insertErr = errors.New("db down")

	result, err := f.svc.Submit(context.Background(), model.TypeTest, userTarget("alice"), validMessage(), Caller{UserID: "bob"})
	require.NoError(t, err)

	assert.Empty(t, f.queue.items)
	assert.Zero(t, result.Accepted)
	assert.Empty(t, result.NotificationIDs)
}
