package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoff-tech/event-pipeline/pkg/counter"
	"github.com/zoff-tech/event-pipeline/pkg/envelope"
	"github.com/zoff-tech/event-pipeline/pkg/store"
)

// mockRepository is an in-memory EventRepository with injectable failures.
type mockRepository struct {
	mu           sync.Mutex
	records      map[string]*store.EventRecord
	shards       map[string]map[int]int64
	createErr    error
	incrementErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		records: map[string]*store.EventRecord{},
		shards:  map[string]map[int]int64{},
	}
}

func (m *mockRepository) GetEvent(ctx context.Context, eventID string) (*store.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return record, nil
}

func (m *mockRepository) CreateEvent(ctx context.Context, record *store.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.records[record.EventID]; ok {
		return store.ErrDuplicateEvent
	}
	m.records[record.EventID] = record
	return nil
}

func (m *mockRepository) ListRecent(ctx context.Context, limit int) ([]store.EventRecord, error) {
	return nil, nil
}

func (m *mockRepository) IncrementShard(ctx context.Context, bucketID string, shard int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	if m.shards[bucketID] == nil {
		m.shards[bucketID] = map[int]int64{}
	}
	m.shards[bucketID][shard]++
	return nil
}

func (m *mockRepository) BucketShards(ctx context.Context, bucketID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var counts []int64
	for _, count := range m.shards[bucketID] {
		counts = append(counts, count)
	}
	return counts, nil
}

func (m *mockRepository) totalCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, bucket := range m.shards {
		for _, count := range bucket {
			total += count
		}
	}
	return total
}

func newTestHandler(repo *mockRepository, poisonEventType string) *Handler {
	return NewHandler(repo, counter.New(repo, 20), time.Second, poisonEventType)
}

func pushBody(t *testing.T, env *envelope.Envelope, messageID string) []byte {
	t.Helper()
	data, err := env.Encode()
	require.NoError(t, err)
	body, err := json.Marshal(envelope.PushRequest{
		Message: envelope.PushMessage{
			Data:        data,
			Attributes:  env.Attributes(),
			MessageID:   messageID,
			PublishTime: time.Now(),
		},
		Subscription: "projects/p/subscriptions/s",
	})
	require.NoError(t, err)
	return body
}

func doPush(h *Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pubsub", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandlePush(rec, req)
	return rec
}

func TestHandlePushStoresEvent(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, "")

	env := envelope.New("evt-1", "order.placed", "checkout", map[string]interface{}{"orderId": "ORD-1"})
	rec := doPush(h, pushBody(t, env, "m-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp pushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "evt-1", resp.StoredAs)
	assert.Empty(t, resp.Status)

	stored, err := repo.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.NotZero(t, stored.ProcessedAt)
	assert.Equal(t, "m-1", stored.Delivery.MessageID)
	assert.Equal(t, int64(1), repo.totalCount())
}

func TestHandlePushDuplicateIsNoOp(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, "")

	env := envelope.New("evt-1", "order.placed", "", nil)
	body := pushBody(t, env, "m-1")

	first := doPush(h, body)
	assert.Equal(t, http.StatusOK, first.Code)

	second := doPush(h, body)
	assert.Equal(t, http.StatusOK, second.Code)

	var resp pushResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "duplicate", resp.Status)
	assert.Equal(t, "evt-1", resp.StoredAs)

	// Exactly one record and one counter increment
	assert.Len(t, repo.records, 1)
	assert.Equal(t, int64(1), repo.totalCount())
}

func TestHandlePushConcurrentDuplicateLosesInsertRace(t *testing.T) {
	repo := newMockRepository()
	// The lookup misses but the conditional insert reports a duplicate, as
	// when a concurrent delivery wins between check and set.
	repo.createErr = store.ErrDuplicateEvent
	h := newTestHandler(repo, "")

	rec := doPush(h, pushBody(t, envelope.New("evt-1", "order.placed", "", nil), "m-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp pushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp.Status)
	assert.Zero(t, repo.totalCount(), "losing delivery must not increment the counter")
}

func TestHandlePushFallsBackToMessageID(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, "")

	env := &envelope.Envelope{EventType: "order.placed", SchemaVersion: 1}
	rec := doPush(h, pushBody(t, env, "m-77"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp pushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "m-77", resp.StoredAs)
}

func TestHandlePushMissingIdentity(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, "")

	env := &envelope.Envelope{EventType: "order.placed", SchemaVersion: 1}
	rec := doPush(h, pushBody(t, env, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePushMalformedDelivery(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, "")

	tests := []struct {
		name string
		body string
	}{
		{name: "missing body", body: `{"message":{"messageId":"m-1"}}`},
		{name: "not json", body: `garbage`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doPush(h, []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlePushPoisonEventType(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, "fail")

	rec := doPush(h, pushBody(t, envelope.New("evt-1", "fail", "", nil), "m-1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, repo.records, "poison events must not be stored")
}

func TestHandlePushPoisonHookDisabled(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, "")

	rec := doPush(h, pushBody(t, envelope.New("evt-1", "fail", "", nil), "m-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, repo.records, 1)
}

func TestHandlePushStoreFailure(t *testing.T) {
	repo := newMockRepository()
	repo.createErr = errors.New("store down")
	h := newTestHandler(repo, "")

	rec := doPush(h, pushBody(t, envelope.New("evt-1", "order.placed", "", nil), "m-1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandlePushCounterFailureStillAcks(t *testing.T) {
	repo := newMockRepository()
	repo.incrementErr = errors.New("counter down")
	h := newTestHandler(repo, "")

	rec := doPush(h, pushBody(t, envelope.New("evt-1", "order.placed", "", nil), "m-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp pushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Empty(t, resp.Status)
}
