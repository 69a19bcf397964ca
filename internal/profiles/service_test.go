package profiles

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/storge/internal/transport"
)

// fakeQuerier implements transport.Querier for testing
type fakeQuerier struct {
	mu       sync.Mutex
	profiles map[string]transport.Record
	selects  int
}

func (q *fakeQuerier) Select(ctx context.Context, collection string, filter map[string]any, order transport.Order) ([]transport.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.selects++
	id, _ := filter["id"].(string)
	if rec, ok := q.profiles[id]; ok {
		return []transport.Record{rec}, nil
	}
	return nil, nil
}

func (q *fakeQuerier) Insert(ctx context.Context, collection string, record transport.Record) (transport.Record, error) {
	return record, nil
}

func (q *fakeQuerier) Update(ctx context.Context, collection string, filter map[string]any, patch transport.Record) (transport.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id, _ := filter["id"].(string)
	rec, ok := q.profiles[id]
	if !ok {
		return nil, errors.New("no such profile")
	}
	for k, v := range patch {
		rec[k] = v
	}
	return rec, nil
}

// fakeObjectStore implements transport.ObjectStore
type fakeObjectStore struct {
	mu      sync.Mutex
	uploads []string
}

func (s *fakeObjectStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, bucket+"/"+path)
	return "https://cdn.test/" + bucket + "/" + path, nil
}

func newService(q *fakeQuerier, objects transport.ObjectStore) *Service {
	return NewService(Dependencies{Querier: q, Objects: objects})
}

func aliceRecord() transport.Record {
	return transport.Record{"id": "u1", "username": "alice", "bio": "hi"}
}

func TestService_Get(t *testing.T) {
	q := &fakeQuerier{profiles: map[string]transport.Record{"u1": aliceRecord()}}
	s := newService(q, nil)

	p, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "hi", p.Bio)
}

func TestService_Get_CachesLookups(t *testing.T) {
	q := &fakeQuerier{profiles: map[string]transport.Record{"u1": aliceRecord()}}
	s := newService(q, nil)

	_, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, q.selects, "the second lookup must come from cache")
}

func TestService_Get_NotFound(t *testing.T) {
	q := &fakeQuerier{profiles: map[string]transport.Record{}}
	s := newService(q, nil)

	_, err := s.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestService_Resolve(t *testing.T) {
	q := &fakeQuerier{profiles: map[string]transport.Record{
		"u1": {"id": "u1", "username": "alice", "avatar_url": "https://cdn.test/a.png"},
	}}
	s := newService(q, nil)

	display, err := s.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", display.Name)
	assert.Equal(t, "https://cdn.test/a.png", display.Avatar)
}

func TestService_Update_RefreshesCache(t *testing.T) {
	q := &fakeQuerier{profiles: map[string]transport.Record{"u1": aliceRecord()}}
	s := newService(q, nil)

	_, err := s.Update(context.Background(), "u1", map[string]any{"status_message": "afk"})
	require.NoError(t, err)

	p, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "afk", p.StatusMessage)
	assert.Zero(t, q.selects, "the updated record must be served from cache")
}

func TestService_UploadAvatar(t *testing.T) {
	q := &fakeQuerier{profiles: map[string]transport.Record{"u1": aliceRecord()}}
	objects := &fakeObjectStore{}
	s := newService(q, objects)

	p, err := s.UploadAvatar(context.Background(), "u1", []byte("png bytes"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, []string{"avatars/u1.png"}, objects.uploads)
	assert.Equal(t, "https://cdn.test/avatars/u1.png", p.AvatarURL)
}

func TestService_UploadAvatar_RejectsBadInput(t *testing.T) {
	q := &fakeQuerier{profiles: map[string]transport.Record{"u1": aliceRecord()}}
	s := newService(q, &fakeObjectStore{})

	_, err := s.UploadAvatar(context.Background(), "u1", make([]byte, MaxAvatarSize+1), "image/png")
	assert.ErrorIs(t, err, ErrAvatarTooLarge)

	_, err = s.UploadAvatar(context.Background(), "u1", []byte("data"), "image/svg+xml")
	assert.ErrorIs(t, err, ErrAvatarType)
}

func TestService_Invalidate(t *testing.T) {
	q := &fakeQuerier{profiles: map[string]transport.Record{"u1": aliceRecord()}}
	s := newService(q, nil)

	_, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)

	s.Invalidate("u1")

	_, err = s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, q.selects)
}
