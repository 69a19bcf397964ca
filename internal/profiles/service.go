// Package profiles manages participant profiles: lookups for author
// display resolution, profile edits and avatar uploads.
package profiles

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/storge/internal/domain"
	"github.com/nfrund/storge/internal/transport"
)

// CollectionProfiles is the remote collection holding profile records.
const CollectionProfiles = "profiles"

// AvatarBucket is the object-store bucket for avatar uploads.
const AvatarBucket = "avatars"

// MaxAvatarSize caps avatar uploads at 2 MB.
const MaxAvatarSize = 2 * 1024 * 1024

// ErrProfileNotFound is returned when no profile exists for an ID.
var ErrProfileNotFound = fmt.Errorf("profile not found")

// ErrAvatarTooLarge is returned for avatar uploads over MaxAvatarSize.
var ErrAvatarTooLarge = fmt.Errorf("avatar exceeds %d bytes", MaxAvatarSize)

// ErrAvatarType is returned for avatar uploads with an unsupported type.
var ErrAvatarType = fmt.Errorf("avatar must be png, jpeg or gif")

// avatarExt maps the accepted content types to their stored extension.
var avatarExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
}

// Service looks up and edits profiles. Lookups are cached for the life of
// the service; profile edits go through Update which refreshes the cache.
type Service struct {
	querier transport.Querier
	objects transport.ObjectStore
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]domain.Profile
}

// Dependencies holds what the profiles service needs.
type Dependencies struct {
	Querier transport.Querier
	Objects transport.ObjectStore
	Logger  *slog.Logger
}

// NewService creates a profiles service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		querier: deps.Querier,
		objects: deps.Objects,
		logger:  logger.With("component", "profiles"),
		cache:   make(map[string]domain.Profile),
	}
}

// Get fetches one profile by participant ID, serving from cache when
// possible.
func (s *Service) Get(ctx context.Context, id string) (domain.Profile, error) {
	s.mu.RLock()
	p, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	recs, err := s.querier.Select(ctx, CollectionProfiles, map[string]any{"id": id}, transport.Order{})
	if err != nil {
		return domain.Profile{}, fmt.Errorf("fetch profile %s: %w", id, err)
	}
	if len(recs) == 0 {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", id, ErrProfileNotFound)
	}

	p = fromRecord(recs[0])
	s.mu.Lock()
	s.cache[id] = p
	s.mu.Unlock()
	return p, nil
}

// Resolve implements the timeline's author lookup. A missing profile is an
// error; the timeline substitutes its placeholder display.
func (s *Service) Resolve(ctx context.Context, authorID string) (domain.AuthorDisplay, error) {
	p, err := s.Get(ctx, authorID)
	if err != nil {
		return domain.AuthorDisplay{}, err
	}
	return p.Display(), nil
}

// Update applies a partial profile edit and refreshes the cache with the
// record the backend returns.
func (s *Service) Update(ctx context.Context, id string, patch map[string]any) (domain.Profile, error) {
	rec, err := s.querier.Update(ctx, CollectionProfiles, map[string]any{"id": id}, patch)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("update profile %s: %w", id, err)
	}

	p := fromRecord(rec)
	s.mu.Lock()
	s.cache[id] = p
	s.mu.Unlock()

	s.logger.Info("Profile updated", "participant_id", id)
	return p, nil
}

// UploadAvatar validates and stores a new avatar, then points the profile
// at its public URL. Re-uploads overwrite the previous object.
func (s *Service) UploadAvatar(ctx context.Context, id string, data []byte, contentType string) (domain.Profile, error) {
	if len(data) > MaxAvatarSize {
		return domain.Profile{}, ErrAvatarTooLarge
	}
	ext, ok := avatarExt[contentType]
	if !ok {
		return domain.Profile{}, fmt.Errorf("%w: got %s", ErrAvatarType, contentType)
	}

	url, err := s.objects.Upload(ctx, AvatarBucket, id+ext, data, contentType)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("store avatar for %s: %w", id, err)
	}

	return s.Update(ctx, id, map[string]any{
		"avatar_url": url,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// Invalidate drops a cached profile, forcing the next lookup to hit the
// backend.
func (s *Service) Invalidate(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

func fromRecord(rec transport.Record) domain.Profile {
	p := domain.Profile{}
	if v, ok := rec["id"].(string); ok {
		p.ID = v
	}
	if v, ok := rec["username"].(string); ok {
		p.Username = v
	}
	if v, ok := rec["bio"].(string); ok {
		p.Bio = v
	}
	if v, ok := rec["status_message"].(string); ok {
		p.StatusMessage = v
	}
	if v, ok := rec["avatar_url"].(string); ok {
		p.AvatarURL = v
	}
	if v, ok := rec["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			p.UpdatedAt = t
		}
	}
	return p
}
