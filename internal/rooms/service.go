// Package rooms lists and creates the conversations a participant can
// enter.
package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nfrund/storge/internal/domain"
	"github.com/nfrund/storge/internal/transport"
)

// Collections backing the rooms service.
const (
	CollectionRooms   = "rooms"
	CollectionMembers = "room_members"
)

// Service reads and writes room records through the query service.
type Service struct {
	querier transport.Querier
	logger  *slog.Logger
}

// NewService creates a rooms service.
func NewService(querier transport.Querier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		querier: querier,
		logger:  logger.With("component", "rooms"),
	}
}

// List returns the rooms the participant is a member of, most recently
// updated first.
func (s *Service) List(ctx context.Context, participantID string) ([]domain.Room, error) {
	memberships, err := s.querier.Select(ctx, CollectionMembers,
		map[string]any{"participant_id": participantID}, transport.Order{})
	if err != nil {
		return nil, fmt.Errorf("list memberships for %s: %w", participantID, err)
	}

	var rooms []domain.Room
	for _, m := range memberships {
		roomID, ok := m["room_id"].(string)
		if !ok || roomID == "" {
			continue
		}
		recs, err := s.querier.Select(ctx, CollectionRooms,
			map[string]any{"id": roomID}, transport.Order{})
		if err != nil {
			return nil, fmt.Errorf("fetch room %s: %w", roomID, err)
		}
		if len(recs) == 0 {
			s.logger.Warn("Membership points at missing room", "room_id", roomID)
			continue
		}
		rooms = append(rooms, fromRecord(recs[0]))
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

// Create makes a new room and enrolls the creator as its first member.
func (s *Service) Create(ctx context.Context, name string, roomType domain.RoomType, createdBy string) (domain.Room, error) {
	if roomType != domain.RoomTypeGroup && roomType != domain.RoomTypeDirect {
		return domain.Room{}, fmt.Errorf("unknown room type %q", roomType)
	}

	rec, err := s.querier.Insert(ctx, CollectionRooms, transport.Record{
		"name":       name,
		"type":       string(roomType),
		"created_by": createdBy,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	room := fromRecord(rec)

	if _, err := s.querier.Insert(ctx, CollectionMembers, transport.Record{
		"room_id":        room.ID,
		"participant_id": createdBy,
	}); err != nil {
		return domain.Room{}, fmt.Errorf("enroll creator in room %s: %w", room.ID, err)
	}

	s.logger.Info("Room created", "room_id", room.ID, "type", roomType)
	return room, nil
}

// Get fetches one room by ID.
func (s *Service) Get(ctx context.Context, roomID string) (domain.Room, error) {
	recs, err := s.querier.Select(ctx, CollectionRooms,
		map[string]any{"id": roomID}, transport.Order{})
	if err != nil {
		return domain.Room{}, fmt.Errorf("fetch room %s: %w", roomID, err)
	}
	if len(recs) == 0 {
		return domain.Room{}, fmt.Errorf("room %s not found", roomID)
	}
	return fromRecord(recs[0]), nil
}

func fromRecord(rec transport.Record) domain.Room {
	r := domain.Room{}
	if v, ok := rec["id"].(string); ok {
		r.ID = v
	}
	if v, ok := rec["name"].(string); ok {
		r.Name = v
	}
	if v, ok := rec["type"].(string); ok {
		r.Type = domain.RoomType(v)
	}
	if v, ok := rec["created_by"].(string); ok {
		r.CreatedBy = v
	}
	if v, ok := rec["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			r.UpdatedAt = t
		}
	}
	return r
}
