package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests. It records every slot
// write so tests can assert which status transitions were observable.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[uuid.UUID]*Post

	CreateErr error

	SlotWrites []SlotWrite
}

type SlotWrite struct {
	PostID uuid.UUID
	Index  int
	Update SlotUpdate
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[uuid.UUID]*Post),
	}
}

func (s *MemoryStore) CreatePost(ctx context.Context, p *Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.CreateErr != nil {
		return s.CreateErr
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Media == nil {
		p.Media = []MediaSlot{}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePost(p), nil
}

func (s *MemoryStore) ListPosts(ctx context.Context) ([]*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]*Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, clonePost(p))
	}
	return posts, nil
}

func (s *MemoryStore) UpdatePostText(ctx context.Context, id uuid.UUID, title, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return ErrNotFound
	}
	p.Title = title
	p.Content = content
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateSlot(ctx context.Context, postID uuid.UUID, index int, upd SlotUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.SlotWrites = append(s.SlotWrites, SlotWrite{PostID: postID, Index: index, Update: upd})

	p, ok := s.posts[postID]
	if !ok || index < 0 || index >= len(p.Media) {
		// Update-if-exists: vanished targets are absorbed.
		return nil
	}

	slot := &p.Media[index]
	if upd.Status != nil {
		slot.Status = *upd.Status
	}
	if upd.FinalName != nil {
		slot.FinalName = *upd.FinalName
	}
	if upd.FinalPath != nil {
		slot.FinalPath = *upd.FinalPath
	}
	if upd.ThumbnailName != nil {
		slot.ThumbnailName = *upd.ThumbnailName
	}
	if upd.DurationSeconds != nil {
		slot.DurationSeconds = *upd.DurationSeconds
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, id uuid.UUID) (*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.posts, id)
	return p, nil
}

func clonePost(p *Post) *Post {
	cp := *p
	cp.Media = append([]MediaSlot(nil), p.Media...)
	return &cp
}
