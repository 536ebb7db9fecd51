package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied by EnsureSchema. Media slots live in a jsonb column;
// slot writes go through jsonb_set so only the addressed element changes.
const Schema = `
CREATE TABLE IF NOT EXISTS posts (
	id         uuid PRIMARY KEY,
	title      text NOT NULL,
	content    text NOT NULL,
	author     text NOT NULL,
	media      jsonb NOT NULL DEFAULT '[]'::jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePost(ctx context.Context, p *Post) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Media == nil {
		p.Media = []MediaSlot{}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	media, err := json.Marshal(p.Media)
	if err != nil {
		return fmt.Errorf("marshal media slots: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO posts (id, title, content, author, media, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Title, p.Content, p.Author, media, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, content, author, media, created_at, updated_at
		FROM posts WHERE id = $1`, id)

	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]*Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, content, author, media, created_at, updated_at
		FROM posts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *PostgresStore) UpdatePostText(ctx context.Context, id uuid.UUID, title, content string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts SET title = $2, content = $3, updated_at = now()
		WHERE id = $1`, id, title, content)
	if err != nil {
		return fmt.Errorf("update post text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSlot merges the partial fields into media[index] in place. The
// WHERE clause bounds the index, so a vanished post or slot affects zero
// rows and is treated as a no-op.
func (s *PostgresStore) UpdateSlot(ctx context.Context, postID uuid.UUID, index int, upd SlotUpdate) error {
	if index < 0 {
		return nil
	}

	partial, err := json.Marshal(upd)
	if err != nil {
		return fmt.Errorf("marshal slot update: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE posts
		SET media = jsonb_set(media, ARRAY[$2::text], (media -> $3::int) || $4::jsonb),
		    updated_at = now()
		WHERE id = $1 AND jsonb_array_length(media) > $3::int`,
		postID, strconv.Itoa(index), index, partial,
	)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, id uuid.UUID) (*Post, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM posts WHERE id = $1
		RETURNING id, title, content, author, media, created_at, updated_at`, id)

	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete post: %w", err)
	}
	return p, nil
}

func scanPost(row pgx.Row) (*Post, error) {
	var p Post
	var media []byte
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Author, &media, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(media, &p.Media); err != nil {
		return nil, fmt.Errorf("unmarshal media slots: %w", err)
	}
	return &p, nil
}
