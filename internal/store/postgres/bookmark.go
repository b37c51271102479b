package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

const bookmarksTable = "bookmarks"

var bookmarkColumns = []string{"id", "owner_id", "title", "url", "summary", "tags", "created_at"}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// BookmarkRepo is the owner-scoped persistence for bookmarks.
type BookmarkRepo interface {
	// Insert stores b and returns the persisted row with id and created_at set.
	Insert(ctx context.Context, b domain.Bookmark) (domain.Bookmark, error)

	// List returns the owner's rows, newest first, narrowed by filter.
	List(ctx context.Context, owner uuid.UUID, filter domain.ListFilter) ([]domain.Bookmark, error)

	// Delete removes the row matching id and owner and returns it as it was.
	// Returns domain.ErrNotFound when no such row exists for that owner.
	Delete(ctx context.Context, owner, id uuid.UUID) (domain.Bookmark, error)

	// TagLists returns the tag list of every row the owner has.
	TagLists(ctx context.Context, owner uuid.UUID) ([][]string, error)
}

type pgBookmarkRepo struct {
	db db
}

// NewBookmarkRepo constructs a BookmarkRepo. Pass *pgxpool.Pool in production
// and a pgx.Tx or pgxmock pool in tests.
func NewBookmarkRepo(db db) BookmarkRepo {
	return &pgBookmarkRepo{db: db}
}

func (r *pgBookmarkRepo) Insert(ctx context.Context, b domain.Bookmark) (domain.Bookmark, error) {
	if b.OwnerID == uuid.Nil {
		return domain.Bookmark{}, fmt.Errorf("postgres.BookmarkRepo.Insert: %w", domain.ErrUnauthorized)
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}

	query, args, err := psql.
		Insert(bookmarksTable).
		Columns("id", "owner_id", "title", "url", "summary", "tags").
		Values(b.ID, b.OwnerID, b.Title, b.URL, b.Summary, tags).
		Suffix("RETURNING " + strings.Join(bookmarkColumns, ", ")).
		ToSql()
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("postgres.BookmarkRepo.Insert: build: %w", err)
	}

	out, err := scanBookmark(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("postgres.BookmarkRepo.Insert: %w", upstream(err))
	}
	return out, nil
}

func (r *pgBookmarkRepo) List(ctx context.Context, owner uuid.UUID, filter domain.ListFilter) ([]domain.Bookmark, error) {
	q := psql.
		Select(bookmarkColumns...).
		From(bookmarksTable).
		Where(sq.Eq{"owner_id": owner})

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		q = q.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"url": pattern},
		})
	}
	if filter.Tag != "" {
		q = q.Where("tags @> ARRAY[?]::text[]", filter.Tag)
	}
	q = q.OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres.BookmarkRepo.List: build: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.BookmarkRepo.List: %w", upstream(err))
	}
	defer rows.Close()

	out := make([]domain.Bookmark, 0)
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.BookmarkRepo.List: scan: %w", upstream(err))
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.BookmarkRepo.List: rows: %w", upstream(err))
	}
	return out, nil
}

// Delete is a single DELETE ... RETURNING so the read of the old row and the
// removal cannot interleave with another session's delete.
func (r *pgBookmarkRepo) Delete(ctx context.Context, owner, id uuid.UUID) (domain.Bookmark, error) {
	query, args, err := psql.
		Delete(bookmarksTable).
		Where(sq.Eq{"id": id, "owner_id": owner}).
		Suffix("RETURNING " + strings.Join(bookmarkColumns, ", ")).
		ToSql()
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("postgres.BookmarkRepo.Delete: build: %w", err)
	}

	out, err := scanBookmark(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("postgres.BookmarkRepo.Delete: %w", upstream(err))
	}
	return out, nil
}

func (r *pgBookmarkRepo) TagLists(ctx context.Context, owner uuid.UUID) ([][]string, error) {
	query, args, err := psql.
		Select("tags").
		From(bookmarksTable).
		Where(sq.Eq{"owner_id": owner}).
		Where("cardinality(tags) > 0").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres.BookmarkRepo.TagLists: build: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.BookmarkRepo.TagLists: %w", upstream(err))
	}
	defer rows.Close()

	var lists [][]string
	for rows.Next() {
		var tags []string
		if err := rows.Scan(&tags); err != nil {
			return nil, fmt.Errorf("postgres.BookmarkRepo.TagLists: scan: %w", upstream(err))
		}
		lists = append(lists, tags)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.BookmarkRepo.TagLists: rows: %w", upstream(err))
	}
	return lists, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(s scanner) (domain.Bookmark, error) {
	var b domain.Bookmark
	err := s.Scan(&b.ID, &b.OwnerID, &b.Title, &b.URL, &b.Summary, &b.Tags, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bookmark{}, domain.ErrNotFound
		}
		return domain.Bookmark{}, err
	}
	return b.WithDefaults(), nil
}

// upstream leaves domain errors alone and marks everything else as a store failure.
func upstream(err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
