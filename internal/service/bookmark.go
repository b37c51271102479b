// Package service holds the bookmark use cases. Every operation is scoped to
// the owner resolved by the session guard; the service re-checks it so no
// caller can reach the store without one.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/enrich"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/store/postgres"
)

// Enricher produces summary and tags for a new bookmark. It never fails.
type Enricher interface {
	Enrich(ctx context.Context, title, url string) enrich.Result
}

// Notifier announces committed changes to the owner's other sessions.
// It never waits for delivery.
type Notifier interface {
	Notify(owner uuid.UUID, ev domain.Event)
}

// TagCache memoizes an owner's distinct tags. Each invalidation advances a
// per-owner generation, and CacheTags only stores a list computed at the
// generation that is still current.
type TagCache interface {
	CachedTags(ctx context.Context, owner uuid.UUID) (tags []string, gen int64, ok bool, err error)
	CacheTags(ctx context.Context, owner uuid.UUID, gen int64, tags []string, ttl time.Duration) (bool, error)
	InvalidateTags(ctx context.Context, owner uuid.UUID) error
}

// Options holds the tunables of BookmarkService.
type Options struct {
	TagCacheTTL time.Duration
}

// BookmarkService implements add, list, delete and tag listing.
type BookmarkService struct {
	repo     postgres.BookmarkRepo
	enricher Enricher
	notifier Notifier
	tags     TagCache
	log      logger.Logger
	opts     Options
}

// NewBookmarkService wires the service. notifier and tags may be nil, which
// disables fan-out and tag caching respectively.
func NewBookmarkService(
	repo postgres.BookmarkRepo,
	enricher Enricher,
	notifier Notifier,
	tags TagCache,
	opts Options,
	log logger.Logger,
) *BookmarkService {
	return &BookmarkService{
		repo:     repo,
		enricher: enricher,
		notifier: notifier,
		tags:     tags,
		log:      log,
		opts:     opts,
	}
}

// AddBookmark validates in, enriches it, stores it and announces it.
func (s *BookmarkService) AddBookmark(ctx context.Context, owner uuid.UUID, in domain.NewBookmark) (domain.Bookmark, error) {
	if owner == uuid.Nil {
		return domain.Bookmark{}, domain.ErrUnauthorized
	}

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.Bookmark{}, err
	}

	res := s.enricher.Enrich(ctx, in.Title, in.URL)
	summary := res.Summary

	stored, err := s.repo.Insert(ctx, domain.Bookmark{
		OwnerID: owner,
		Title:   in.Title,
		URL:     in.URL,
		Summary: &summary,
		Tags:    res.Tags,
	})
	if err != nil {
		s.log.Error("failed to store bookmark",
			logger.String("owner_id", owner.String()),
			logger.Error(err))
		return domain.Bookmark{}, asUpstream(err)
	}
	stored = stored.WithDefaults()

	s.log.Info("bookmark added",
		logger.String("owner_id", owner.String()),
		logger.String("id", stored.ID.String()),
		logger.String("enrichment", string(res.Source)),
		logger.Strings("tags", stored.Tags))

	s.invalidateTags(ctx, owner)
	s.notify(owner, domain.Added(stored))
	return stored, nil
}

// GetBookmarks lists the owner's bookmarks, newest first. A store failure is
// logged and reads as an empty list.
func (s *BookmarkService) GetBookmarks(ctx context.Context, owner uuid.UUID, filter domain.ListFilter) ([]domain.Bookmark, error) {
	if owner == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	list, err := s.repo.List(ctx, owner, filter.Normalize())
	if err != nil {
		s.log.Error("failed to list bookmarks",
			logger.String("owner_id", owner.String()),
			logger.Error(err))
		return []domain.Bookmark{}, nil
	}
	if list == nil {
		list = []domain.Bookmark{}
	}
	return list, nil
}

// DeleteBookmark removes one of the owner's bookmarks and returns it as it
// was. Unknown, foreign and unparsable ids all read as domain.ErrNotFound.
func (s *BookmarkService) DeleteBookmark(ctx context.Context, owner uuid.UUID, id string) (domain.Bookmark, error) {
	if owner == uuid.Nil {
		return domain.Bookmark{}, domain.ErrUnauthorized
	}

	bid, err := uuid.Parse(id)
	if err != nil || bid == uuid.Nil {
		return domain.Bookmark{}, domain.ErrNotFound
	}

	removed, err := s.repo.Delete(ctx, owner, bid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Bookmark{}, domain.ErrNotFound
		}
		s.log.Error("failed to delete bookmark",
			logger.String("owner_id", owner.String()),
			logger.String("id", bid.String()),
			logger.Error(err))
		return domain.Bookmark{}, asUpstream(err)
	}
	removed = removed.WithDefaults()

	s.log.Info("bookmark deleted",
		logger.String("owner_id", owner.String()),
		logger.String("id", removed.ID.String()))

	s.invalidateTags(ctx, owner)
	s.notify(owner, domain.Deleted(removed))
	return removed, nil
}

// GetAllTags returns the sorted distinct tags across the owner's bookmarks.
// A store failure is logged and reads as an empty list.
func (s *BookmarkService) GetAllTags(ctx context.Context, owner uuid.UUID) ([]string, error) {
	if owner == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	var gen int64
	cacheable := false
	if s.tags != nil {
		cached, g, ok, err := s.tags.CachedTags(ctx, owner)
		switch {
		case err != nil:
			s.log.Warn("tag cache read failed", logger.Error(err))
		case ok:
			return cached, nil
		default:
			gen, cacheable = g, true
		}
	}

	lists, err := s.repo.TagLists(ctx, owner)
	if err != nil {
		s.log.Error("failed to load tags",
			logger.String("owner_id", owner.String()),
			logger.Error(err))
		return []string{}, nil
	}
	tags := domain.DistinctTags(lists)

	if cacheable {
		stored, err := s.tags.CacheTags(ctx, owner, gen, tags, s.opts.TagCacheTTL)
		if err != nil {
			s.log.Warn("tag cache write failed", logger.Error(err))
		} else if !stored {
			s.log.Debug("tags changed while loading, not cached",
				logger.String("owner_id", owner.String()))
		}
	}
	return tags, nil
}

func (s *BookmarkService) invalidateTags(ctx context.Context, owner uuid.UUID) {
	if s.tags == nil {
		return
	}
	if err := s.tags.InvalidateTags(ctx, owner); err != nil {
		s.log.Warn("tag cache invalidation failed",
			logger.String("owner_id", owner.String()),
			logger.Error(err))
	}
}

func (s *BookmarkService) notify(owner uuid.UUID, ev domain.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(owner, ev)
}

func asUpstream(err error) error {
	if errors.Is(err, domain.ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
}
