package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkvault/internal/auth"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
)

type deleteResponse struct {
	Success bool `json:"success"`
}

// AddBookmark handles POST /api/bookmarks.
func AddBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := auth.OwnerIDFromCtx(r.Context())

		var in domain.NewBookmark
		if err := decodeStrict(r.Body, &in); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}

		b, err := d.Bookmarks.AddBookmark(r.Context(), owner, in)
		if err != nil {
			writeDomainError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

// ListBookmarks handles GET /api/bookmarks?q=&tag=.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := auth.OwnerIDFromCtx(r.Context())
		q := r.URL.Query()

		list, err := d.Bookmarks.GetBookmarks(r.Context(), owner, domain.ListFilter{
			Search: q.Get("q"),
			Tag:    q.Get("tag"),
		})
		if err != nil {
			writeDomainError(w, d.Logger, err)
			return
		}
		if list == nil {
			list = []domain.Bookmark{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// DeleteBookmark handles DELETE /api/bookmarks/{id}.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := auth.OwnerIDFromCtx(r.Context())

		if _, err := d.Bookmarks.DeleteBookmark(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, deleteResponse{Success: true})
	}
}

// Tags handles GET /api/tags.
func Tags(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := auth.OwnerIDFromCtx(r.Context())

		tags, err := d.Bookmarks.GetAllTags(r.Context(), owner)
		if err != nil {
			writeDomainError(w, d.Logger, err)
			return
		}
		if tags == nil {
			tags = []string{}
		}
		writeJSON(w, http.StatusOK, tags)
	}
}

// decodeStrict reads exactly one JSON object and rejects unknown fields.
func decodeStrict(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}
