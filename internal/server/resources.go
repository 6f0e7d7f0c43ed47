package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/resource"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

// mountResource binds only the operations h allows; chi answers the others
// with 405.
func mountResource(r chi.Router, h resource.Handler) {
	r.Route("/"+h.Name(), func(r chi.Router) {
		if h.Allows(resource.OpReadAll) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				respond(w, r, func(ctx context.Context) (any, error) {
					return h.ReadAll(ctx)
				})
			})
		}
		if h.Allows(resource.OpCreate) {
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				respondWithBody(w, r, func(ctx context.Context, body []byte) (any, error) {
					return h.Create(ctx, body)
				})
			})
		}
		if h.Allows(resource.OpReadOne) {
			r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
				respond(w, r, func(ctx context.Context) (any, error) {
					return h.ReadOne(ctx, pathID(r))
				})
			})
		}
		if h.Allows(resource.OpUpdate) {
			r.Put("/*", func(w http.ResponseWriter, r *http.Request) {
				respondWithBody(w, r, func(ctx context.Context, body []byte) (any, error) {
					return h.Update(ctx, pathID(r), body)
				})
			})
		}
		if h.Allows(resource.OpDelete) {
			r.Delete("/*", func(w http.ResponseWriter, r *http.Request) {
				respond(w, r, func(ctx context.Context) (any, error) {
					return h.Delete(ctx, pathID(r))
				})
			})
		}
	})
}

// pathID returns the identifier after the entity prefix. Content ids are
// often URLs, so it may contain slashes.
func pathID(r *http.Request) string {
	id := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return id
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

func respond(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (any, error)) {
	out, err := fn(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func respondWithBody(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, body []byte) (any, error)) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "cannot read request body"})
		return
	}
	respond(w, r, func(ctx context.Context) (any, error) {
		return fn(ctx, body)
	})
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged in full and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *resource.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error()})
	case errors.Is(err, database.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, database.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, resource.ErrNotAllowed):
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: err.Error()})
	default:
		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Errorf("Request failed: %+v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
