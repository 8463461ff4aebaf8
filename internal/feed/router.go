package feed

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/nightfall-go/mapper/internal/state"
	"go.uber.org/zap"
)

// Controller is the part of the client the HTTP API drives.
type Controller interface {
	Send(cmd string) error
	RequestRoute(target int)
	CancelRoute()
	CurrentRoom() (int, bool)
}

// Bookmarks stores named route targets.
type Bookmarks interface {
	Bookmarks() ([]state.Bookmark, error)
	Bookmark(name string) (int, error)
	PutBookmark(name string, roomID int) error
	DeleteBookmark(name string) error
}

type api struct {
	ctl   Controller
	marks Bookmarks
	log   *zap.Logger
}

// NewRouter builds the HTTP surface. metrics and marks may be nil.
func NewRouter(hub *Hub, ctl Controller, marks Bookmarks, metrics http.Handler, log *zap.Logger) http.Handler {
	a := &api{ctl: ctl, marks: marks, log: log}
	r := chi.NewRouter()
	r.Use(a.recovery)

	r.Get("/ws", hub.ServeWS)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/here", a.here)
		r.Post("/send", a.send)
		r.Post("/route", a.route)
		r.Delete("/route", a.cancel)

		if marks != nil {
			r.Get("/bookmarks", a.listBookmarks)
			r.Put("/bookmarks/{name}", a.putBookmark)
			r.Delete("/bookmarks/{name}", a.deleteBookmark)
		}

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})
	return r
}

func (a *api) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				a.log.Error("HTTP 處理發生 panic", zap.Any("panic", err), zap.String("path", r.URL.Path))
				respondError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// here handles GET /api/here.
func (a *api) here(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ctl.CurrentRoom()
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"room_id": nil})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"room_id": id})
}

// send handles POST /api/send {"text": "look"}.
func (a *api) send(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := a.ctl.Send(body.Text); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// route handles POST /api/route {"target": 12} or {"bookmark": "temple"}.
// The outcome arrives as RouteStatus events.
func (a *api) route(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target   *int   `json:"target"`
		Bookmark string `json:"bookmark"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	var target int
	switch {
	case body.Target != nil:
		target = *body.Target
	case body.Bookmark != "" && a.marks != nil:
		id, err := a.marks.Bookmark(body.Bookmark)
		if errors.Is(err, state.ErrNoBookmark) {
			respondError(w, http.StatusNotFound, "no such bookmark")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		target = id
	default:
		respondError(w, http.StatusBadRequest, "target or bookmark required")
		return
	}

	a.ctl.RequestRoute(target)
	respondJSON(w, http.StatusAccepted, map[string]int{"target": target})
}

// cancel handles DELETE /api/route.
func (a *api) cancel(w http.ResponseWriter, r *http.Request) {
	a.ctl.CancelRoute()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listBookmarks(w http.ResponseWriter, r *http.Request) {
	list, err := a.marks.Bookmarks()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []state.Bookmark{}
	}
	respondJSON(w, http.StatusOK, list)
}

// putBookmark handles PUT /api/bookmarks/{name} with {"room_id": 12}; an
// empty body bookmarks the current room.
func (a *api) putBookmark(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	var body struct {
		RoomID *int `json:"room_id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	room := body.RoomID
	if room == nil {
		id, ok := a.ctl.CurrentRoom()
		if !ok {
			respondError(w, http.StatusConflict, "current room unknown")
			return
		}
		room = &id
	}
	if err := a.marks.PutBookmark(name, *room); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, state.Bookmark{Name: strings.ToLower(name), RoomID: *room})
}

func (a *api) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	err := a.marks.DeleteBookmark(chi.URLParam(r, "name"))
	if errors.Is(err, state.ErrNoBookmark) {
		respondError(w, http.StatusNotFound, "no such bookmark")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
