package feed

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nightfall-go/mapper/internal/core/event"
	"github.com/nightfall-go/mapper/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeController struct {
	mu       sync.Mutex
	sent     []string
	routes   []int
	cancels  int
	room     int
	haveRoom bool
}

func (f *fakeController) Send(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeController) RequestRoute(target int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, target)
}

func (f *fakeController) CancelRoute() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeController) CurrentRoom() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.room, f.haveRoom
}

func (f *fakeController) snapshot() ([]string, []int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), append([]int(nil), f.routes...), f.cancels
}

func newServer(t *testing.T) (*httptest.Server, *event.Bus, *Hub, *fakeController, *state.Store) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := event.NewBus()
	ctl := &fakeController{room: 7, haveRoom: true}
	hub := NewHub(bus, ctl, zap.NewNop())
	srv := httptest.NewServer(NewRouter(hub, ctl, store, nil, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, bus, hub, ctl, store
}

func TestWebsocketReceivesEvents(t *testing.T) {
	srv, bus, hub, ctl, _ := newServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	event.Publish(bus, event.Message{Text: "A dusty hall.> ", Reason: "prompt"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env struct {
		Type string        `json:"type"`
		Data event.Message `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "Message", env.Type)
	assert.Equal(t, "A dusty hall.> ", env.Data.Text)

	require.NoError(t, conn.WriteJSON(Command{Type: "send", Text: "look"}))
	require.NoError(t, conn.WriteJSON(Command{Type: "route", Target: 12}))
	require.NoError(t, conn.WriteJSON(Command{Type: "cancel"}))
	require.Eventually(t, func() bool {
		_, _, cancels := ctl.snapshot()
		return cancels == 1
	}, time.Second, 5*time.Millisecond)

	sent, routes, _ := ctl.snapshot()
	assert.Equal(t, []string{"look"}, sent)
	assert.Equal(t, []int{12}, routes)
}

func TestRouteAPI(t *testing.T) {
	srv, _, _, ctl, store := newServer(t)
	require.NoError(t, store.PutBookmark("temple", 42))

	resp, err := http.Post(srv.URL+"/api/route", "application/json", strings.NewReader(`{"target": 12}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/route", "application/json", strings.NewReader(`{"bookmark": "Temple"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/route", "application/json", strings.NewReader(`{"bookmark": "nowhere"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/route", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/send", "application/json", strings.NewReader(`{"text": "score"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	sent, routes, cancels := ctl.snapshot()
	assert.Equal(t, []int{12, 42}, routes)
	assert.Equal(t, 1, cancels)
	assert.Equal(t, []string{"score"}, sent)
}

func TestBookmarkAPI(t *testing.T) {
	srv, _, _, _, store := newServer(t)

	// Empty body bookmarks the current room.
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/bookmarks/Home", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/api/bookmarks/bank", bytes.NewReader([]byte(`{"room_id": 3}`)))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/bookmarks")
	require.NoError(t, err)
	var list []state.Bookmark
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Equal(t, []state.Bookmark{{Name: "bank", RoomID: 3}, {Name: "home", RoomID: 7}}, list)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/bookmarks/bank", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = store.Bookmark("bank")
	assert.ErrorIs(t, err, state.ErrNoBookmark)
}
