// Package client ties the transport, login, position estimation and route
// walking together around one game connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nightfall-go/mapper/internal/core/event"
	"github.com/nightfall-go/mapper/internal/data"
	"github.com/nightfall-go/mapper/internal/login"
	gonet "github.com/nightfall-go/mapper/internal/net"
	"github.com/nightfall-go/mapper/internal/persist"
	"github.com/nightfall-go/mapper/internal/position"
	"github.com/nightfall-go/mapper/internal/route"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrUnknownRoom  = errors.New("unknown room")
	ErrConnected    = errors.New("already connected")
)

// MethodManual marks positions set by the user.
const MethodManual = "manual"

// Hooks are the user scripts consulted while walking and estimating.
type Hooks interface {
	route.Expander
	IgnoreMessage(text string) bool
}

// RoomStore remembers the last room across restarts.
type RoomStore interface {
	LastRoom() (int, bool, error)
	SetLastRoom(id int) error
}

// Journal records visited rooms.
type Journal interface {
	Add(v persist.Visit)
}

// Metrics extends the transport counters with estimator and walk counters.
type Metrics interface {
	gonet.Metrics
	Estimated(confidence string, took time.Duration)
	EstimateDropped()
	WalkFinished(state, reason string)
	SetCurrentRoom(id int)
}

type Options struct {
	Addr        string
	DialTimeout time.Duration
	Session     gonet.Options

	User, Pass  string
	Credentials login.CredentialStore

	Walk     route.Options
	Triggers []string // typed commands whose answer should be a room description
	Reload   string   // sent after login to get the first room description

	EstimateQueue int

	Hooks   Hooks
	Rooms   RoomStore
	Journal Journal
	Metrics Metrics
}

type job struct {
	text string
	look bool
}

// Client owns at most one session at a time. Messages received after login
// are estimated by a single worker goroutine, so at most one estimate is in
// flight and the reader never waits for it.
type Client struct {
	world *data.World
	bus   *event.Bus
	opts  Options

	estimator *position.Estimator
	planner   *route.Planner

	mu          sync.Mutex
	sess        *gonet.Session
	auto        *login.Automaton
	current     *int
	shown       position.Estimate // last published estimate
	lookPending bool
	triggers    map[string]struct{}

	work      chan job
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	log *zap.Logger
}

// New builds a client for world and starts its estimation worker. The last
// stored room, if any, becomes the initial position.
func New(world *data.World, bus *event.Bus, opts Options, log *zap.Logger) *Client {
	if opts.EstimateQueue <= 0 {
		opts.EstimateQueue = 16
	}
	c := &Client{
		world:    world,
		bus:      bus,
		opts:     opts,
		triggers: make(map[string]struct{}, len(opts.Triggers)),
		work:     make(chan job, opts.EstimateQueue),
		closeCh:  make(chan struct{}),
		log:      log,
	}
	for _, t := range opts.Triggers {
		c.triggers[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	estOpts := position.Options{Log: log.Named("position")}
	if opts.Hooks != nil {
		estOpts.Ignore = opts.Hooks.IgnoreMessage
	}
	c.estimator = position.NewEstimator(world, estOpts)

	walk := opts.Walk
	walk.Log = log.Named("route")
	if opts.Hooks != nil {
		walk.Expander = opts.Hooks
	}
	walk.OnStatus = c.onRouteStatus
	c.planner = route.NewPlanner(world, c, walk)

	if opts.Rooms != nil {
		id, ok, err := opts.Rooms.LastRoom()
		switch {
		case err != nil:
			log.Warn("讀取上次位置失敗", zap.Error(err))
		case ok && world.Has(id):
			c.current = &id
			c.planner.Observe(id)
			c.metrics().SetCurrentRoom(id)
			log.Info("恢復上次位置", zap.Int("room", id), zap.String("name", world.RoomName(id)))
		}
	}

	c.wg.Add(1)
	go c.estimateLoop()
	return c
}

func (c *Client) metrics() Metrics {
	if c.opts.Metrics == nil {
		return nopMetrics{}
	}
	return c.opts.Metrics
}

// Connect dials the game server and starts the session. Login runs
// automatically from the configured credentials; missing ones are asked for
// through LoginPrompt events.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return ErrConnected
	}
	c.mu.Unlock()

	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}
	sessOpts := c.opts.Session
	if c.opts.Metrics != nil {
		sessOpts.Metrics = c.opts.Metrics
	}
	sess, err := gonet.Dial(ctx, c.opts.Addr, sessOpts, c.log.Named("session"))
	if err != nil {
		return err
	}

	auto := login.New(c.opts.User, c.opts.Pass, sess, c.opts.Credentials, login.Callbacks{
		OnPrompt: func(field string) {
			event.Publish(c.bus, event.LoginPrompt{Field: field})
		},
		OnSuccess: func() { c.onLoggedIn(sess) },
	}, c.log.Named("login"))

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		sess.Close()
		return ErrConnected
	}
	c.sess = sess
	c.auto = auto
	c.mu.Unlock()

	sess.Start(gonet.Handler{
		OnMessage:    c.onMessage,
		OnDisconnect: func(err error) { c.onDisconnect(sess, err) },
	}, auto)
	c.log.Info("已連線", zap.String("addr", sess.Addr))
	return nil
}

func (c *Client) onLoggedIn(sess *gonet.Session) {
	event.Publish(c.bus, event.LoggedIn{})
	if c.opts.Reload == "" {
		return
	}
	c.mu.Lock()
	c.lookPending = true
	c.mu.Unlock()
	if err := sess.Send(c.opts.Reload); err != nil {
		c.log.Debug("登入後查看房間失敗", zap.Error(err))
	}
}

func (c *Client) onMessage(text string, reason gonet.FlushReason) {
	event.Publish(c.bus, event.Message{Text: text, Reason: reason.String()})

	c.mu.Lock()
	sess := c.sess
	look := c.lookPending
	c.lookPending = false
	c.mu.Unlock()

	if sess == nil || sess.State() != gonet.StateLoggedIn {
		return
	}
	c.enqueue(job{text: text, look: look})
}

// enqueue hands a message to the worker, dropping the oldest pending one
// when the queue is full. Only the session's dispatch goroutine calls it.
func (c *Client) enqueue(j job) {
	for {
		select {
		case c.work <- j:
			return
		default:
		}
		select {
		case <-c.work:
			c.metrics().EstimateDropped()
			c.log.Debug("估算佇列已滿，丟棄最舊訊息")
		default:
		}
	}
}

func (c *Client) onDisconnect(sess *gonet.Session, err error) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
		c.auto = nil
	}
	c.mu.Unlock()

	c.planner.Abort(route.ReasonDisconnected)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	event.Publish(c.bus, event.Disconnected{Err: msg})
}

func (c *Client) estimateLoop() {
	defer c.wg.Done()
	for {
		select {
		case j := <-c.work:
			c.estimate(j)
		case <-c.closeCh:
			return
		}
	}
}

func (c *Client) estimate(j job) {
	c.mu.Lock()
	var current *int
	if c.current != nil {
		id := *c.current
		current = &id
	}
	c.mu.Unlock()

	start := time.Now()
	est := c.estimator.Estimate(j.text, current)
	c.metrics().Estimated(est.Confidence.String(), time.Since(start))

	id, ok := est.Room()
	if !ok {
		if j.look {
			c.log.Debug("查看指令的回應無法定位")
		}
		return
	}
	c.log.Debug("位置估算",
		zap.Int("room", id),
		zap.Stringer("confidence", est.Confidence),
		zap.String("method", est.Method),
		zap.Float64("similarity", est.Similarity),
		zap.Bool("look", j.look))
	c.setPosition(est, j.look)
}

// setPosition records a new current room, publishes PositionChanged when the
// room, its confidence or its highlights changed (or when the user asked to
// look), and lets the planner advance.
func (c *Client) setPosition(est position.Estimate, force bool) {
	id, _ := est.Room()

	c.mu.Lock()
	prev := c.current
	c.current = &id
	changed := prev == nil || *prev != id
	refreshed := changed || est.Confidence != c.shown.Confidence ||
		!slices.Equal(est.Highlights, c.shown.Highlights)
	if refreshed || force {
		c.shown = est
	}
	c.mu.Unlock()

	if refreshed || force {
		zoneID, _ := c.world.ZoneOf(id)
		zoneChanged := prev == nil
		if prev != nil {
			prevZone, _ := c.world.ZoneOf(*prev)
			zoneChanged = prevZone != zoneID
		}
		ev := event.PositionChanged{
			Estimate:    est,
			Name:        c.world.RoomName(id),
			ZoneID:      zoneID,
			ZoneChanged: zoneChanged,
		}
		if z := c.world.Zone(zoneID); z != nil {
			ev.ZoneName = z.Name
		}
		if pos, ok := c.world.RoomPosition(id); ok {
			ev.Z = pos.Z
		}
		if changed && ev.ZoneChanged {
			c.log.Info("進入區域", zap.Int("zone", zoneID), zap.String("name", ev.ZoneName))
		}
		event.Publish(c.bus, ev)
	}

	if changed {
		c.metrics().SetCurrentRoom(id)
		if c.opts.Rooms != nil {
			if err := c.opts.Rooms.SetLastRoom(id); err != nil {
				c.log.Warn("儲存目前位置失敗", zap.Error(err))
			}
		}
		if c.opts.Journal != nil {
			c.opts.Journal.Add(persist.Visit{
				RoomID:     id,
				Confidence: est.Confidence.String(),
				Method:     est.Method,
				Similarity: est.Similarity,
				SeenAt:     time.Now(),
			})
		}
	}
	c.planner.Observe(id)
}

func (c *Client) onRouteStatus(st route.Status) {
	if st.State == route.Arrived || st.State == route.Aborted {
		c.metrics().WalkFinished(st.State.String(), st.Reason)
	}
	event.Publish(c.bus, event.RouteStatus{Status: st})
}

// Send writes a command line typed by the user. Movement and look commands
// mark the next message as the answer to it.
func (c *Client) Send(cmd string) error {
	c.mu.Lock()
	sess := c.sess
	if sess != nil {
		if _, ok := c.triggers[strings.ToLower(strings.TrimSpace(cmd))]; ok {
			c.lookPending = true
		}
	}
	c.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.Send(cmd)
}

// SendRaw writes b to the server unchanged.
func (c *Client) SendRaw(b []byte) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.SendRaw(b)
}

// RequestRoute starts walking to target. Progress arrives as RouteStatus
// events.
func (c *Client) RequestRoute(target int) {
	c.planner.Request(target)
}

func (c *Client) CancelRoute() {
	c.planner.Cancel()
}

// RouteState returns the planner's state.
func (c *Client) RouteState() route.State {
	return c.planner.State()
}

func (c *Client) SubmitUsername(name string) error {
	c.mu.Lock()
	auto := c.auto
	c.mu.Unlock()
	if auto == nil {
		return ErrNotConnected
	}
	return auto.SubmitUsername(name)
}

func (c *Client) SubmitPassword(pass string) error {
	c.mu.Lock()
	auto := c.auto
	c.mu.Unlock()
	if auto == nil {
		return ErrNotConnected
	}
	return auto.SubmitPassword(pass)
}

// SetCurrentRoom places the player manually.
func (c *Client) SetCurrentRoom(id int) error {
	if !c.world.Has(id) {
		return fmt.Errorf("room %d: %w", id, ErrUnknownRoom)
	}
	c.setPosition(position.Estimate{
		RoomID:     &id,
		Confidence: position.Strong,
		Similarity: 1,
		Method:     MethodManual,
	}, true)
	return nil
}

// CurrentRoom returns the last estimated room.
func (c *Client) CurrentRoom() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0, false
	}
	return *c.current, true
}

// Connected reports whether a session is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Disconnect closes the current session, if any. The client can connect
// again afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.auto = nil
	c.mu.Unlock()
	if sess == nil {
		return
	}
	c.planner.Abort(route.ReasonDisconnected)
	sess.Close()
}

// Close disconnects and stops the estimation worker. Safe to call more than
// once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.Disconnect()
		close(c.closeCh)
		c.wg.Wait()
	})
}

type nopMetrics struct{}

func (nopMetrics) BytesIn(int) {}
func (nopMetrics) BytesOut(int) {}
func (nopMetrics) MessageFlushed(string) {}
func (nopMetrics) Estimated(string, time.Duration) {}
func (nopMetrics) EstimateDropped() {}
func (nopMetrics) WalkFinished(string, string) {}
func (nopMetrics) SetCurrentRoom(int) {}
