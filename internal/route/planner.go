package route

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State int

const (
	Idle State = iota
	Walking
	Arrived
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Walking:
		return "walking"
	case Arrived:
		return "arrived"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Abort reasons.
const (
	ReasonNoPath          = "no path"
	ReasonStuck           = "stuck"
	ReasonCancelled       = "cancelled"
	ReasonUnknownPosition = "unknown position"
	ReasonUnknownTarget   = "unknown target"
	ReasonDisconnected    = "disconnected"
)

// Status is published on every planner transition and every issued step.
type Status struct {
	State     State  `json:"state"`
	Target    int    `json:"target"`
	Reason    string `json:"reason,omitempty"`
	Step      *Step  `json:"step,omitempty"`
	Remaining int    `json:"remaining,omitempty"` // steps left including Step
}

// WalkPlan is the active walk. Target != LastRoom while walking.
type WalkPlan struct {
	Target   int
	LastRoom int    // room the last step was issued from
	LastDir  string // last command issued
	Failures map[int]int
}

// Sender writes a command line to the server.
type Sender interface {
	Send(cmd string) error
}

// Expander turns a step into the commands to send, e.g. "open door"
// before walking through it. An empty result means the step's own command.
type Expander interface {
	WalkCommands(step Step) []string
}

// Timer is the part of *time.Timer the planner uses.
type Timer interface {
	Stop() bool
}

type Options struct {
	StuckTimeout time.Duration // wait for a position change after a step
	MaxFailures  int           // consecutive stuck timeouts from one room before aborting
	AfterFunc    func(d time.Duration, f func()) Timer
	Expander     Expander
	OnStatus     func(Status) // called without the planner lock held
	Log          *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		StuckTimeout: 3 * time.Second,
		MaxFailures:  3,
	}
}

// Planner replans from the current room after every observed move and
// issues only the first step of each fresh path.
type Planner struct {
	mu      sync.Mutex
	graph   Graph
	sender  Sender
	opts    Options
	state   State
	plan    WalkPlan
	current *int
	timer   Timer
	gen     uint64 // invalidates timers that fire after being replaced
	log     *zap.Logger
}

func NewPlanner(g Graph, sender Sender, opts Options) *Planner {
	def := DefaultOptions()
	if opts.StuckTimeout <= 0 {
		opts.StuckTimeout = def.StuckTimeout
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = def.MaxFailures
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{
		graph:  g,
		sender: sender,
		opts:   opts,
		plan:   WalkPlan{Failures: map[int]int{}},
		log:    log,
	}
}

func (p *Planner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Plan returns a copy of the current walk.
func (p *Planner) Plan() WalkPlan {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := p.plan
	cp.Failures = make(map[int]int, len(p.plan.Failures))
	for k, v := range p.plan.Failures {
		cp.Failures[k] = v
	}
	return cp
}

// Request starts walking to target from the last observed room.
func (p *Planner) Request(target int) {
	p.mu.Lock()
	p.stopTimerLocked()
	var out []Status
	switch {
	case p.graph.Room(target) == nil:
		out = p.finishLocked(Aborted, target, ReasonUnknownTarget)
	case p.current == nil:
		out = p.finishLocked(Aborted, target, ReasonUnknownPosition)
	case *p.current == target:
		out = p.finishLocked(Arrived, target, "")
	default:
		p.state = Walking
		p.plan = WalkPlan{Target: target, LastRoom: *p.current, Failures: map[int]int{}}
		p.log.Info("開始移動", zap.Int("from", *p.current), zap.Int("target", target))
		out = p.stepLocked()
	}
	p.mu.Unlock()
	p.emit(out)
}

// Cancel aborts an active walk.
func (p *Planner) Cancel() {
	p.Abort(ReasonCancelled)
}

// Abort ends an active walk with reason. No-op when not walking.
func (p *Planner) Abort(reason string) {
	p.mu.Lock()
	var out []Status
	if p.state == Walking {
		out = p.finishLocked(Aborted, p.plan.Target, reason)
	}
	p.mu.Unlock()
	p.emit(out)
}

// Observe records the current room and advances an active walk.
func (p *Planner) Observe(room int) {
	p.mu.Lock()
	r := room
	p.current = &r
	var out []Status
	if p.state == Walking {
		switch {
		case room == p.plan.Target:
			out = p.finishLocked(Arrived, p.plan.Target, "")
		case room != p.plan.LastRoom:
			delete(p.plan.Failures, room)
			out = p.stepLocked()
		}
	}
	p.mu.Unlock()
	p.emit(out)
}

func (p *Planner) onStuck(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state != Walking {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	room := p.plan.LastRoom
	p.plan.Failures[room]++
	n := p.plan.Failures[room]
	var out []Status
	if n >= p.opts.MaxFailures {
		p.log.Warn("移動卡住，放棄", zap.Int("room", room), zap.Int("failures", n))
		out = p.finishLocked(Aborted, p.plan.Target, ReasonStuck)
	} else {
		p.log.Debug("位置未變，重試", zap.Int("room", room), zap.Int("failures", n))
		out = p.stepLocked()
	}
	p.mu.Unlock()
	p.emit(out)
}

// stepLocked plans from the current room and sends the first step.
func (p *Planner) stepLocked() []Status {
	from := *p.current
	path, ok := FindPath(p.graph, from, p.plan.Target)
	if !ok || len(path) == 0 {
		return p.finishLocked(Aborted, p.plan.Target, ReasonNoPath)
	}
	step := path[0]

	cmds := []string{step.Command}
	if p.opts.Expander != nil {
		if expanded := p.opts.Expander.WalkCommands(step); len(expanded) > 0 {
			cmds = expanded
		}
	}
	for _, cmd := range cmds {
		if err := p.sender.Send(cmd); err != nil {
			p.log.Warn("移動指令發送失敗", zap.String("cmd", cmd), zap.Error(err))
			return p.finishLocked(Aborted, p.plan.Target, ReasonDisconnected)
		}
	}

	p.plan.LastRoom = from
	p.plan.LastDir = step.Command
	p.armTimerLocked()
	return []Status{{State: Walking, Target: p.plan.Target, Step: &step, Remaining: len(path)}}
}

func (p *Planner) finishLocked(st State, target int, reason string) []Status {
	p.stopTimerLocked()
	p.state = st
	p.plan.Target = target
	p.plan.Failures = map[int]int{}
	if st == Aborted {
		p.log.Info("移動中止", zap.Int("target", target), zap.String("reason", reason))
	}
	return []Status{{State: st, Target: target, Reason: reason}}
}

func (p *Planner) armTimerLocked() {
	p.stopTimerLocked()
	gen := p.gen
	p.timer = p.opts.AfterFunc(p.opts.StuckTimeout, func() { p.onStuck(gen) })
}

func (p *Planner) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}

func (p *Planner) emit(out []Status) {
	if p.opts.OnStatus == nil {
		return
	}
	for _, st := range out {
		p.opts.OnStatus(st)
	}
}
