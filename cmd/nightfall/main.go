package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nightfall-go/mapper/internal/client"
	"github.com/nightfall-go/mapper/internal/config"
	"github.com/nightfall-go/mapper/internal/core/event"
	"github.com/nightfall-go/mapper/internal/data"
	"github.com/nightfall-go/mapper/internal/feed"
	"github.com/nightfall-go/mapper/internal/metrics"
	gonet "github.com/nightfall-go/mapper/internal/net"
	"github.com/nightfall-go/mapper/internal/persist"
	"github.com/nightfall-go/mapper/internal/route"
	"github.com/nightfall-go/mapper/internal/scripting"
	"github.com/nightfall-go/mapper/internal/state"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(addr string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m           Nightfall Mapper  v0.1.0        \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      夜幕 MUD · 定位與自動行走客戶端      \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s\n\n", addr)
}

// displayWidth counts CJK runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := strconv.Itoa(count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main client logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/nightfall.toml"
	if p := os.Getenv("NIGHTFALL_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Network.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Database (world source and/or visit journal)
	var db *persist.DB
	if cfg.World.Source == "postgres" || cfg.Database.RecordVisits {
		printSection("資料庫")
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err = persist.Open(dbCtx, cfg.Database, log)
		cancel()
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功，遷移完成")
		fmt.Println()
	}

	// 4. World graph
	printSection("世界資料")
	world, err := loadWorld(ctx, cfg.World, db)
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}
	st := world.Stats()
	printStat("房間", st.Rooms)
	printStat("區域", st.Zones)
	printStat("出口", st.Exits)
	printStat("房間描述", st.Descriptions)
	if st.DanglingExits > 0 {
		printStat("無效出口", st.DanglingExits)
	}
	fmt.Println()

	// 5. Scripts, local state, metrics
	printSection("模組")
	engine, err := scripting.NewEngine(cfg.Scripts.Dir, log.Named("scripting"))
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer engine.Close()
	printOK(fmt.Sprintf("Lua 腳本 (%s)", cfg.Scripts.Dir))
	if cfg.Scripts.Watch {
		go func() {
			if err := engine.Watch(ctx); err != nil {
				log.Warn("腳本監看未啟動", zap.Error(err))
			}
		}()
	}

	store, err := state.Open(cfg.State.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	printOK(fmt.Sprintf("本機狀態 (%s)", cfg.State.Path))

	m := metrics.New(time.Now())

	var journal client.Journal
	if db != nil && cfg.Database.RecordVisits {
		j := persist.NewJournal(persist.NewVisitRepo(db), 5*time.Second, log.Named("journal"))
		go j.Run(ctx)
		journal = j
		printOK("足跡記錄")
	}
	fmt.Println()

	// 6. Client
	passphrase := os.Getenv(config.PassphraseEnv)
	pass, err := cfg.Credentials.Password(passphrase)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	bus := event.NewBus()
	c := client.New(world, bus, client.Options{
		Addr:        cfg.Network.Addr(),
		DialTimeout: cfg.Network.DialTimeout,
		Session: gonet.Options{
			Framing: gonet.FramingConfig{
				LoggedInTimeout: cfg.Framing.LoggedInTimeout,
				PreLoginTimeout: cfg.Framing.PreLoginTimeout,
				MaxBuffer:       cfg.Framing.MaxBuffer,
			},
			ReadBuffer:    cfg.Network.ReadBuffer,
			WriteTimeout:  cfg.Network.WriteTimeout,
			FlushInterval: cfg.Network.FlushInterval,
			QuitCommand:   cfg.Network.QuitCommand,
			QueueSize:     cfg.Network.QueueSize,
		},
		User:        cfg.Credentials.User,
		Pass:        pass,
		Credentials: config.NewFileCredentialStore(cfgPath, passphrase),
		Walk: route.Options{
			StuckTimeout: cfg.Walk.StuckTimeout,
			MaxFailures:  cfg.Walk.MaxFailures,
		},
		Triggers: cfg.Trigger.Commands,
		Reload:   cfg.Trigger.RoomReload,
		Hooks:    engine,
		Rooms:    store,
		Journal:  journal,
		Metrics:  m,
	}, log.Named("client"))
	defer c.Close()

	con := newConsole(c, world, store)
	con.subscribe(bus)

	// 7. HTTP feed
	var srv *http.Server
	if cfg.HTTP.Enabled {
		hub := feed.NewHub(bus, c, log.Named("feed"))
		srv = &http.Server{
			Addr:              cfg.HTTP.BindAddress,
			Handler:           feed.NewRouter(hub, c, store, m.Handler(), log.Named("http")),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP 伺服器錯誤", zap.Error(err))
			}
		}()
	}

	// 8. Connect
	printSection("連線")
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	printReady(fmt.Sprintf("已連線至 %s", cfg.Network.Addr()))
	if srv != nil {
		printReady(fmt.Sprintf("HTTP 介面 http://%s", cfg.HTTP.BindAddress))
	}
	fmt.Println()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				log.Info("標準輸入結束")
				return shutdown(c, srv, log)
			}
			if quit := con.handle(line); quit {
				return shutdown(c, srv, log)
			}
		case <-con.disconnected:
			fmt.Println("\n  連線已中斷")
			return shutdown(c, srv, log)
		case <-ctx.Done():
			log.Info("收到關閉信號")
			return shutdown(c, srv, log)
		}
	}
}

func shutdown(c *client.Client, srv *http.Server, log *zap.Logger) error {
	c.Close()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("HTTP 關閉失敗", zap.Error(err))
		}
	}
	log.Info("客戶端已停止")
	return nil
}

func loadWorld(ctx context.Context, cfg config.WorldConfig, db *persist.DB) (*data.World, error) {
	if cfg.Source == "postgres" {
		return persist.NewWorldRepo(db).Load(ctx)
	}
	return data.LoadWorld(cfg.Path)
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// ── Console ───────────────────────────────────────────────────────

// console prints bus events and turns typed lines into client calls.
type console struct {
	c     *client.Client
	world *data.World
	marks *state.Store

	mu           sync.Mutex
	awaiting     string // login field the server asked for
	disconnected chan struct{}
}

func newConsole(c *client.Client, world *data.World, marks *state.Store) *console {
	return &console{c: c, world: world, marks: marks, disconnected: make(chan struct{}, 1)}
}

func (k *console) subscribe(bus *event.Bus) {
	event.Subscribe(bus, func(e event.Message) {
		fmt.Print(e.Text)
	})
	event.Subscribe(bus, func(e event.LoginPrompt) {
		k.mu.Lock()
		k.awaiting = e.Field
		k.mu.Unlock()
	})
	event.Subscribe(bus, func(e event.PositionChanged) {
		id, _ := e.Estimate.Room()
		if e.ZoneChanged && e.ZoneName != "" {
			fmt.Printf("\n  \033[36m[區域] %s\033[0m\n", e.ZoneName)
		}
		fmt.Printf("  \033[32m[位置] %s (#%d, %s, z=%d)\033[0m\n", e.Name, id, e.Estimate.Confidence, e.Z)
	})
	event.Subscribe(bus, func(e event.RouteStatus) {
		switch e.State {
		case route.Arrived:
			fmt.Printf("  \033[32m[行走] 已抵達 %s\033[0m\n", k.world.RoomName(e.Target))
		case route.Aborted:
			fmt.Printf("  \033[31m[行走] 中止: %s\033[0m\n", e.Reason)
		}
	})
	event.Subscribe(bus, func(event.Disconnected) {
		select {
		case k.disconnected <- struct{}{}:
		default:
		}
	})
}

// handle processes one typed line and reports whether to quit.
func (k *console) handle(line string) bool {
	k.mu.Lock()
	field := k.awaiting
	k.awaiting = ""
	k.mu.Unlock()

	switch field {
	case "username":
		k.report(k.c.SubmitUsername(line))
		return false
	case "password":
		k.report(k.c.SubmitPassword(line))
		return false
	}

	if !strings.HasPrefix(line, "/") {
		k.report(k.c.Send(line))
		return false
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "quit":
		return true
	case "walk":
		target, err := k.resolve(arg)
		if err != nil {
			k.report(err)
			return false
		}
		k.c.RequestRoute(target)
	case "stop":
		k.c.CancelRoute()
	case "here":
		if id, ok := k.c.CurrentRoom(); ok {
			fmt.Printf("  #%d %s\n", id, k.world.RoomName(id))
		} else {
			fmt.Println("  位置未知")
		}
	case "set":
		id, err := strconv.Atoi(arg)
		if err != nil {
			k.report(fmt.Errorf("room id expected: %q", arg))
			return false
		}
		k.report(k.c.SetCurrentRoom(id))
	case "mark":
		id, ok := k.c.CurrentRoom()
		if !ok {
			k.report(errors.New("current room unknown"))
			return false
		}
		k.report(k.marks.PutBookmark(arg, id))
	case "marks":
		list, err := k.marks.Bookmarks()
		if err != nil {
			k.report(err)
			return false
		}
		for _, b := range list {
			fmt.Printf("  %-16s #%d %s\n", b.Name, b.RoomID, k.world.RoomName(b.RoomID))
		}
	case "find":
		for _, id := range k.world.FindRoomsByName(arg) {
			fmt.Printf("  #%d %s\n", id, k.world.RoomName(id))
		}
	default:
		fmt.Println("  指令: /walk <編號|書籤|名稱> /stop /here /set <編號> /mark <名稱> /marks /find <名稱> /quit")
	}
	return false
}

// resolve turns a room id, bookmark or unique room name into a room id.
func (k *console) resolve(arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		return id, nil
	}
	if id, err := k.marks.Bookmark(arg); err == nil {
		return id, nil
	}
	ids := k.world.FindRoomsByName(arg)
	switch len(ids) {
	case 0:
		return 0, fmt.Errorf("no room or bookmark named %q", arg)
	case 1:
		return ids[0], nil
	default:
		return 0, fmt.Errorf("%d rooms match %q, use /find", len(ids), arg)
	}
}

func (k *console) report(err error) {
	if err != nil {
		fmt.Printf("  \033[31m錯誤: %v\033[0m\n", err)
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
