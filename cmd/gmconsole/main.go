package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gmconsole/server/internal/config"
	coresys "github.com/gmconsole/server/internal/core/system"
	"github.com/gmconsole/server/internal/data"
	"github.com/gmconsole/server/internal/handler"
	gonet "github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/persist"
	"github.com/gmconsole/server/internal/scripting"
	"github.com/gmconsole/server/internal/system"
	"github.com/gmconsole/server/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/width"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             GM Console  v0.1.0            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        桌上角色扮演 · DM 主控台伺服器     \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s\n\n", serverName)
}

// displayWidth counts East Asian wide runes as two columns.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printSkip(msg string) {
	fmt.Printf("  \033[90m-\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath, err := config.Path()
	if err != nil {
		return fmt.Errorf("config path: %w", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init loggers
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	access := newAccessLogger(cfg.Logging)
	defer access.Sync()

	printBanner(cfg.Server.Name)

	// 3. Optional command journal
	printSection("資料庫")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	var journal *persist.Journal
	if db != nil {
		printOK("PostgreSQL 連線成功")
		if err := persist.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("資料庫遷移完成")
		journal = persist.NewJournal(persist.NewJournalRepo(db), 256, time.Second, log)
		defer journal.Close()
	} else {
		printSkip("未設定 DSN，指令日誌停用")
	}
	fmt.Println()

	// 4. Load data and rules
	printSection("資料載入")

	classes, err := data.LoadClassTable(cfg.Server.ClassesFile)
	if err != nil {
		return fmt.Errorf("load classes: %w", err)
	}
	printStat("職業", classes.Count())

	chars, err := data.LoadCharacters(cfg.Server.CharactersDir, classes)
	if err != nil {
		return fmt.Errorf("load characters: %w", err)
	}
	printStat("角色", chars.Count())

	rules, err := scripting.NewEngine(cfg.Server.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer rules.Close()
	if rules.HasFunc("calc_max_hp") || rules.HasFunc("calc_max_mp") {
		printOK("Lua 規則已載入")
	} else {
		printSkip("無 Lua 規則，使用角色表 hp/mp")
	}
	fmt.Println()

	// 5. Create message registry and register handlers
	store := gonet.NewSessionStore()
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		Config:     cfg,
		Log:        log,
		World:      world.NewState(),
		Characters: chars,
		Classes:    classes,
		Rules:      rules,
		Limits: world.Limits{
			MaxHPPotions: cfg.Session.MaxHPPotions,
			MaxMPPotions: cfg.Session.MaxMPPotions,
			GemSlots:     cfg.Session.MaxGemSlots,
		},
		Sessions:  store,
		Journal:   journal,
		DM:        handler.NewDMAuth(cfg.Server.DMPassword),
		StartTime: cfg.Server.StartTime,
	}
	handler.RegisterAll(pktReg, deps)

	// 6. Create network server
	netServer, err := gonet.NewServer(gonet.Options{
		BindAddress:    cfg.Network.BindAddress,
		WSPath:         cfg.Network.WSPath,
		StaticDir:      cfg.Server.ClientDir,
		MaxMessageSize: cfg.Network.MaxMessageSize,
		Session: gonet.SessionOptions{
			InQueueSize:  cfg.Network.InQueueSize,
			OutQueueSize: cfg.Network.OutQueueSize,
			MsgPerSec:    cfg.Network.MessagesPerSecond,
			ReadTimeout:  cfg.Network.ReadTimeout,
			WriteTimeout: cfg.Network.WriteTimeout,
		},
	}, log, access)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	// 7. Create systems and register with runner
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, pktReg, store, cfg.Network.MaxMessagesPerTick, deps, log))
	runner.Register(system.NewOutputSystem(store))

	// 8. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s (WebSocket %s)", netServer.Addr().String(), cfg.Network.WSPath))
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			shutdown(runner, netServer, store, log)
			return nil
		}
	}
}

// shutdown flushes pending frames, closes every viewer and stops the
// listener. Session state is discarded.
func shutdown(runner *coresys.Runner, srv *gonet.Server, store *gonet.SessionStore, log *zap.Logger) {
	runner.TickPhase(coresys.PhaseOutput, 0)
	store.ForEach(func(sess *gonet.Session) {
		sess.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("HTTP 關閉逾時", zap.Error(err))
	}
	log.Info("伺服器已停止")
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

// newAccessLogger writes bare message lines to a size-rotated file. The
// line itself carries the timestamp.
func newAccessLogger(cfg config.LoggingConfig) *zap.Logger {
	if cfg.AccessLog == "" {
		return zap.NewNop()
	}
	sink := &lumberjack.Logger{
		Filename:   cfg.AccessLog,
		MaxSize:    cfg.AccessLogMaxMB,
		MaxBackups: cfg.AccessLogBackups,
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
	})
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(sink), zapcore.InfoLevel))
}
