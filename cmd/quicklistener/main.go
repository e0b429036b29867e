// Package main 提供 quicklistener 命令行入口
//
// 在进程内启动一组工作者，按配置的节奏广播任务并收集响应，
// 用于观察完成屏障、响应通道与 key 生命周期的行为。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-quicklistener"
	"github.com/dep2p/go-quicklistener/config"
	"github.com/dep2p/go-quicklistener/internal/util/logger"
)

var log = logger.Logger("cmd/quicklistener")

// 构建信息，由 -ldflags 注入
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile = flag.String("config", "", "配置文件路径（JSON）")
	keys       = flag.Int("keys", 4, "key 数量")
	workers    = flag.Int("workers", 2, "每个 key 的工作者数量")
	rounds     = flag.Int("rounds", 10, "每个 key 的广播轮数")
	work       = flag.Duration("work", time.Millisecond, "工作者处理单个任务的耗时")
	timeout    = flag.Duration("timeout", 5*time.Second, "等待响应的超时")
	debugMode  = flag.Bool("debug", false, "打开调试输出")
	metrics    = flag.Bool("metrics", false, "结束时打印指标")

	showVersion = flag.Bool("version", false, "显示版本信息")
	showHelp    = flag.Bool("help", false, "显示帮助信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		printVersion()
		return nil
	}
	if *showHelp {
		printHelp()
		return nil
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	var bus *quicklistener.Bus
	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(func() prometheus.Registerer { return reg }),
		quicklistener.Module(),
		fx.Populate(&bus),
		fx.WithLogger(fxLogger(cfg.Debug.Enable)),
	)
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	log.Info("启动 quicklistener", "version", Version, "bus", bus.ID(),
		"keys", *keys, "workers", *workers, "rounds", *rounds)

	start := time.Now()
	runErr := runWorkload(ctx, bus)
	elapsed := time.Since(start)

	printSummary(bus, elapsed)
	if *metrics {
		if err := printMetrics(reg); err != nil {
			log.Warn("打印指标失败", "err", err)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("关闭失败: %w", err)
	}
	return runErr
}

// fxLogger 调试模式下输出 Fx 生命周期事件，否则静默
func fxLogger(debug bool) func() fxevent.Logger {
	return func() fxevent.Logger {
		if !debug {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		l, err := zap.NewDevelopment()
		if err != nil {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		return &fxevent.ZapLogger{Logger: l}
	}
}

// buildConfig 构建配置
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（QUICKLISTENER_* 前缀）
//  3. 配置文件
//  4. 默认值
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}

	if isFlagSet("debug") {
		cfg.Debug.Enable = *debugMode
	}
	if isFlagSet("timeout") {
		cfg.Delivery.DefaultWaitTimeout = config.Duration(*timeout)
	}

	if *keys <= 0 || *workers < 0 || *rounds < 0 {
		return nil, fmt.Errorf("keys must be positive, workers and rounds must not be negative")
	}
	return cfg, cfg.Validate()
}

// runWorkload 每个 key 一个广播者，逐轮广播并等待响应，最后退役 key
func runWorkload(ctx context.Context, bus *quicklistener.Bus) error {
	for k := 0; k < *keys; k++ {
		key := keyName(k)
		for w := 0; w < *workers; w++ {
			quicklistener.For[int](bus, key).Listen(worker(key, w))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for k := 0; k < *keys; k++ {
		h := quicklistener.For[int](bus, keyName(k))
		g.Go(func() error { return drive(ctx, h) })
	}
	return g.Wait()
}

// drive 在一个 key 上完成全部轮次
func drive(ctx context.Context, h *quicklistener.Handle[int]) error {
	for round := 0; round < *rounds; round++ {
		if err := h.BroadcastAndWait(ctx, round); err != nil {
			return fmt.Errorf("%v round %d: %w", h.Keys(), round, err)
		}
		if *workers == 0 {
			continue
		}
		resp, err := h.WaitForResponse(ctx, quicklistener.WithTimeout(*timeout))
		if err != nil {
			return fmt.Errorf("%v round %d: %w", h.Keys(), round, err)
		}
		log.Debug("收到响应", "key", resp.Key, "round", round, "value", resp.Value)
	}
	return h.Done(ctx)
}

func worker(key string, id int) quicklistener.DataFunc[int] {
	return func(round int, respond quicklistener.Respond) error {
		time.Sleep(*work)
		respond(fmt.Sprintf("%s/worker-%d/round-%d", key, id, round))
		return nil
	}
}

func keyName(i int) string {
	return fmt.Sprintf("key-%d", i)
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printSummary(bus *quicklistener.Bus, elapsed time.Duration) {
	stats := bus.Stats()
	fmt.Println()
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("  Bus:        %s\n", bus.ID())
	fmt.Printf("  广播:       %d\n", stats.Broadcasts)
	fmt.Printf("  活跃 key:   %v\n", bus.ListAllActiveKeys())
	fmt.Printf("  监听者:     %d\n", stats.Listeners)
	fmt.Printf("  未完成屏障: %d\n", stats.PendingBarriers)
	fmt.Printf("  耗时:       %s\n", elapsed.Round(time.Millisecond))
	fmt.Println("═══════════════════════════════════════")
}

func printMetrics(reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("quicklistener %s\n", Version)
	if GitCommit != "" {
		fmt.Printf("  commit: %s\n", GitCommit)
	}
	if BuildDate != "" {
		fmt.Printf("  built:  %s\n", BuildDate)
	}
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("quicklistener - 进程内按 key 划分的发布/订阅总线演示")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  quicklistener [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  " + config.EnvPrefix + config.EnvSlowConsumerThreshold)
	fmt.Println("  " + config.EnvPrefix + config.EnvDefaultWaitTimeout)
	fmt.Println("  " + config.EnvPrefix + config.EnvResponseRetention)
	fmt.Println("  " + config.EnvPrefix + config.EnvDebug)
	fmt.Println("  " + config.EnvPrefix + config.EnvDebugNDJSON)
	fmt.Println("  QUICKLISTENER_LOG_LEVEL, QUICKLISTENER_LOG_FORMAT")
}
