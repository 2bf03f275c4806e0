package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"perpfire/internal/advisor"
	pfcfg "perpfire/internal/config"
	"perpfire/internal/config/loader"
	"perpfire/internal/engine"
	"perpfire/internal/gateway/binance"
	"perpfire/internal/gateway/provider"
	"perpfire/internal/logger"
	"perpfire/internal/notifier"
	"perpfire/internal/store"
	"perpfire/internal/store/decisionlog"
	livehttp "perpfire/internal/transport/http/live"
)

func main() {
	cfgPath := os.Getenv("PERPFIRE_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := pfcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("时区配置非法: %v", err)
	}

	logFile, err := logger.NewDateFileWriter(cfg.App.LogDir, loc)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	defer logFile.Close()
	// stdout 与按日文件共用同一条 [HH:MM:SS] [LEVEL] [CATEGORY] 格式化路径
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	logger.SetLocation(loc)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s, 时区=%s）", cfg.App.Env, loc)

	st, err := store.New(cfg.App.DataDir)
	if err != nil {
		// 数据目录不可写属于不可恢复的启动错误
		log.Fatalf("初始化数据目录失败: %v", err)
	}

	var decisions *decisionlog.Store
	if cfg.App.DecisionLogPath != "" {
		decisions, err = decisionlog.New(cfg.App.DecisionLogPath)
		if err != nil {
			logger.Warnf("决策日志不可用(继续运行): %v", err)
			decisions = nil
		} else {
			defer decisions.Close()
		}
	}

	ex, err := binance.New(binance.Config{
		APIKey:       cfg.Exchange.APIKey,
		APISecret:    cfg.Exchange.APISecret,
		RESTBaseURL:  cfg.Exchange.RESTBaseURL,
		HTTPTimeout:  time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		ProxyEnabled: cfg.Exchange.Proxy.Enabled,
		RESTProxyURL: cfg.Exchange.Proxy.RESTURL,
		WSProxyURL:   cfg.Exchange.Proxy.WSURL,
	})
	if err != nil {
		log.Fatalf("初始化交易所适配器失败: %v", err)
	}

	var adv advisor.Advisor
	if cfg.Advisor.APIURL != "" {
		opts := []advisor.Option{advisor.WithPayloadDump(cfg.Advisor.DumpPayload)}
		if decisions != nil {
			opts = append(opts, advisor.WithRecorder(decisions))
		}
		adv = advisor.NewEngine(&provider.ChatClient{
			BaseURL: cfg.Advisor.APIURL,
			APIKey:  cfg.Advisor.APIKey,
			Model:   cfg.Advisor.Model,
			Timeout: time.Duration(cfg.Advisor.TimeoutSeconds) * time.Second,
		}, 10*time.Minute, opts...)
	} else {
		logger.Infof("未配置 %s, 不调用顾问; 若启用 aiConfig 入场闸门, 无顾问结论的信号一律被拒", pfcfg.EnvAdvisorURL)
	}

	var notify engine.Notifier
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	eng, err := engine.New(engine.Options{
		Store:    st,
		Exchange: ex,
		Stream:   binance.NewPriceStream(),
		Advisor:  adv,
		Notifier: notify,
		Location: loc,
	})
	if err != nil {
		log.Fatalf("初始化引擎失败: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loadCtx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
	if err := ex.LoadMarkets(loadCtx); err != nil {
		logger.Warnf("加载交易对元数据失败(使用缺省精度): %v", err)
	}
	cancel()

	// 关注列表并入交易配置
	if extra, err := loader.LoadWatchlist(cfg.App.WatchlistPath); err != nil {
		logger.Warnf("关注列表装载失败: %v", err)
	} else if len(extra) > 0 {
		merged := mergeSymbols(eng.Config().Symbols, extra)
		if _, err := eng.ApplyPatch(map[string]any{"symbols": merged}); err != nil {
			logger.Warnf("合并关注列表失败: %v", err)
		}
	}

	// config.json 外部编辑 → 下一个 tick 生效
	if err := st.WatchConfig(rootCtx, eng.ReloadConfigFromDisk); err != nil {
		logger.Warnf("配置监听不可用: %v", err)
	}

	// 上次会话在运行中则恢复调度
	if eng.State().IsRunning {
		if err := eng.Start(); err != nil {
			logger.Errorf("恢复调度失败: %v", err)
		}
	}

	srv, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Engine:    eng,
		Decisions: decisions,
	})
	if err != nil {
		log.Fatalf("初始化 HTTP 服务失败: %v", err)
	}

	g, gCtx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return srv.Run(gCtx) })
	g.Go(func() error {
		<-gCtx.Done()
		eng.Stop()
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
	logger.Infof("进程退出")
}

func mergeSymbols(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range append(append([]string{}, base...), extra...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
