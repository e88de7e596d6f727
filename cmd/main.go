// cmd/main.go

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"backend/api"
	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/events"
	"backend/internal/handlers"
	"backend/internal/logger"
	"backend/internal/monitor"
	"backend/internal/scheduler"
	"backend/internal/service"
	"backend/internal/timing"
	"backend/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("加载配置失败: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Server.LogLevel))

	// 仓储：DBPath 为空走纯内存，否则走 sqlite
	var store db.Repository
	if cfg.Server.DBPath == "" {
		store = db.NewMemoryStore()
		logger.Info("使用内存仓储")
	} else {
		sqliteStore, err := db.OpenSQLite(cfg.Server.DBPath)
		if err != nil {
			logger.Error("打开数据库失败: %v", err)
			os.Exit(1)
		}
		store = sqliteStore
		logger.Info("使用 sqlite 仓储: %s", cfg.Server.DBPath)
	}

	// 核心组件显式装配：事件总线 → 时间管理器 → 计费 → 调度器
	coreMu := &sync.Mutex{}
	bus := events.NewBus(1000)
	tm := timing.NewTimeManager(cfg, bus, store, coreMu)
	eng := billing.NewEngine(cfg, store, tm)
	tm.SetFeeCallback(eng.FeePerSecond)
	sched := scheduler.NewScheduler(cfg, store, tm, bus, eng, coreMu)

	// 重启恢复：先把计时器脚手架接回注册表，再修复两条队列
	if records, err := store.ListTimerRecords(); err == nil {
		for _, rec := range records {
			tm.RestoreTimer(rec)
		}
		if len(records) > 0 {
			logger.Info("恢复 %d 个计时器", len(records))
		}
	} else {
		logger.Warn("读取计时器脚手架失败: %v", err)
	}
	sched.RestoreFromStore()

	bus.Start()
	tm.StartClock()

	// 用例服务与接口层
	acService := service.NewACService(cfg, store, sched, eng)
	checkinService := service.NewCheckInService(cfg, store, tm)
	checkoutService := service.NewCheckOutService(cfg, store, tm, sched, eng)
	mealService := service.NewMealService(store)
	reportService := service.NewReportService(store)
	hyperService := service.NewHyperparamService(cfg, coreMu, tm)
	mon := monitor.NewMonitor(store, tm, bus)

	router := api.SetupRouter(
		handlers.NewACHandler(acService),
		handlers.NewFrontdeskHandler(checkinService, checkoutService, mealService),
		handlers.NewMonitorHandler(mon, tm, reportService, hyperService),
	)
	srv := server.New(router)

	go func() {
		if err := srv.Start(cfg.Server.Port); err != nil {
			logger.Error("HTTP 服务异常退出: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("收到退出信号，开始停机")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("HTTP 停机失败: %v", err)
	}
	tm.StopClock()
	bus.Stop()
	logger.Info("停机完成")
}
