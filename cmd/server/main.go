package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/woodtypes/internal/app"
	"github.com/annel0/woodtypes/internal/config"
	"github.com/annel0/woodtypes/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (или WOODTYPES_CONFIG)")
	flag.Parse()
	os.Exit(run(*configPath))
}

// run возвращает код завершения процесса, чтобы отложенные вызовы успели отработать
func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ Неверный уровень логирования: %v", err)
	}
	logging.SetLogDir(cfg.Logging.Dir)
	logging.SetConsoleLevel(level)

	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	logging.Info("🌳 Запуск сервиса типов дерева...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := app.New(ctx, cfg)
	if err != nil {
		logging.Error("❌ Ошибка инициализации сервиса: %v", err)
		log.Fatalf("❌ Ошибка инициализации сервиса: %v", err)
	}

	if _, err := service.Bootstrap(ctx); err != nil {
		service.Shutdown(context.Background())
		logging.Error("❌ Ошибка загрузки блоков: %v", err)
		log.Fatalf("❌ Ошибка загрузки блоков: %v", err)
	}

	errCh := service.Start()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logging.Info("   📈 Метрики: http://localhost:%d/metrics", cfg.Server.GetMetricsPort())
	logging.Info("   ❤️  Health check: http://localhost:%d/health", cfg.Server.GetRESTPort())

	exitCode := 0

	// Ждем сигнала для завершения или падения REST сервера
	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал, завершение работы...")
	case err := <-errCh:
		logging.Error("❌ REST API остановился: %v", err)
		exitCode = 1
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	service.Shutdown(shutdownCtx)

	logging.Info("👋 Сервис остановлен")
	return exitCode
}
