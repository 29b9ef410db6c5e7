package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tirumala-karthikeya/chat-pro/internal/migrate"
	"github.com/tirumala-karthikeya/chat-pro/pkg/config"
	"github.com/tirumala-karthikeya/chat-pro/pkg/di"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

func main() {
	from := flag.String("from", config.BackendMongo, "source backend: postgres, mongo, redis or local")
	to := flag.String("to", config.BackendPostgres, "target backend: postgres, mongo, redis or local")
	backup := flag.String("backup", "mongodb_backup.json", "where to write a JSON copy of the source records (empty disables)")
	flag.Parse()

	if *from == *to {
		fmt.Fprintln(os.Stderr, "-from and -to must differ")
		os.Exit(2)
	}

	cfg := config.New()
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, log, *from, *to, *backup))
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, from, to, backup string) int {
	log.Info("Starting migration", "from", from, "to", to)

	src, err := di.NewStore(cfg, from, log)
	if err != nil {
		log.LogError(err, "Invalid source")
		return 2
	}
	dst, err := di.NewStore(cfg, to, log)
	if err != nil {
		log.LogError(err, "Invalid target")
		return 2
	}
	defer src.Close(context.Background())
	defer dst.Close(context.Background())

	if err := src.Connect(ctx); err != nil {
		log.LogError(err, "Failed to connect to source", "backend", from)
		return 1
	}
	if err := dst.Connect(ctx); err != nil {
		log.LogError(err, "Failed to connect to target", "backend", to)
		return 1
	}

	res, err := migrate.Run(ctx, src, dst, backup, log)
	if err != nil {
		log.LogError(err, "Migration failed")
		return 1
	}
	log.Info("Migration completed",
		"source_count", res.SourceCount,
		"migrated", res.Migrated,
		"errors", res.Failed,
		"target_count", res.TargetCount,
	)
	if !res.OK() {
		return 1
	}
	return 0
}
