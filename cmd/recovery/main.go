// The recovery command sweeps Blocked tasks whose dependencies have all
// completed and restores them to their last active status. It catches unblocks
// missed across crashes and the deeper levels of dependency chains that the
// single-hop completion cascade does not reach. Intended to run periodically,
// e.g. as a cron job.
package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/mshirdel/projectflow/configs"
	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/postgres"
	"github.com/mshirdel/projectflow/internal/rabbitmq"
	"github.com/mshirdel/projectflow/internal/redis"
	"github.com/mshirdel/projectflow/internal/workflow"
)

// recoveryActorID marks history rows written by the sweep rather than a user.
const recoveryActorID int32 = 0

func main() {
	cfg := configs.InitConfig()

	ctx := context.Background()
	storage, err := postgres.NewStorage(ctx, cfg.Database.ToDbConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("Postgres connection has been initialized successfully")

	redisClient, err := redis.NewClient(cfg.RedisConfig.ToRedisConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Error("An error occurred while closing Redis connection", "error", err.Error())
		}
	}()
	slog.Info("Redis connection has been initialized successfully")

	rabbitClient, err := rabbitmq.NewClient(ctx, cfg.RabbitMQ.ToRabbitConnectionUri(), []string{cfg.RabbitMQ.StatusEventsQueueName})
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := rabbitClient.Close(); err != nil {
			slog.Error("An error occurred while closing RabbitMQ connection", "error", err.Error())
		}
	}()
	slog.Info("RabbitMQ has been initialized successfully")

	engine := workflow.NewEngine(storage, redisClient, rabbitClient, cfg.RabbitMQ.StatusEventsQueueName,
		time.Duration(cfg.ProjectLockTTLInSeconds)*time.Second)

	slog.Info("Sweeping blocked tasks for missed unblocks")
	reconciled, err := engine.ReconcileBlockedTasks(ctx, domain.Actor{ID: recoveryActorID, Role: domain.RoleAdmin})
	if err != nil {
		slog.Error("Error occurred while reconciling blocked tasks", "error", err.Error())
		return
	}

	slog.Info("Blocked task sweep has finished", "unblocked_count", reconciled)
}
