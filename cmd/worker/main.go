package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mshirdel/projectflow/configs"
	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/rabbitmq"
	"github.com/mshirdel/projectflow/pkg/notify"
)

var rabbitIsReady bool

func main() {
	cfg := configs.InitConfig()
	args := os.Args
	slog.Info("Running status_worker command", "args", args, "len_args", len(args))

	// workerNumber only needs to be unique per worker instance; it is appended
	// to the consumer name so RabbitMQ can tell consumers apart.
	workerNumber := "0"
	if len(args) > 1 {
		workerNumber = args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.WorkerTimeOutInSeconds)*time.Second)
	defer cancel()

	rabbitClient, err := rabbitmq.NewClient(ctx, cfg.RabbitMQ.ToRabbitConnectionUri(), []string{cfg.RabbitMQ.StatusEventsQueueName})
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := rabbitClient.Close(); err != nil {
			slog.Error("An error occurred while closing RabbitMQ connection", "error", err.Error())
		}
	}()
	rabbitIsReady = true
	slog.Info("RabbitMQ connection has been initialized successfully")

	notifier := notify.NewStatusChangeNotifier()

	handlerFunc := func(input string) {
		event := domain.TaskStatusEvent{}
		if err := json.Unmarshal([]byte(input), &event); err != nil {
			slog.Error("There was an error in unmarshalling the status event", "error", err)
			return
		}
		slog.Info("Status event is picked up from the queue", "task_id", event.TaskID, "from_status", event.FromStatus, "to_status", event.ToStatus)

		if !event.ToStatus.IsValid() {
			slog.Error("Status event with invalid target status has been pushed to queue, ignoring the event...", "task_id", event.TaskID, "to_status", event.ToStatus)
			return
		}

		if err := notifier.Notify(event); err != nil {
			slog.Error("Error occurred while notifying status change", "task_id", event.TaskID, "error", err.Error())
			return
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	queueName := cfg.RabbitMQ.StatusEventsQueueName
	consumerName := "status-consumer:" + workerNumber
	slog.Info("Creating consumer for RabbitMQ", "queueName", queueName, "consumer_name", consumerName)
	if err := rabbitClient.ConsumeMessages(consumerName, queueName, handlerFunc); err != nil {
		log.Fatalf("Failed to start consuming messages: %v", err)
	}
	slog.Info("Consumer is created successfully", "queueName", queueName, "consumer_name", consumerName)

	// Running HTTP Server in order to have liveness and readiness HTTP APIs
	go setUpHealthCheckerAPIs(cfg, rabbitClient)

	slog.Info("Worker is running. To exit press CTRL+C", "worker_num", workerNumber)
	<-sigChan
	slog.Info("Worker is shutting down...", "worker_num", workerNumber)
}

func setUpHealthCheckerAPIs(cfg *configs.Config, rabbitClient domain.Queue) {
	r := gin.Default()
	r.GET("/readiness", func(c *gin.Context) {
		if rabbitIsReady {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		}
	})
	r.GET("/liveness", func(c *gin.Context) {
		if !rabbitClient.IsHealthy() {
			slog.Error("Rabbit is not healthy")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on port %s\n", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
}
