package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/mshirdel/projectflow/configs"
	db2 "github.com/mshirdel/projectflow/db"
	"github.com/mshirdel/projectflow/internal/domain"
	"github.com/mshirdel/projectflow/internal/errval"
	"github.com/mshirdel/projectflow/internal/postgres"
	"github.com/mshirdel/projectflow/internal/rabbitmq"
	"github.com/mshirdel/projectflow/internal/redis"
	"github.com/mshirdel/projectflow/internal/workflow"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var postgresIsReady, rabbitIsReady, redisIsReady bool

func main() {
	cfg := configs.InitConfig()

	d, err := iofs.New(db2.Migrations, "migrations")
	if err != nil {
		log.Fatal(err)
		return
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, cfg.Database.ToMigrationUri())
	if err != nil {
		log.Fatal(err)
		return
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal(err)
		}
	}
	slog.Info("Migrations ran successfully")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerTimeOutInSeconds)*time.Second)
	defer cancel()

	storage, err := postgres.NewStorage(ctx, cfg.Database.ToDbConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	postgresIsReady = true
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
	redisIsReady = true
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
	rabbitIsReady = true
	slog.Info("RabbitMQ has been initialized successfully")

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	engine := workflow.NewEngine(storage, redisClient, rabbitClient, cfg.RabbitMQ.StatusEventsQueueName,
		time.Duration(cfg.ProjectLockTTLInSeconds)*time.Second)

	router := setupHTTPServer(engine, storage, rabbitClient, redisClient)
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
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
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func setupHTTPServer(engine *workflow.Engine, storage domain.Storage, queueClient domain.Queue, locker domain.DistributedLock) *gin.Engine {
	r := gin.Default()
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("validate_task_status", validateTaskStatus); err != nil {
			log.Fatal("failed to bind validation rule of validate_task_status")
		}

		if err := v.RegisterValidation("validate_project_status", validateProjectStatus); err != nil {
			log.Fatal("failed to bind validation rule of validate_project_status")
		}
	}

	projects := r.Group("/projects")
	projects.POST("", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		req := domain.RouterRequestCreateProject{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		project, err := engine.CreateProject(c, workflow.CreateProjectParams{
			Name:           req.Name,
			Description:    req.Description,
			ManagerID:      req.ManagerID,
			Budget:         req.Budget,
			AllocatedHours: req.AllocatedHours,
			StartDate:      parseDate(req.StartDate),
			EndDate:        parseDate(req.EndDate),
			Status:         domain.ProjectStatus(req.Status),
		}, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": project})
	})

	projects.PATCH("/:id", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		projectID, ok := parseIDParam(c)
		if !ok {
			return
		}

		req := domain.RouterRequestUpdateProject{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		project, err := engine.UpdateProject(c, projectID, workflow.UpdateProjectParams{
			ManagerID:      req.ManagerID,
			Budget:         req.Budget,
			AllocatedHours: req.AllocatedHours,
			StartDate:      parseDate(req.StartDate),
			EndDate:        parseDate(req.EndDate),
		}, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": project})
	})

	sprints := r.Group("/sprints")
	sprints.POST("", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		req := domain.RouterRequestCreateSprint{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sprint, err := engine.CreateSprint(c, workflow.CreateSprintParams{
			ProjectID: req.ProjectID,
			Name:      req.Name,
			StartDate: *parseDate(req.StartDate),
			EndDate:   *parseDate(req.EndDate),
		}, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": sprint})
	})

	sprints.PATCH("/:id", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		sprintID, ok := parseIDParam(c)
		if !ok {
			return
		}

		req := domain.RouterRequestUpdateSprint{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sprint, err := engine.UpdateSprint(c, sprintID, workflow.UpdateSprintParams{
			Name:      req.Name,
			StartDate: parseDate(req.StartDate),
			EndDate:   parseDate(req.EndDate),
		}, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": sprint})
	})

	sprints.POST("/:id/complete", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		sprintID, ok := parseIDParam(c)
		if !ok {
			return
		}

		sprint, err := engine.CompleteSprint(c, sprintID, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": sprint})
	})

	sprints.DELETE("/:id", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		sprintID, ok := parseIDParam(c)
		if !ok {
			return
		}

		if err := engine.DeleteSprint(c, sprintID, actor); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "sprint deleted successfully"})
	})

	sprints.POST("/assign-task", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		req := domain.RouterRequestAssignTaskToSprint{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		task, err := engine.AssignTaskToSprint(c, req.SprintID, req.TaskID, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": task})
	})

	tasks := r.Group("/tasks")
	tasks.POST("", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		req := domain.RouterRequestCreateTask{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		task, err := engine.CreateTask(c, workflow.CreateTaskParams{
			ProjectID:       req.ProjectID,
			SprintID:        req.SprintID,
			AssignedTo:      req.AssignedTo,
			Title:           req.Title,
			Description:     req.Description,
			DependsOn:       req.DependsOn,
			StartDate:       parseDate(req.StartDate),
			EndDate:         parseDate(req.EndDate),
			AllocatedHours:  req.AllocatedHours,
			RequestedStatus: domain.TaskStatus(req.Status),
		}, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": task})
	})

	tasks.GET("/:id", func(c *gin.Context) {
		taskID, ok := parseIDParam(c)
		if !ok {
			return
		}

		task, err := engine.GetTask(c, taskID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": task})
	})

	tasks.PATCH("/:id", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		taskID, ok := parseIDParam(c)
		if !ok {
			return
		}

		req := domain.RouterRequestUpdateTask{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var status *domain.TaskStatus
		if req.Status != nil {
			s := domain.TaskStatus(*req.Status)
			status = &s
		}

		task, err := engine.UpdateTask(c, taskID, workflow.UpdateTaskParams{
			Title:          req.Title,
			Description:    req.Description,
			AssignedTo:     req.AssignedTo,
			DependsOn:      req.DependsOn,
			StartDate:      parseDate(req.StartDate),
			EndDate:        parseDate(req.EndDate),
			AllocatedHours: req.AllocatedHours,
			Status:         status,
		}, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": task})
	})

	tasks.PATCH("/:id/status", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		taskID, ok := parseIDParam(c)
		if !ok {
			return
		}

		req := domain.RouterRequestTransitionTask{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := engine.TransitionTaskStatus(c, taskID, domain.TaskStatus(req.Status), req.ManualHours, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "task status updated successfully", "data": result})
	})

	tasks.PUT("/:id/dependencies", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		taskID, ok := parseIDParam(c)
		if !ok {
			return
		}

		req := domain.RouterRequestDependencies{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		task, err := engine.AddDependencyEdges(c, taskID, req.DependsOn, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": task})
	})

	tasks.POST("/:id/remove-from-sprint", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		taskID, ok := parseIDParam(c)
		if !ok {
			return
		}

		task, err := engine.RemoveTaskFromSprint(c, taskID, actor)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "task removed from sprint successfully", "data": task})
	})

	tasks.DELETE("/:id", func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if !ok {
			return
		}

		taskID, ok := parseIDParam(c)
		if !ok {
			return
		}

		if err := engine.DeleteTask(c, taskID, actor); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "task deleted successfully"})
	})

	tasks.GET("/:id/history", func(c *gin.Context) {
		taskID, ok := parseIDParam(c)
		if !ok {
			return
		}

		history, err := engine.GetTaskStatusHistory(c, taskID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"history": history})
	})

	r.GET("/readiness", func(c *gin.Context) {
		if postgresIsReady && rabbitIsReady && redisIsReady {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		}
	})
	r.GET("/liveness", func(c *gin.Context) {
		if err := storage.Ping(c); err != nil {
			slog.Error("Postgresql seem not to be pingable in liveness API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		if !queueClient.IsHealthy() {
			slog.Error("Rabbit is not healthy")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		if err := locker.Ping(c); err != nil {
			slog.Error("Redis seem not to be pingable in liveness API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not healthy"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})

	return r
}

// actorFromRequest reads the identity the external access-control layer put
// on the request. Mutating endpoints require it.
func actorFromRequest(c *gin.Context) (domain.Actor, bool) {
	idStr := c.GetHeader("X-Actor-Id")
	id, err := strconv.ParseInt(idStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-Actor-Id header"})
		return domain.Actor{}, false
	}

	role := domain.Role(c.GetHeader("X-Actor-Role"))
	if !role.IsValid() {
		role = domain.RoleEmployee
	}

	return domain.Actor{ID: int32(id), Role: role}, true
}

func parseIDParam(c *gin.Context) (int32, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 32)
	if err != nil {
		slog.Error("Invalid id parameter, error occurred while casting id str to int", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}

	return int32(id), true
}

// parseDate converts a validated "2006-01-02" string; binding guarantees the
// format, so the parse error only guards the empty case.
func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}

	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil
	}

	return &t
}

func respondError(c *gin.Context, err error) {
	var (
		pendingErr    *errval.DependenciesPendingError
		hoursErr      *errval.HoursExceededError
		transitionErr *errval.InvalidTransitionError
		rangeErr      *errval.DateRangeViolationError
		misalignedErr *errval.MisalignedChildError
	)

	switch {
	case errors.Is(err, errval.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errval.ErrSprintNameTaken), errors.Is(err, errval.ErrProjectBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &pendingErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":                "cannot move task, all dependent tasks must be completed first",
			"pending_dependencies": pendingErr.Pending,
		})
	case errors.As(err, &hoursErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           hoursErr.Error(),
			"allocated_hours": hoursErr.Allocated,
			"available_hours": hoursErr.Available,
		})
	case errors.As(err, &transitionErr), errors.As(err, &rangeErr), errors.As(err, &misalignedErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case isDomainRuleViolation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("unexpected error while handling request", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": errval.ErrInternal.Error()})
	}
}

func isDomainRuleViolation(err error) bool {
	ruleErrors := []error{
		errval.ErrNoOpTransition,
		errval.ErrSystemControlledState,
		errval.ErrInvalidStatus,
		errval.ErrSelfDependency,
		errval.ErrDuplicateDependency,
		errval.ErrCrossProjectDependency,
		errval.ErrCycleDetected,
		errval.ErrStateFrozen,
		errval.ErrSprintOverlap,
		errval.ErrActiveSprintDates,
		errval.ErrSprintNotPlanned,
		errval.ErrSprintHasTasks,
		errval.ErrSprintTasksIncomplete,
		errval.ErrSprintProjectMismatch,
		errval.ErrTaskAlreadyInSprint,
		errval.ErrTaskNotInSprint,
		errval.ErrTaskHasDependents,
		errval.ErrManualHoursOutOfRange,
		errval.ErrSprintAlreadyComplete,
		errval.ErrMissingRequiredFields,
	}

	for _, ruleErr := range ruleErrors {
		if errors.Is(err, ruleErr) {
			return true
		}
	}

	return false
}

var validateTaskStatus validator.Func = func(fl validator.FieldLevel) bool {
	return domain.TaskStatus(fl.Field().String()).IsValid()
}

var validateProjectStatus validator.Func = func(fl validator.FieldLevel) bool {
	return domain.ProjectStatus(fl.Field().String()).IsValid()
}
