package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lumina-knowledge-base/internal/bootstrap"
)

type HealthHandler struct {
	name      string
	env       string
	startedAt time.Time
	checks    map[string]func(ctx context.Context) error
	logger    *zap.Logger
}

// dependencyStatus carries no error text; /healthz is unauthenticated.
type dependencyStatus struct {
	OK bool `json:"ok"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return newHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, app.Logger, map[string]func(context.Context) error{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		},
		"rabbitmq": func(context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
		"storage": func(context.Context) error {
			_, err := os.Stat(app.Config.Storage.UploadDir)
			return err
		},
	})
}

func newHealthHandler(name, env string, startedAt time.Time, logger *zap.Logger, checks map[string]func(context.Context) error) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{name: name, env: env, startedAt: startedAt, checks: checks, logger: logger.Named("health")}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	allOK := true
	deps := make(gin.H, len(names))
	for _, name := range names {
		status := dependencyStatus{OK: true}
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("dependency check failed", zap.String("dependency", name), zap.Error(err))
			status.OK = false
			allOK = false
		}
		deps[name] = status
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":          h.name,
		"env":          h.env,
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": deps,
	})
}
