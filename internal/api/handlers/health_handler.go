package handlers

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"

	config "postflow/configs"
	"postflow/internal/repository"
)

type HealthHandler struct {
	cfg      config.Config
	db       *sql.DB
	posts    repository.PostRepository
	accounts repository.SocialAccountRepository
}

func NewHealthHandler(
	cfg config.Config,
	db *sql.DB,
	posts repository.PostRepository,
	accounts repository.SocialAccountRepository) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, posts: posts, accounts: accounts}
}

// Health is the liveness probe.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	if err := h.db.PingContext(ctx); err != nil {
		status = "error"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Status is the detailed readiness probe: store reachability and latency,
// due-work backlog, configuration completeness, memory pressure, and how
// many accounts can use the legacy media path.
func (h *HealthHandler) Status(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	now := time.Now()

	storeStatus := "ok"
	start := time.Now()
	dueCount, err := h.posts.CountDue(ctx, now)
	storeLatency := time.Since(start)
	if err != nil {
		storeStatus = "error"
	}

	signingAccounts, err := h.accounts.CountWithSigningKeys(ctx)
	if err != nil {
		storeStatus = "error"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memoryRatio := 0.0
	if mem.Sys > 0 {
		memoryRatio = float64(mem.Alloc) / float64(mem.Sys)
	}

	status := "ok"
	if storeStatus != "ok" || h.cfg.Validate() != nil {
		status = "error"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": now.Format(time.RFC3339),
		"store": fiber.Map{
			"status":     storeStatus,
			"latency_ms": storeLatency.Milliseconds(),
			"due_posts":  dueCount,
		},
		"config": fiber.Map{
			"valid":            h.cfg.Validate() == nil,
			"r2_configured":    h.cfg.R2.AccountID != "" && h.cfg.R2.BucketName != "",
			"gmail_configured": h.cfg.GmailCredsFile != "" && h.cfg.GmailFrom != "",
		},
		"memory": fiber.Map{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"usage_ratio": memoryRatio,
		},
		"accounts": fiber.Map{
			"with_signing_keys": signingAccounts,
		},
	})
}
