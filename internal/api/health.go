package api

import (
	"context"
	"net/http"
	"time"

	"github.com/klpod221/kode-judge/internal/queue"
)

// QueuePinger is the subset of *queue.Queue the health checks need,
// narrowed to an interface so tests can substitute a fake rather than
// require a live Redis.
type QueuePinger interface {
	Ping(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
	FailedCount(ctx context.Context) (int64, error)
	ListWorkers(ctx context.Context) ([]queue.Worker, error)
}

// HealthChecker backs /health/*, reporting database, queue, and worker
// pool status individually rather than a single pass/fail flag.
type HealthChecker struct {
	Ping  func(ctx context.Context) error // database ping
	Queue QueuePinger
}

type componentStatus struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

type workersStatus struct {
	QueueName   string `json:"queue_name"`
	QueueSize   int64  `json:"queue_size"`
	WorkersTotal int   `json:"workers_total"`
	WorkersBusy  int   `json:"workers_busy"`
	WorkersIdle  int   `json:"workers_idle"`
	FailedJobs  int64  `json:"failed_jobs"`
	Status      string `json:"status"`
}

func (h *HealthChecker) database(ctx context.Context) componentStatus {
	start := time.Now()
	if err := h.Ping(ctx); err != nil {
		return componentStatus{Status: "error", Error: err.Error()}
	}
	return componentStatus{Status: "ok", ResponseTime: time.Since(start).String()}
}

func (h *HealthChecker) redis(ctx context.Context) componentStatus {
	start := time.Now()
	if err := h.Queue.Ping(ctx); err != nil {
		return componentStatus{Status: "error", Error: err.Error()}
	}
	return componentStatus{Status: "ok", ResponseTime: time.Since(start).String()}
}

func (h *HealthChecker) workers(ctx context.Context, queueName string) workersStatus {
	size, _ := h.Queue.Size(ctx)
	failed, _ := h.Queue.FailedCount(ctx)
	workers, _ := h.Queue.ListWorkers(ctx)

	var busy, idle int
	for _, w := range workers {
		if w.State == queue.WorkerBusy {
			busy++
		} else {
			idle++
		}
	}

	status := "ok"
	if len(workers) == 0 {
		status = "degraded"
	}

	return workersStatus{
		QueueName:    queueName,
		QueueSize:    size,
		WorkersTotal: len(workers),
		WorkersBusy:  busy,
		WorkersIdle:  idle,
		FailedJobs:   failed,
		Status:       status,
	}
}

// Ping handles GET /health/ping.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "pong"})
}

// HealthAll handles GET /health/.
func (h *Handler) HealthAll(w http.ResponseWriter, r *http.Request) {
	db := h.Health.database(r.Context())
	redis := h.Health.redis(r.Context())
	workers := h.Health.workers(r.Context(), h.queueName)

	status := "ok"
	if db.Status != "ok" || redis.Status != "ok" {
		status = "error"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"database": db,
		"redis":    redis,
		"workers":  workers,
	})
}

func (h *Handler) HealthDatabase(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Health.database(r.Context()))
}

func (h *Handler) HealthRedis(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Health.redis(r.Context()))
}

func (h *Handler) HealthWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Health.workers(r.Context(), h.queueName))
}

func (h *Handler) HealthInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "kode-judge v1.0.0"})
}
