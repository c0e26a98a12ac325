// Package queue is the Job Queue: a persistent FIFO of submission ids
// awaiting processing, with a worker registry and failed-job counter,
// backed by Redis via github.com/redis/go-redis/v9.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WorkerState is the state of a registered worker as reported by
// ListWorkers.
type WorkerState string

const (
	WorkerIdle WorkerState = "idle"
	WorkerBusy WorkerState = "busy"
)

// Worker is one entry of ListWorkers.
type Worker struct {
	Name  string      `json:"name"`
	State WorkerState `json:"state"`
}

// Queue is the Job Queue: FIFO submission ids, a worker registry, and
// a failed-job counter, all backed by Redis.
type Queue struct {
	client     *redis.Client
	queueKey   string
	workersKey string
	failedKey  string
}

// Connect dials Redis at addr and verifies the connection with a
// bounded Ping before returning.
func Connect(addr, queueKey, workersKey, failedKey string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Queue{
		client:     client,
		queueKey:   queueKey,
		workersKey: workersKey,
		failedKey:  failedKey,
	}, nil
}

func (q *Queue) Close() error { return q.client.Close() }

// Enqueue appends id to the FIFO. Submission ids are pushed with RPUSH
// and popped with (B)LPOP so earlier enqueues are dequeued first.
func (q *Queue) Enqueue(ctx context.Context, id string) error {
	return q.client.RPush(ctx, q.queueKey, id).Err()
}

// Dequeue blocks up to timeout for the next id. A zero result with no
// error means the timeout elapsed with nothing queued — callers loop
// on this so they periodically wake and check for shutdown.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, q.queueKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueKey).Result()
}

func (q *Queue) FailedCount(ctx context.Context) (int64, error) {
	return q.client.Get(ctx, q.failedKey).Int64()
}

// IncrFailed records a worker crash mid-PROCESSING.
func (q *Queue) IncrFailed(ctx context.Context) error {
	return q.client.Incr(ctx, q.failedKey).Err()
}

func (q *Queue) RegisterWorker(ctx context.Context, name string) error {
	return q.client.HSet(ctx, q.workersKey, name, string(WorkerIdle)).Err()
}

func (q *Queue) UnregisterWorker(ctx context.Context, name string) error {
	return q.client.HDel(ctx, q.workersKey, name).Err()
}

// SetWorkerState records name's current state in the registry.
func (q *Queue) SetWorkerState(ctx context.Context, name string, state WorkerState) error {
	return q.client.HSet(ctx, q.workersKey, name, string(state)).Err()
}

func (q *Queue) ListWorkers(ctx context.Context) ([]Worker, error) {
	raw, err := q.client.HGetAll(ctx, q.workersKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Worker, 0, len(raw))
	for name, state := range raw {
		out = append(out, Worker{Name: name, State: WorkerState(state)})
	}
	return out, nil
}

// Ping is used by the /health/redis endpoint.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
