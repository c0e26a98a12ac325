package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.WorkerConcurrency != 4 {
		t.Errorf("expected default worker_concurrency=4, got %d", cfg.WorkerConcurrency)
	}
	if cfg.Sandbox.CPUTimeLimit != 2.0 {
		t.Errorf("expected default cpu_time_limit=2.0, got %f", cfg.Sandbox.CPUTimeLimit)
	}
	if cfg.Sandbox.MemoryLimit != 128000 {
		t.Errorf("expected default memory_limit=128000, got %d", cfg.Sandbox.MemoryLimit)
	}
	if cfg.Redis.Prefix != "judge" {
		t.Errorf("expected default redis prefix judge, got %q", cfg.Redis.Prefix)
	}
	if cfg.GetLogLevel().String() != "info" {
		t.Errorf("expected default log level info, got %s", cfg.GetLogLevel())
	}
}

func TestLoadHonorsLegacyEnvNames(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("SANDBOX_MEMORY_LIMIT", "256000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("expected POSTGRES_HOST to override postgres.host, got %q", cfg.Postgres.Host)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Errorf("expected WORKER_CONCURRENCY to override worker_concurrency, got %d", cfg.WorkerConcurrency)
	}
	if cfg.Sandbox.MemoryLimit != 256000 {
		t.Errorf("expected SANDBOX_MEMORY_LIMIT to override sandbox.memory_limit, got %d", cfg.Sandbox.MemoryLimit)
	}
}

func TestLoadRejectsInvalidWorkerConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject worker_concurrency=0")
	}
}

func TestDSNIncludesAllFields(t *testing.T) {
	p := Postgres{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	dsn := p.DSN()
	for _, want := range []string{"host=h", "port=5432", "user=u", "password=p", "dbname=d", "sslmode=disable"} {
		if !containsSubstring(dsn, want) {
			t.Errorf("DSN() = %q, missing %q", dsn, want)
		}
	}
}

func TestRedisDerivedKeys(t *testing.T) {
	r := Redis{Host: "localhost", Port: 6379, Prefix: "judge"}
	if r.Addr() != "localhost:6379" {
		t.Errorf("Addr() = %q", r.Addr())
	}
	if r.QueueName() != "judge_submission_queue" {
		t.Errorf("QueueName() = %q", r.QueueName())
	}
	if r.WorkersKey() != "judge_workers" {
		t.Errorf("WorkersKey() = %q", r.WorkersKey())
	}
	if r.FailedKey() != "judge_failed_jobs" {
		t.Errorf("FailedKey() = %q", r.FailedKey())
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
