package app

import (
	"time"

	"github.com/docvault/docvault-backend/internal/platform/envutil"
)

type Config struct {
	EmbeddingDim         int
	SearchCandidateLimit int
	ClaimLease           time.Duration
	JobRetention         time.Duration
	StuckThreshold       time.Duration
	CleanupInterval      time.Duration
	ChunkSize            int
	ChunkOverlap         int
	ListenAddr           string
	RedisAddr            string
	WorkerConcurrency    int
}

func LoadConfig() Config {
	return Config{
		EmbeddingDim:         envutil.Int("EMBEDDING_DIM", 1536),
		SearchCandidateLimit: envutil.Int("SEARCH_CANDIDATE_LIMIT", 1200),
		ClaimLease:           envutil.Duration("JOB_CLAIM_LEASE", 5*time.Minute),
		JobRetention:         envutil.Duration("JOB_RETENTION", 7*24*time.Hour),
		StuckThreshold:       envutil.Duration("JOB_STUCK_THRESHOLD", 30*time.Minute),
		CleanupInterval:      envutil.Duration("JOB_CLEANUP_INTERVAL", 1*time.Hour),
		ChunkSize:            envutil.Int("CHUNK_SIZE", 1000),
		ChunkOverlap:         envutil.Int("CHUNK_OVERLAP", 150),
		ListenAddr:           envutil.Str("LISTEN_ADDR", ":8080"),
		RedisAddr:            envutil.Str("REDIS_ADDR", ""),
		WorkerConcurrency:    envutil.Int("WORKER_CONCURRENCY", 4),
	}
}
