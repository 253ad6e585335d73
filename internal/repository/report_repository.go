package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

const reportKeyPrefix = "rutas:import:"

// ReportRepository keeps import reports for later retrieval. With a Redis
// client they are shared and expire after the TTL; without one they live in
// process memory with the same expiry.
type ReportRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]localReport
	nowFn func() time.Time
}

type localReport struct {
	payload []byte
	expires time.Time
}

// NewReportRepository constructs the store. client may be nil.
func NewReportRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReportRepository {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportRepository{
		client: client,
		ttl:    ttl,
		logger: logger,
		local:  make(map[string]localReport),
		nowFn:  time.Now,
	}
}

// Save stores or replaces the report under its id.
func (r *ReportRepository) Save(ctx context.Context, report *models.ImportReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal import report %s: %w", report.ID, err)
	}

	if r.client == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.evictLocked()
		r.local[report.ID] = localReport{payload: payload, expires: r.nowFn().Add(r.ttl)}
		return nil
	}

	if err := r.client.Set(ctx, reportKeyPrefix+report.ID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", report.ID, err)
	}
	return nil
}

// Get loads a report. Unknown or expired ids yield appErrors.ErrCacheMiss.
func (r *ReportRepository) Get(ctx context.Context, id string) (*models.ImportReport, error) {
	var raw []byte
	if r.client == nil {
		r.mu.Lock()
		r.evictLocked()
		entry, ok := r.local[id]
		r.mu.Unlock()
		if !ok {
			return nil, appErrors.ErrCacheMiss
		}
		raw = entry.payload
	} else {
		data, err := r.client.Get(ctx, reportKeyPrefix+id).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, appErrors.ErrCacheMiss
			}
			return nil, fmt.Errorf("redis get %s: %w", id, err)
		}
		raw = data
	}

	var report models.ImportReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal import report %s: %w", id, err)
	}
	return &report, nil
}

// Close releases the underlying Redis connection if present.
func (r *ReportRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *ReportRepository) evictLocked() {
	now := r.nowFn()
	for id, entry := range r.local {
		if now.After(entry.expires) {
			delete(r.local, id)
		}
	}
}
