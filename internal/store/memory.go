package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sells-group/spendshield/internal/model"
)

// MemoryStore implements Store in process memory. Runs are kept as encoded
// JSON and expire after the retention TTL.
type MemoryStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemory creates a MemoryStore. A non-positive ttl keeps runs forever.
func NewMemory(ttl time.Duration) *MemoryStore {
	cleanup := ttl / 2
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &MemoryStore{cache: gocache.New(ttl, cleanup)}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Ping(context.Context) error    { return nil }

func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

func (s *MemoryStore) CreateRun(_ context.Context, input model.RunInput) (*model.Run, error) {
	run := model.NewRun(uuid.New().String(), input, time.Now().UTC())
	if err := s.put(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return s.load(runID)
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	all, err := s.matching(filter)
	if err != nil {
		return nil, err
	}

	runs := []model.Run{}
	if filter.Offset >= len(all) {
		return runs, nil
	}
	end := filter.Offset + filter.limit()
	if end > len(all) {
		end = len(all)
	}
	return append(runs, all[filter.Offset:end]...), nil
}

func (s *MemoryStore) CountRuns(_ context.Context, filter RunFilter) (int, error) {
	all, err := s.matching(filter)
	return len(all), err
}

func (s *MemoryStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	_, err := s.mutate(runID, func(r *model.Run) error {
		if r.Status.Terminal() {
			return model.ErrStageOrder
		}
		r.Status = status
		r.UpdatedAt = time.Now().UTC()
		return nil
	})
	return err
}

func (s *MemoryStore) AppendStage(_ context.Context, runID string, out model.StageOutput) (*model.Run, error) {
	return s.mutate(runID, func(r *model.Run) error { return r.Apply(out) })
}

func (s *MemoryStore) FailRun(_ context.Context, runID string, stage model.Stage, msg string) (*model.Run, error) {
	return s.mutate(runID, func(r *model.Run) error { return r.Fail(stage, msg) })
}

func (s *MemoryStore) mutate(runID string, fn func(r *model.Run) error) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load(runID)
	if err != nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	if err := s.put(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *MemoryStore) matching(filter RunFilter) ([]model.Run, error) {
	items := s.cache.Items()
	runs := make([]model.Run, 0, len(items))
	for _, item := range items {
		r, err := decodeRun(item.Object.([]byte))
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *MemoryStore) load(runID string) (*model.Run, error) {
	v, ok := s.cache.Get(runID)
	if !ok {
		return nil, notFound(runID)
	}
	return decodeRun(v.([]byte))
}

func (s *MemoryStore) put(r *model.Run) error {
	data, err := encodeRun(r)
	if err != nil {
		return err
	}
	s.cache.Set(r.ID, data, gocache.DefaultExpiration)
	return nil
}
