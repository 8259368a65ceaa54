package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"flintsim/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]memoryRun
	episodes    map[string][]model.EpisodeRecord
	scapes      map[string]model.ScapeSummary
	seq         int
}

type memoryRun struct {
	seq    int
	record model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.reset()
	s.initialized = true
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.initialized = true
	return nil
}

func (s *MemoryStore) reset() {
	s.runs = make(map[string]memoryRun)
	s.episodes = make(map[string][]model.EpisodeRecord)
	s.scapes = make(map[string]model.ScapeSummary)
	s.seq = 0
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if existing, ok := s.runs[run.ID]; ok {
		s.runs[run.ID] = memoryRun{seq: existing.seq, record: run}
		return nil
	}
	s.seq++
	s.runs[run.ID] = memoryRun{seq: s.seq, record: run}
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run.record, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]memoryRun, 0, len(s.runs))
	for _, run := range s.runs {
		entries = append(entries, run)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].record.CreatedAtUTC != entries[j].record.CreatedAtUTC {
			return entries[i].record.CreatedAtUTC > entries[j].record.CreatedAtUTC
		}
		return entries[i].seq > entries[j].seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]model.RunRecord, len(entries))
	for i, entry := range entries {
		out[i] = entry.record
	}
	return out, nil
}

func (s *MemoryStore) SaveEpisodes(_ context.Context, runID string, episodes []model.EpisodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	copied := make([]model.EpisodeRecord, len(episodes))
	copy(copied, episodes)
	sort.SliceStable(copied, func(i, j int) bool { return copied[i].Index < copied[j].Index })
	s.episodes[runID] = copied
	return nil
}

func (s *MemoryStore) GetEpisodes(_ context.Context, runID string) ([]model.EpisodeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	episodes, ok := s.episodes[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.EpisodeRecord, len(episodes))
	copy(copied, episodes)
	return copied, true, nil
}

func (s *MemoryStore) SaveScapeSummary(_ context.Context, summary model.ScapeSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.scapes[summary.Name] = summary
	return nil
}

func (s *MemoryStore) GetScapeSummary(_ context.Context, name string) (model.ScapeSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.scapes[name]
	return summary, ok, nil
}

var errNotInitialized = errors.New("store is not initialized")
