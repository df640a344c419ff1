package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Lunnius/Npstest/model"
)

// MemoryLedger is an in-memory Ledger used for development and tests.
// Data is lost on restart; production runs against PostgresLedger.
type MemoryLedger struct {
	mu        sync.RWMutex
	processes map[string]*model.Process
	byCode    map[string]string
	items     map[string][]model.ExceptionItem
	surveys   map[string]*model.SurveyResult
	answers   map[string][]model.PageAnswer
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	slog.Info("memory ledger initialized")
	return &MemoryLedger{
		processes: make(map[string]*model.Process),
		byCode:    make(map[string]string),
		items:     make(map[string][]model.ExceptionItem),
		surveys:   make(map[string]*model.SurveyResult),
		answers:   make(map[string][]model.PageAnswer),
	}
}

func (s *MemoryLedger) Insert(ctx context.Context, p *model.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[p.Code]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, p.Code)
	}
	if _, exists := s.processes[p.ID]; exists {
		return fmt.Errorf("process id %s already exists", p.ID)
	}

	s.processes[p.ID] = p.Clone()
	s.byCode[p.Code] = p.ID
	return nil
}

func (s *MemoryLedger) Get(ctx context.Context, id string) (*model.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.processes[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrProcessNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryLedger) GetByCode(ctx context.Context, code string) (*model.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, code)
	}
	return s.processes[id].Clone(), nil
}

func (s *MemoryLedger) Update(ctx context.Context, p *model.Process, expected model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateLocked(p, expected)
}

func (s *MemoryLedger) RecordExceptions(ctx context.Context, p *model.Process, expected model.Status, items []model.ExceptionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if item.ProcessID != p.ID {
			return fmt.Errorf("exception item %q belongs to process %s, not %s", item.Label, item.ProcessID, p.ID)
		}
	}
	if err := s.updateLocked(p, expected); err != nil {
		return err
	}
	s.items[p.ID] = append(s.items[p.ID], items...)
	return nil
}

// updateLocked requires s.mu held for writing
func (s *MemoryLedger) updateLocked(p *model.Process, expected model.Status) error {
	current, ok := s.processes[p.ID]
	if !ok {
		return fmt.Errorf("%w: id %s", ErrProcessNotFound, p.ID)
	}
	if current.Status != expected {
		return fmt.Errorf("%w: expected %s, found %s", ErrStatusConflict, expected, current.Status)
	}

	// id, code and creation time never change
	updated := p.Clone()
	updated.Code = current.Code
	updated.CreatedAt = current.CreatedAt
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = time.Now()
	}
	s.processes[p.ID] = updated
	return nil
}

func (s *MemoryLedger) ListExceptionItems(ctx context.Context, processID string) ([]model.ExceptionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := append([]model.ExceptionItem(nil), s.items[processID]...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryLedger) SaveSurvey(ctx context.Context, survey *model.SurveyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processes[survey.ProcessID]; !ok {
		return fmt.Errorf("%w: id %s", ErrProcessNotFound, survey.ProcessID)
	}
	cp := *survey
	s.surveys[survey.ProcessID] = &cp
	return nil
}

func (s *MemoryLedger) GetSurvey(ctx context.Context, processID string) (*model.SurveyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	survey, ok := s.surveys[processID]
	if !ok {
		return nil, ErrSurveyNotStaged
	}
	cp := *survey
	return &cp, nil
}

func (s *MemoryLedger) SaveAnswer(ctx context.Context, a *model.PageAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	s.answers[a.ClientID] = append(s.answers[a.ClientID], cp)
	return nil
}

func (s *MemoryLedger) ListAnswers(ctx context.Context, clientID string) ([]model.PageAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.PageAnswer(nil), s.answers[clientID]...), nil
}

// Count returns the number of processes in the ledger
func (s *MemoryLedger) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}
