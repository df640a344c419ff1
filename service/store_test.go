package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lunnius/Npstest/model"
)

func newLedgerProcess(id, code string) *model.Process {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	return &model.Process{
		ID:             id,
		Code:           code,
		Status:         model.StatusTermoGenerated,
		ClientName:     "Maria",
		DocumentNumber: "12345678909",
		DeliveryStatus: "concluido",
		TermoURL:       "memory://artifacts/" + id + "/termo/a.pdf",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryLedgerInsertAndGet(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	p := newLedgerProcess("id-1", "MARIA_909_2026-10-18_AAAA")
	if err := ledger.Insert(ctx, p); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	byID, err := ledger.Get(ctx, "id-1")
	if err != nil {
		t.Fatalf("Failed to get by id: %v", err)
	}
	if byID.Code != p.Code {
		t.Errorf("Expected code %s, got %s", p.Code, byID.Code)
	}

	byCode, err := ledger.GetByCode(ctx, p.Code)
	if err != nil {
		t.Fatalf("Failed to get by code: %v", err)
	}
	if byCode.ID != "id-1" {
		t.Errorf("Expected id id-1, got %s", byCode.ID)
	}

	// returned values are copies
	byCode.Status = model.StatusFinalized
	again, _ := ledger.Get(ctx, "id-1")
	if again.Status != model.StatusTermoGenerated {
		t.Errorf("Expected ledger copy to be unchanged, got %s", again.Status)
	}

	if _, err := ledger.Get(ctx, "missing"); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("Expected ErrProcessNotFound, got %v", err)
	}
	if _, err := ledger.GetByCode(ctx, "missing"); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("Expected ErrProcessNotFound, got %v", err)
	}
	if ledger.Count() != 1 {
		t.Errorf("Expected count 1, got %d", ledger.Count())
	}
}

func TestMemoryLedgerDuplicateCode(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	if err := ledger.Insert(ctx, newLedgerProcess("id-1", "SAME")); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	err := ledger.Insert(ctx, newLedgerProcess("id-2", "SAME"))
	if !errors.Is(err, ErrDuplicateCode) {
		t.Errorf("Expected ErrDuplicateCode, got %v", err)
	}
}

func TestMemoryLedgerConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	p := newLedgerProcess("id-1", "CODE")
	if err := ledger.Insert(ctx, p); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	next := p.Clone()
	next.ExceptionsURL = "memory://artifacts/id-1/ressalvas/b.pdf"
	next.Code = "TAMPERED"
	next.CreatedAt = next.CreatedAt.Add(time.Hour)
	if err := next.Transition(model.StatusExceptionsRecorded, next.CreatedAt.Add(time.Minute)); err != nil {
		t.Fatalf("Failed to transition: %v", err)
	}

	if err := ledger.Update(ctx, next, model.StatusTermoGenerated); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	stored, _ := ledger.Get(ctx, "id-1")
	if stored.Status != model.StatusExceptionsRecorded {
		t.Errorf("Expected status %s, got %s", model.StatusExceptionsRecorded, stored.Status)
	}
	if stored.Code != "CODE" {
		t.Errorf("Expected code to be immutable, got %s", stored.Code)
	}
	if !stored.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("Expected creation time to be immutable, got %v", stored.CreatedAt)
	}

	// same expected status again now conflicts
	err := ledger.Update(ctx, next, model.StatusTermoGenerated)
	if !errors.Is(err, ErrStatusConflict) {
		t.Errorf("Expected ErrStatusConflict, got %v", err)
	}

	missing := newLedgerProcess("nope", "NOPE")
	if err := ledger.Update(ctx, missing, model.StatusTermoGenerated); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("Expected ErrProcessNotFound, got %v", err)
	}
}

func recorded(p *model.Process) *model.Process {
	next := p.Clone()
	next.ExceptionsURL = "memory://artifacts/" + p.ID + "/ressalvas/b.pdf"
	next.Status = model.StatusExceptionsRecorded
	return next
}

func TestMemoryLedgerRecordExceptions(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	p := newLedgerProcess("id-1", "CODE")
	if err := ledger.Insert(ctx, p); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	items := []model.ExceptionItem{
		{ProcessID: "id-1", Label: "porta", CreatedAt: base.Add(time.Second)},
		{ProcessID: "id-1", Label: "bancada", CreatedAt: base},
	}
	if err := ledger.RecordExceptions(ctx, recorded(p), model.StatusTermoGenerated, items); err != nil {
		t.Fatalf("Failed to record exceptions: %v", err)
	}

	got, err := ledger.ListExceptionItems(ctx, "id-1")
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if len(got) != 2 || got[0].Label != "bancada" || got[1].Label != "porta" {
		t.Errorf("Expected items ordered by creation, got %+v", got)
	}
	stored, _ := ledger.Get(ctx, "id-1")
	if stored.Status != model.StatusExceptionsRecorded {
		t.Errorf("Expected status %s, got %s", model.StatusExceptionsRecorded, stored.Status)
	}

	empty, err := ledger.ListExceptionItems(ctx, "other")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected no items, got %v (err %v)", empty, err)
	}
}

func TestMemoryLedgerRecordExceptionsWritesNothingOnFailure(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	p := newLedgerProcess("id-1", "CODE")
	if err := ledger.Insert(ctx, p); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	items := []model.ExceptionItem{{ProcessID: "id-1", Label: "porta"}}

	tests := []struct {
		name     string
		process  *model.Process
		expected model.Status
		items    []model.ExceptionItem
		target   error
	}{
		{"stale status", recorded(p), model.StatusCreated, items, ErrStatusConflict},
		{"unknown process", recorded(newLedgerProcess("nope", "NOPE")), model.StatusTermoGenerated, nil, ErrProcessNotFound},
		{"item of another process", recorded(p), model.StatusTermoGenerated, []model.ExceptionItem{{ProcessID: "other", Label: "x"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.RecordExceptions(ctx, tt.process, tt.expected, tt.items)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}

			listed, _ := ledger.ListExceptionItems(ctx, "id-1")
			if len(listed) != 0 {
				t.Errorf("Expected no items after a failed write, got %d", len(listed))
			}
			stored, _ := ledger.Get(ctx, "id-1")
			if stored.Status != model.StatusTermoGenerated {
				t.Errorf("Expected status unchanged, got %s", stored.Status)
			}
		})
	}
}

func TestMemoryLedgerSurvey(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	if err := ledger.Insert(ctx, newLedgerProcess("id-1", "CODE")); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	if _, err := ledger.GetSurvey(ctx, "id-1"); !errors.Is(err, ErrSurveyNotStaged) {
		t.Errorf("Expected ErrSurveyNotStaged, got %v", err)
	}

	if err := ledger.SaveSurvey(ctx, &model.SurveyResult{ProcessID: "id-1", Score: 6}); err != nil {
		t.Fatalf("Failed to save survey: %v", err)
	}
	if err := ledger.SaveSurvey(ctx, &model.SurveyResult{ProcessID: "id-1", Score: 9}); err != nil {
		t.Fatalf("Failed to replace survey: %v", err)
	}

	s, err := ledger.GetSurvey(ctx, "id-1")
	if err != nil {
		t.Fatalf("Failed to get survey: %v", err)
	}
	if s.Score != 9 {
		t.Errorf("Expected latest score 9, got %d", s.Score)
	}

	if err := ledger.SaveSurvey(ctx, &model.SurveyResult{ProcessID: "missing"}); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("Expected ErrProcessNotFound, got %v", err)
	}
}

func TestMemoryArtifactStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryArtifactStore("memory://artifacts/")

	pdf := []byte("%PDF-1.4\n%test\n")
	url, err := store.Store(ctx, pdf, "/id-1/termo/")
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if !strings.HasPrefix(url, "memory://artifacts/id-1/termo/") || !strings.HasSuffix(url, ".pdf") {
		t.Errorf("Unexpected url %s", url)
	}

	got, err := store.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if !bytes.Equal(got, pdf) {
		t.Error("Fetched bytes differ from stored bytes")
	}

	// stored copy is independent of the caller's slice
	pdf[0] = 'X'
	got, _ = store.Fetch(ctx, url)
	if got[0] != '%' {
		t.Error("Expected store to keep its own copy")
	}

	signed, err := store.SignedURL(ctx, url)
	if err != nil || signed != url {
		t.Errorf("Expected signed url %s, got %s (err %v)", url, signed, err)
	}

	second, err := store.Store(ctx, pdf, "id-1/termo")
	if err != nil {
		t.Fatalf("Failed to store second object: %v", err)
	}
	if second == url {
		t.Error("Expected a fresh object name per write")
	}
	if store.Writes() != 2 {
		t.Errorf("Expected 2 writes, got %d", store.Writes())
	}

	store.Delete(url)
	if _, err := store.Fetch(ctx, url); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Expected ErrArtifactNotFound, got %v", err)
	}
	if _, err := store.SignedURL(ctx, url); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Expected ErrArtifactNotFound, got %v", err)
	}
	if _, err := store.Fetch(ctx, "https://elsewhere/x.pdf"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Expected ErrArtifactNotFound, got %v", err)
	}
}

func TestMemoryArtifactStoreCancelledContext(t *testing.T) {
	store := NewMemoryArtifactStore("memory://artifacts")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Store(ctx, []byte("%PDF-1.4"), "id-1/final")
	var swErr *StorageWriteFailedError
	if !errors.As(err, &swErr) {
		t.Fatalf("Expected StorageWriteFailedError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected wrapped context.Canceled, got %v", err)
	}
	if store.Writes() != 0 {
		t.Errorf("Expected no writes, got %d", store.Writes())
	}
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		wantExt     string
		wantContent string
	}{
		{"pdf", []byte("%PDF-1.7\n"), ".pdf", "application/pdf"},
		{"png", []byte("\x89PNG\r\n\x1a\n0000"), ".png", "image/png"},
		{"jpeg", []byte("\xff\xd8\xff\xe0"), ".jpg", "image/jpeg"},
		{"unknown", []byte{0x00, 0x01, 0x02}, ".bin", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, contentType := objectName("proc/termo", tt.data)
			if !strings.HasPrefix(name, "proc/termo/") || !strings.HasSuffix(name, tt.wantExt) {
				t.Errorf("Unexpected object name %s", name)
			}
			if contentType != tt.wantContent {
				t.Errorf("Expected content type %s, got %s", tt.wantContent, contentType)
			}
		})
	}
}

func TestKeyedMutex(t *testing.T) {
	locks := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("process-1")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("Expected at most one holder, saw %d", maxSeen)
	}
	if locks.size() != 0 {
		t.Errorf("Expected lock entries to be released, got %d", locks.size())
	}

	// different keys do not block each other
	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Lock on another key blocked")
	}
	unlockA()
}
