package service

import (
	"context"

	"github.com/Lunnius/Npstest/model"
)

// Ledger is the process record store.
type Ledger interface {
	// Insert creates a process row. Returns ErrDuplicateCode on a code clash.
	Insert(ctx context.Context, p *model.Process) error
	// Get resolves a process by internal id.
	Get(ctx context.Context, id string) (*model.Process, error)
	// GetByCode resolves a process by its human-readable code.
	GetByCode(ctx context.Context, code string) (*model.Process, error)
	// Update writes the mutable fields of p if the stored status still equals
	// expected, otherwise it returns ErrStatusConflict.
	Update(ctx context.Context, p *model.Process, expected model.Status) error

	// RecordExceptions appends items and writes p in one step, guarded by
	// expected like Update. On any error nothing is written.
	RecordExceptions(ctx context.Context, p *model.Process, expected model.Status, items []model.ExceptionItem) error
	ListExceptionItems(ctx context.Context, processID string) ([]model.ExceptionItem, error)

	// SaveSurvey stages the survey for a process, replacing any earlier one.
	SaveSurvey(ctx context.Context, s *model.SurveyResult) error
	// GetSurvey returns ErrSurveyNotStaged when no survey exists.
	GetSurvey(ctx context.Context, processID string) (*model.SurveyResult, error)

	// SaveAnswer appends a page answer to the client's log.
	SaveAnswer(ctx context.Context, a *model.PageAnswer) error
	// ListAnswers returns the client's answers, oldest first.
	ListAnswers(ctx context.Context, clientID string) ([]model.PageAnswer, error)
}
