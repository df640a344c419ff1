package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lunnius/Npstest/model"
	"github.com/Lunnius/Npstest/pkg/codec"
	"github.com/Lunnius/Npstest/pkg/document"
	"github.com/Lunnius/Npstest/pkg/logger"
)

// Finalize merges termo, ressalvas and the staged survey into the final
// document and closes the process. Preconditions are checked before any
// write: a failure leaves the store and the ledger untouched.
func (s *ProcessService) Finalize(ctx context.Context, code string) (*model.Process, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &model.ValidationError{Field: "processo_id", Message: "process code is required"}
	}

	ctx = logger.WithProcessCode(ctx, code)
	p, unlock, err := s.lockProcess(ctx, code)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if p.Status == model.StatusFinalized {
		return nil, ErrAlreadyFinalized
	}

	termo, err := s.requireArtifact(ctx, p.TermoURL, ArtifactTermo)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.requireArtifact(ctx, p.ExceptionsURL, ArtifactExceptions)
	if err != nil {
		return nil, err
	}
	survey, err := s.ledger.GetSurvey(ctx, p.ID)
	if err != nil {
		if errors.Is(err, ErrSurveyNotStaged) {
			return nil, &ArtifactMissingError{Artifact: ArtifactSurvey}
		}
		return nil, err
	}
	if !p.Status.CanTransitionTo(model.StatusFinalized) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrIllegalTransition, p.Status, model.StatusFinalized)
	}

	surveyDoc, err := s.renderer.RenderSurvey(surveyInput(p.Code, survey))
	if err != nil {
		return nil, err
	}

	merged, err := document.Merge(
		document.Source{Name: ArtifactTermo, Data: termo},
		document.Source{Name: ArtifactExceptions, Data: exceptions},
		document.Source{Name: ArtifactSurvey, Data: surveyDoc},
	)
	if err != nil {
		return nil, err
	}

	url, err := s.upload(ctx, codec.Encode(merged), p.ID+"/final")
	if err != nil {
		return nil, err
	}

	expected := p.Status
	p.FinalURL = url
	if err := p.Transition(model.StatusFinalized, s.clock()); err != nil {
		return nil, err
	}
	if err := s.ledger.Update(ctx, p, expected); err != nil {
		logger.Error(ctx, "failed to mark process finalized, final document is orphaned",
			"process_id", p.ID, "url", url, "error", err)
		return nil, err
	}

	logger.Info(ctx, "process finalized", "process_id", p.ID, "url", url, "size", len(merged))
	return p, nil
}

// FinalizeWithSurvey stages the survey and finalizes in one call.
func (s *ProcessService) FinalizeWithSurvey(ctx context.Context, req SurveyRequest) (*model.Process, error) {
	if _, err := s.StageSurvey(ctx, req); err != nil {
		return nil, err
	}
	return s.Finalize(ctx, req.ProcessCode)
}

// requireArtifact fetches a stage document, reporting a missing URL or
// object as ArtifactMissingError named after the stage.
func (s *ProcessService) requireArtifact(ctx context.Context, url, artifact string) ([]byte, error) {
	if url == "" {
		return nil, &ArtifactMissingError{Artifact: artifact}
	}
	data, err := s.store.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			logger.Warn(ctx, "stage document not found in store", "artifact", artifact, "url", url)
			return nil, &ArtifactMissingError{Artifact: artifact}
		}
		return nil, fmt.Errorf("fetch %s: %w", artifact, err)
	}
	return data, nil
}

func surveyInput(code string, survey *model.SurveyResult) document.SurveyInput {
	in := document.SurveyInput{ProcessCode: code, Score: survey.Score}
	for _, e := range survey.Ratings.Entries {
		in.Ratings = append(in.Ratings, document.Field{Label: e.Key, Value: e.Text()})
	}
	for _, e := range survey.Feedback.Entries {
		in.Feedback = append(in.Feedback, document.Field{Label: e.Key, Value: e.Text()})
	}
	return in
}
