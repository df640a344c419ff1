package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Lunnius/Npstest/model"
	"github.com/Lunnius/Npstest/pkg/logger"
)

// AnswerRequest is one page of the client questionnaire
type AnswerRequest struct {
	ClientID string          `json:"cliente_id"`
	Page     string          `json:"pagina"`
	Data     json.RawMessage `json:"dados"`
}

// SaveAnswer appends a questionnaire page to the client's answer log.
// Answers are independent of the process lifecycle.
func (s *ProcessService) SaveAnswer(ctx context.Context, req AnswerRequest) (*model.PageAnswer, error) {
	answer := &model.PageAnswer{
		ClientID:  req.ClientID,
		Page:      req.Page,
		Data:      req.Data,
		CreatedAt: s.clock(),
	}
	if err := answer.Validate(); err != nil {
		return nil, err
	}

	if err := s.ledger.SaveAnswer(ctx, answer); err != nil {
		return nil, err
	}

	logger.Info(ctx, "answer saved", "client_id", answer.ClientID, "page", answer.Page, "size", len(answer.Data))
	return answer, nil
}

// ListAnswers returns the answer log of a client.
func (s *ProcessService) ListAnswers(ctx context.Context, clientID string) ([]model.PageAnswer, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, &model.ValidationError{Field: "cliente_id", Message: "client id is required"}
	}
	return s.ledger.ListAnswers(ctx, clientID)
}
