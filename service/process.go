package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lunnius/Npstest/model"
	"github.com/Lunnius/Npstest/pkg/codec"
	"github.com/Lunnius/Npstest/pkg/document"
	"github.com/Lunnius/Npstest/pkg/logger"
	"github.com/google/uuid"
)

const maxCodeAttempts = 3

// TermoRequest is the signed delivery acknowledgement
type TermoRequest struct {
	DocumentNumber string       `json:"cpf"`
	ClientName     string       `json:"nome_cliente"`
	DeliveryStatus string       `json:"status_entrega"`
	Image          string       `json:"imagem"`
	Images         []TermoImage `json:"imagens"`
}

// TermoImage is an extra evidence photo sent with the termo
type TermoImage struct {
	Item  string `json:"item"`
	Image string `json:"imagem_base64"`
}

// ExceptionsRequest records the ressalvas of a process
type ExceptionsRequest struct {
	ProcessCode string           `json:"processo_id"`
	Responsible string           `json:"responsavel"`
	Notes       string           `json:"observacoes"`
	Items       []ExceptionInput `json:"imagens"`
}

// ExceptionInput is one reported item
type ExceptionInput struct {
	Label       string      `json:"item"`
	Description string      `json:"descricao"`
	DueDate     *model.Date `json:"prazo"`
	Approved    bool        `json:"aprovacao"`
	Image       string      `json:"imagem_base64"`
}

// SurveyRequest stages the NPS survey of a process
type SurveyRequest struct {
	ProcessCode string           `json:"processo_id"`
	Score       *int             `json:"nps"`
	Ratings     model.OrderedMap `json:"avaliacoes"`
	Feedback    model.OrderedMap `json:"feedback"`
}

// ProcessView is a process with its recorded exception items
type ProcessView struct {
	*model.Process
	Items []model.ExceptionItem `json:"ressalvas"`
}

// CodeGenerator builds the human-readable code of a new process
type CodeGenerator func(clientName, documentNumber string, day time.Time) string

// ProcessService drives a process through its lifecycle
type ProcessService struct {
	ledger   Ledger
	store    ArtifactStore
	renderer *document.Renderer
	locks    *keyedMutex
	clock    func() time.Time
	newCode  CodeGenerator
}

// Option configures a ProcessService
type Option func(*ProcessService)

// WithClock replaces the time source used for ledger timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *ProcessService) {
		s.clock = clock
	}
}

// WithCodeGenerator replaces the human code generator.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *ProcessService) {
		s.newCode = gen
	}
}

func NewProcessService(ledger Ledger, store ArtifactStore, renderer *document.Renderer, opts ...Option) *ProcessService {
	s := &ProcessService{
		ledger:   ledger,
		store:    store,
		renderer: renderer,
		locks:    newKeyedMutex(),
		clock:    time.Now,
		newCode: func(name, doc string, day time.Time) string {
			return model.GenerateCode(name, doc, day, nil)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTermo validates the termo, stores its document and creates the
// process row in TERMO_GENERATED. Nothing is written when validation fails.
func (s *ProcessService) CreateTermo(ctx context.Context, req TermoRequest) (*model.Process, error) {
	documentNumber, err := model.NormalizeDocumentNumber(req.DocumentNumber)
	if err != nil {
		return nil, err
	}
	clientName := strings.TrimSpace(req.ClientName)
	if clientName == "" {
		return nil, &model.ValidationError{Field: "nome_cliente", Message: "client name is required"}
	}
	if !strings.Contains(req.Image, ",") {
		return nil, &model.ValidationError{Field: "imagem", Message: "image payload has no header"}
	}
	if err := model.ValidateDeliveryStatus(req.DeliveryStatus); err != nil {
		return nil, err
	}

	now := s.clock()
	p := &model.Process{
		ID:             uuid.New().String(),
		Status:         model.StatusCreated,
		ClientName:     clientName,
		DocumentNumber: documentNumber,
		DeliveryStatus: req.DeliveryStatus,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	doc, err := s.renderer.RenderTermo(document.TermoInput{Image: req.Image})
	if err != nil {
		return nil, err
	}

	p.TermoURL, err = s.upload(ctx, codec.Encode(doc), p.ID+"/termo")
	if err != nil {
		return nil, err
	}
	p.TermoImages = s.storeTermoImages(ctx, p.ID, req.Images)

	if err := p.Transition(model.StatusTermoGenerated, now); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		p.Code = s.newCode(clientName, documentNumber, now)
		err = s.ledger.Insert(ctx, p)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateCode) || attempt == maxCodeAttempts {
			logger.Error(ctx, "failed to insert process, termo document is orphaned",
				"process_id", p.ID, "termo_url", p.TermoURL, "error", err)
			return nil, err
		}
		logger.Warn(ctx, "process code collision, regenerating", "code", p.Code, "attempt", attempt)
	}

	logger.Info(logger.WithProcessCode(ctx, p.Code), "termo generated",
		"process_id", p.ID, "termo_url", p.TermoURL, "images", len(p.TermoImages))
	return p.Clone(), nil
}

// storeTermoImages uploads the optional evidence photos. A bad or failed
// image is logged and skipped; it never fails the termo.
func (s *ProcessService) storeTermoImages(ctx context.Context, processID string, images []TermoImage) []model.ItemImage {
	var stored []model.ItemImage
	for _, img := range images {
		data, err := codec.Decode(img.Image)
		if err != nil {
			logger.Warn(ctx, "skipping termo image", "item", img.Item, "error", err)
			continue
		}
		url, err := s.store.Store(ctx, data, processID+"/termo/imagens")
		if err != nil {
			logger.Warn(ctx, "failed to store termo image", "item", img.Item, "error", err)
			continue
		}
		stored = append(stored, model.ItemImage{Item: img.Item, URL: url})
	}
	return stored
}

// RecordExceptions renders and stores the ressalvas report, records its
// items and moves the process to EXCEPTIONS_RECORDED. Recording again
// replaces the report.
func (s *ProcessService) RecordExceptions(ctx context.Context, req ExceptionsRequest) (*model.Process, error) {
	code := strings.TrimSpace(req.ProcessCode)
	if code == "" {
		return nil, &model.ValidationError{Field: "processo_id", Message: "process code is required"}
	}
	responsible := strings.TrimSpace(req.Responsible)
	if responsible == "" {
		return nil, &model.ValidationError{Field: "responsavel", Message: "responsible is required"}
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.Label) == "" {
			return nil, &model.ValidationError{Field: fmt.Sprintf("imagens[%d].item", i), Message: "item label is required"}
		}
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
	if !p.Status.CanTransitionTo(model.StatusExceptionsRecorded) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrIllegalTransition, p.Status, model.StatusExceptionsRecorded)
	}

	entries := make([]document.ExceptionEntry, len(req.Items))
	for i, item := range req.Items {
		entries[i] = document.ExceptionEntry{
			Label:       item.Label,
			Description: item.Description,
			Approved:    item.Approved,
			Image:       item.Image,
		}
		if item.DueDate != nil {
			due := item.DueDate.Time
			entries[i].DueDate = &due
		}
	}

	doc, err := s.renderer.RenderExceptions(document.ExceptionsInput{
		ProcessCode: p.Code,
		Responsible: responsible,
		Notes:       req.Notes,
		Items:       entries,
	})
	if err != nil {
		return nil, err
	}

	url, err := s.upload(ctx, codec.Encode(doc), p.ID+"/ressalvas")
	if err != nil {
		return nil, err
	}

	now := s.clock()
	items := make([]model.ExceptionItem, len(req.Items))
	for i, in := range req.Items {
		items[i] = model.ExceptionItem{
			ProcessID:   p.ID,
			Label:       in.Label,
			Description: in.Description,
			DueDate:     in.DueDate,
			Approved:    in.Approved,
			CreatedAt:   now,
		}
		if in.Image != "" {
			// already decoded once by the renderer
			data, err := codec.Decode(in.Image)
			if err != nil {
				return nil, &document.InvalidImagePayloadError{Item: in.Label, Err: err}
			}
			items[i].ImageDigest = codec.Digest(data)
		}
	}

	expected := p.Status
	p.ExceptionsURL = url
	if err := p.Transition(model.StatusExceptionsRecorded, now); err != nil {
		return nil, err
	}
	if err := s.ledger.RecordExceptions(ctx, p, expected, items); err != nil {
		logger.Error(ctx, "failed to update process, ressalvas document is orphaned",
			"process_id", p.ID, "url", url, "error", err)
		return nil, err
	}

	logger.Info(ctx, "exceptions recorded", "process_id", p.ID, "items", len(items), "url", url)
	return p, nil
}

// StageSurvey saves the survey that finalization folds into the final
// document. A later survey replaces an earlier one.
func (s *ProcessService) StageSurvey(ctx context.Context, req SurveyRequest) (*model.SurveyResult, error) {
	code := strings.TrimSpace(req.ProcessCode)
	if code == "" {
		return nil, &model.ValidationError{Field: "processo_id", Message: "process code is required"}
	}
	if req.Score == nil {
		return nil, &model.ValidationError{Field: "nps", Message: "score is required"}
	}
	survey := &model.SurveyResult{
		Score:    *req.Score,
		Ratings:  req.Ratings,
		Feedback: req.Feedback,
	}
	if err := survey.Validate(); err != nil {
		return nil, err
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

	survey.ProcessID = p.ID
	survey.CreatedAt = s.clock()
	if err := s.ledger.SaveSurvey(ctx, survey); err != nil {
		return nil, err
	}

	logger.Info(ctx, "survey staged", "process_id", p.ID, "nps", survey.Score)
	return survey, nil
}

// Get returns a process and its exception items by code.
func (s *ProcessService) Get(ctx context.Context, code string) (*ProcessView, error) {
	p, err := s.ledger.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	items, err := s.ledger.ListExceptionItems(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &ProcessView{Process: p, Items: items}, nil
}

// DownloadURL returns a signed link to the final artifact.
func (s *ProcessService) DownloadURL(ctx context.Context, code string) (string, error) {
	p, err := s.ledger.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return "", err
	}
	if p.FinalURL == "" {
		return "", &ArtifactMissingError{Artifact: "final"}
	}
	return s.store.SignedURL(ctx, p.FinalURL)
}

// lockProcess resolves code, takes the process lock and re-reads the row so
// the caller sees the state no concurrent request can change any more.
func (s *ProcessService) lockProcess(ctx context.Context, code string) (*model.Process, func(), error) {
	p, err := s.ledger.GetByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.locks.Lock(p.ID)
	p, err = s.ledger.Get(ctx, p.ID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return p, unlock, nil
}

// upload decodes a transport payload and writes it to the artifact store.
func (s *ProcessService) upload(ctx context.Context, transport, folder string) (string, error) {
	data, err := codec.Decode(transport)
	if err != nil {
		return "", err
	}
	url, err := s.store.Store(ctx, data, folder)
	if err != nil {
		var swErr *StorageWriteFailedError
		if !errors.As(err, &swErr) {
			err = &StorageWriteFailedError{Path: folder, Err: err}
		}
		return "", err
	}
	return url, nil
}
