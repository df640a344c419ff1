package handler

import (
	"context"
	"net/http"

	"github.com/Lunnius/Npstest/middleware"
	"github.com/Lunnius/Npstest/model"
	"github.com/Lunnius/Npstest/service"
	"github.com/gin-gonic/gin"
)

// ProcessService is what the HTTP layer needs from the orchestrator
type ProcessService interface {
	CreateTermo(ctx context.Context, req service.TermoRequest) (*model.Process, error)
	RecordExceptions(ctx context.Context, req service.ExceptionsRequest) (*model.Process, error)
	StageSurvey(ctx context.Context, req service.SurveyRequest) (*model.SurveyResult, error)
	Finalize(ctx context.Context, code string) (*model.Process, error)
	FinalizeWithSurvey(ctx context.Context, req service.SurveyRequest) (*model.Process, error)
	Get(ctx context.Context, code string) (*service.ProcessView, error)
	DownloadURL(ctx context.Context, code string) (string, error)
	SaveAnswer(ctx context.Context, req service.AnswerRequest) (*model.PageAnswer, error)
	ListAnswers(ctx context.Context, clientID string) ([]model.PageAnswer, error)
}

type ProcessHandler struct {
	service ProcessService
}

func NewProcessHandler(svc ProcessService) *ProcessHandler {
	return &ProcessHandler{service: svc}
}

// Register mounts the process routes on r
func (h *ProcessHandler) Register(r gin.IRouter) {
	r.POST("/termo/salvar", h.SaveTermo)
	r.POST("/ressalvas/salvar", h.SaveExceptions)
	r.POST("/nps/respostas", h.SaveSurvey)
	r.POST("/nps/finalizar", h.FinalizeWithSurvey)
	r.POST("/finalizacao/gerar-pdf-final", h.Finalize)
	r.GET("/processos/:codigo", h.Get)
	r.GET("/processos/:codigo/final", h.Download)
	r.POST("/api/respostas", h.SaveAnswer)
	r.GET("/api/respostas", h.ListAnswers)
}

// SaveTermo creates a process from the signed termo
func (h *ProcessHandler) SaveTermo(c *gin.Context) {
	var req service.TermoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	p, err := h.service.CreateTermo(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	middleware.SetProcessCode(c, p.Code)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"processo_id": p.Code,
		"termo_pdf":   p.TermoURL,
	})
}

// SaveExceptions records the ressalvas report of a process
func (h *ProcessHandler) SaveExceptions(c *gin.Context) {
	var req service.ExceptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	middleware.SetProcessCode(c, req.ProcessCode)

	p, err := h.service.RecordExceptions(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pdf_url": p.ExceptionsURL,
	})
}

// SaveSurvey stages the NPS answers
func (h *ProcessHandler) SaveSurvey(c *gin.Context) {
	var req service.SurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	middleware.SetProcessCode(c, req.ProcessCode)

	if _, err := h.service.StageSurvey(c.Request.Context(), req); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// FinalizeWithSurvey stages the NPS answers and closes the process
func (h *ProcessHandler) FinalizeWithSurvey(c *gin.Context) {
	var req service.SurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	middleware.SetProcessCode(c, req.ProcessCode)

	p, err := h.service.FinalizeWithSurvey(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"pdf_final": p.FinalURL,
	})
}

// Finalize closes a process whose survey was already staged
func (h *ProcessHandler) Finalize(c *gin.Context) {
	code := c.Query("processo_id")
	middleware.SetProcessCode(c, code)

	p, err := h.service.Finalize(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"arquivo": "entrega_final.pdf",
		"url":     p.FinalURL,
	})
}

// Get returns a process with its exception items
func (h *ProcessHandler) Get(c *gin.Context) {
	code := c.Param("codigo")
	middleware.SetProcessCode(c, code)

	view, err := h.service.Get(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Download redirects to a signed link of the final document
func (h *ProcessHandler) Download(c *gin.Context) {
	code := c.Param("codigo")
	middleware.SetProcessCode(c, code)

	url, err := h.service.DownloadURL(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, url)
}

// SaveAnswer logs one questionnaire page
func (h *ProcessHandler) SaveAnswer(c *gin.Context) {
	var req service.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if _, err := h.service.SaveAnswer(c.Request.Context(), req); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListAnswers returns the answer log of ?cliente_id=
func (h *ProcessHandler) ListAnswers(c *gin.Context) {
	answers, err := h.service.ListAnswers(c.Request.Context(), c.Query("cliente_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if answers == nil {
		answers = []model.PageAnswer{}
	}

	c.JSON(http.StatusOK, gin.H{"respostas": answers})
}
