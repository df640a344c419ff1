package model

import (
	"fmt"
	"strings"
	"time"
)

// Delivery status values reported by the client on the termo
const (
	DeliveryCompleted           = "concluido"
	DeliveryCompletedWithIssues = "concluido_com_ressalva"
)

// Process is one delivery acceptance workflow
type Process struct {
	ID             string      `json:"id"`
	Code           string      `json:"codigo"`
	Status         Status      `json:"status"`
	ClientName     string      `json:"nome_cliente"`
	DocumentNumber string      `json:"cpf"`
	DeliveryStatus string      `json:"status_entrega"`
	TermoURL       string      `json:"termo_pdf,omitempty"`
	ExceptionsURL  string      `json:"pdf_ressalvas,omitempty"`
	FinalURL       string      `json:"pdf_final,omitempty"`
	TermoImages    []ItemImage `json:"imagens_termo,omitempty"`
	CreatedAt      time.Time   `json:"criado_em"`
	UpdatedAt      time.Time   `json:"atualizado_em"`
	FinalizedAt    *time.Time  `json:"finalizado_em,omitempty"`
}

// ItemImage is an evidence photo stored alongside the termo
type ItemImage struct {
	Item string `json:"item"`
	URL  string `json:"url"`
}

// Transition moves the process to next, enforcing the lifecycle.
func (p *Process) Transition(next Status, at time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = at
	if next == StatusFinalized {
		finalized := at
		p.FinalizedAt = &finalized
	}
	return nil
}

// Clone returns a copy that shares no mutable state with p.
func (p *Process) Clone() *Process {
	cp := *p
	if p.TermoImages != nil {
		cp.TermoImages = append([]ItemImage(nil), p.TermoImages...)
	}
	if p.FinalizedAt != nil {
		t := *p.FinalizedAt
		cp.FinalizedAt = &t
	}
	return &cp
}

// ValidateDeliveryStatus accepts only the two values the termo form offers.
func ValidateDeliveryStatus(s string) error {
	switch s {
	case DeliveryCompleted, DeliveryCompletedWithIssues:
		return nil
	}
	return &ValidationError{Field: "status_entrega", Message: fmt.Sprintf("invalid delivery status %q", s)}
}

// ExceptionItem is one recorded delivery caveat. Immutable once created.
type ExceptionItem struct {
	ProcessID   string    `json:"processo_id"`
	Label       string    `json:"item"`
	Description string    `json:"descricao"`
	DueDate     *Date     `json:"prazo,omitempty"`
	Approved    bool      `json:"aprovacao"`
	ImageDigest string    `json:"imagem_hash,omitempty"`
	CreatedAt   time.Time `json:"criado_em"`
}

// Date is a calendar day serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "prazo", Message: fmt.Sprintf("invalid date %q", s)}
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
