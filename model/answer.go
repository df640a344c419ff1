package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// PageAnswer is one questionnaire page a client submitted. Data is kept as
// posted; its shape depends on the page.
type PageAnswer struct {
	ClientID  string          `json:"cliente_id"`
	Page      string          `json:"pagina"`
	Data      json.RawMessage `json:"dados"`
	CreatedAt time.Time       `json:"criado_em"`
}

// Validate trims the identifiers and checks that Data is a JSON object.
func (a *PageAnswer) Validate() error {
	a.ClientID = strings.TrimSpace(a.ClientID)
	a.Page = strings.TrimSpace(a.Page)
	if a.ClientID == "" {
		return &ValidationError{Field: "cliente_id", Message: "client id is required"}
	}
	if a.Page == "" {
		return &ValidationError{Field: "pagina", Message: "page is required"}
	}

	data := bytes.TrimSpace(a.Data)
	if len(data) == 0 {
		return &ValidationError{Field: "dados", Message: "answers are required"}
	}
	if data[0] != '{' || !json.Valid(data) {
		return &ValidationError{Field: "dados", Message: "answers must be a JSON object"}
	}
	a.Data = append(json.RawMessage(nil), data...)
	return nil
}
