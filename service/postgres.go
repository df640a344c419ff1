package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Lunnius/Npstest/config"
	"github.com/Lunnius/Npstest/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var processColumns = []string{
	"id", "codigo", "status", "nome_cliente", "cpf", "status_entrega",
	"termo_pdf", "pdf_ressalvas", "pdf_final", "imagens_termo",
	"criado_em", "atualizado_em", "finalizado_em",
}

// PostgresLedger stores processes in Postgres through a pgx pool
type PostgresLedger struct {
	pool *pgxpool.Pool
}

var _ Ledger = (*PostgresLedger)(nil)

// NewPostgresPool opens a pool sized from configuration.
func NewPostgresPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

// NewPostgresLedger wraps an open pool
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// EnsureSchema creates the tables if they don't exist
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Insert(ctx context.Context, p *model.Process) error {
	query, args, err := buildInsertProcess(p)
	if err != nil {
		return err
	}

	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "processos_codigo_key" {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, p.Code)
		}
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (*model.Process, error) {
	return l.selectProcess(ctx, sq.Eq{"id": id}, id)
}

func (l *PostgresLedger) GetByCode(ctx context.Context, code string) (*model.Process, error) {
	return l.selectProcess(ctx, sq.Eq{"codigo": code}, code)
}

func (l *PostgresLedger) selectProcess(ctx context.Context, where sq.Eq, key string) (*model.Process, error) {
	query, args, err := psql.Select(processColumns...).From("processos").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	p, err := scanProcess(l.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, key)
		}
		return nil, fmt.Errorf("select process: %w", err)
	}
	return p, nil
}

func (l *PostgresLedger) Update(ctx context.Context, p *model.Process, expected model.Status) error {
	query, args, err := buildUpdateProcess(p, expected)
	if err != nil {
		return err
	}

	tag, err := l.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return l.conflict(ctx, p.ID, expected)
}

// RecordExceptions runs the guarded update and the item insert in one
// transaction.
func (l *PostgresLedger) RecordExceptions(ctx context.Context, p *model.Process, expected model.Status, items []model.ExceptionItem) error {
	update, updateArgs, err := buildUpdateProcess(p, expected)
	if err != nil {
		return err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, update, updateArgs...)
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return l.conflict(ctx, p.ID, expected)
	}

	if len(items) > 0 {
		insert, insertArgs, err := buildInsertItems(items)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insert, insertArgs...); err != nil {
			return fmt.Errorf("insert exception items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit exceptions: %w", err)
	}
	return nil
}

// conflict explains a guarded write that matched no row
func (l *PostgresLedger) conflict(ctx context.Context, id string, expected model.Status) error {
	current, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expected %s, found %s", ErrStatusConflict, expected, current.Status)
}

func (l *PostgresLedger) ListExceptionItems(ctx context.Context, processID string) ([]model.ExceptionItem, error) {
	query, args, err := psql.
		Select("processo_id", "item", "descricao", "prazo", "aprovacao", "imagem_hash", "criado_em").
		From("ressalvas_itens").
		Where(sq.Eq{"processo_id": processID}).
		OrderBy("criado_em", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select items: %w", err)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exception items: %w", err)
	}
	defer rows.Close()

	var items []model.ExceptionItem
	for rows.Next() {
		var (
			item   model.ExceptionItem
			due    *time.Time
			digest *string
		)
		if err := rows.Scan(&item.ProcessID, &item.Label, &item.Description, &due, &item.Approved, &digest, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exception item: %w", err)
		}
		if due != nil {
			item.DueDate = &model.Date{Time: *due}
		}
		if digest != nil {
			item.ImageDigest = *digest
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

func (l *PostgresLedger) SaveSurvey(ctx context.Context, s *model.SurveyResult) error {
	ratings, err := json.Marshal(s.Ratings)
	if err != nil {
		return fmt.Errorf("encode ratings: %w", err)
	}
	feedback, err := json.Marshal(s.Feedback)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	query, args, err := psql.Insert("nps_respostas").
		Columns("processo_id", "nps", "avaliacoes", "feedback", "criado_em").
		Values(s.ProcessID, s.Score, string(ratings), string(feedback), s.CreatedAt).
		Suffix("ON CONFLICT (processo_id) DO UPDATE SET nps = EXCLUDED.nps, avaliacoes = EXCLUDED.avaliacoes, feedback = EXCLUDED.feedback, criado_em = EXCLUDED.criado_em").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert survey: %w", err)
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert survey: %w", err)
	}
	return nil
}

func (l *PostgresLedger) GetSurvey(ctx context.Context, processID string) (*model.SurveyResult, error) {
	query, args, err := psql.Select("processo_id", "nps", "avaliacoes", "feedback", "criado_em").
		From("nps_respostas").
		Where(sq.Eq{"processo_id": processID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select survey: %w", err)
	}

	var (
		s                 model.SurveyResult
		ratings, feedback []byte
	)
	err = l.pool.QueryRow(ctx, query, args...).Scan(&s.ProcessID, &s.Score, &ratings, &feedback, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSurveyNotStaged
		}
		return nil, fmt.Errorf("select survey: %w", err)
	}
	if err := json.Unmarshal(ratings, &s.Ratings); err != nil {
		return nil, fmt.Errorf("decode ratings: %w", err)
	}
	if err := json.Unmarshal(feedback, &s.Feedback); err != nil {
		return nil, fmt.Errorf("decode feedback: %w", err)
	}
	return &s, nil
}

func (l *PostgresLedger) SaveAnswer(ctx context.Context, a *model.PageAnswer) error {
	query, args, err := buildInsertAnswer(a)
	if err != nil {
		return err
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (l *PostgresLedger) ListAnswers(ctx context.Context, clientID string) ([]model.PageAnswer, error) {
	query, args, err := psql.Select("cliente_id", "pagina", "dados", "criado_em").
		From("respostas").
		Where(sq.Eq{"cliente_id": clientID}).
		OrderBy("criado_em", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select answers: %w", err)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var answers []model.PageAnswer
	for rows.Next() {
		var (
			a    model.PageAnswer
			data []byte
		)
		if err := rows.Scan(&a.ClientID, &a.Page, &data, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.Data = data
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return answers, nil
}

func buildInsertAnswer(a *model.PageAnswer) (string, []any, error) {
	query, args, err := psql.Insert("respostas").
		Columns("cliente_id", "pagina", "dados", "criado_em").
		Values(a.ClientID, a.Page, string(a.Data), a.CreatedAt).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert answer: %w", err)
	}
	return query, args, nil
}

func buildInsertItems(items []model.ExceptionItem) (string, []any, error) {
	builder := psql.Insert("ressalvas_itens").
		Columns("processo_id", "item", "descricao", "prazo", "aprovacao", "imagem_hash", "criado_em")
	for _, item := range items {
		var due any
		if item.DueDate != nil {
			due = item.DueDate.Time
		}
		builder = builder.Values(item.ProcessID, item.Label, item.Description, due, item.Approved, nullString(item.ImageDigest), item.CreatedAt)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert items: %w", err)
	}
	return query, args, nil
}

func buildInsertProcess(p *model.Process) (string, []any, error) {
	images, err := encodeImages(p.TermoImages)
	if err != nil {
		return "", nil, err
	}

	query, args, err := psql.Insert("processos").
		Columns(processColumns...).
		Values(
			p.ID, p.Code, string(p.Status), p.ClientName, p.DocumentNumber, p.DeliveryStatus,
			nullString(p.TermoURL), nullString(p.ExceptionsURL), nullString(p.FinalURL), images,
			p.CreatedAt, p.UpdatedAt, p.FinalizedAt,
		).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert process: %w", err)
	}
	return query, args, nil
}

// buildUpdateProcess writes the mutable columns guarded by the expected
// status; criado_em and codigo are never touched.
func buildUpdateProcess(p *model.Process, expected model.Status) (string, []any, error) {
	images, err := encodeImages(p.TermoImages)
	if err != nil {
		return "", nil, err
	}

	query, args, err := psql.Update("processos").
		Set("status", string(p.Status)).
		Set("termo_pdf", nullString(p.TermoURL)).
		Set("pdf_ressalvas", nullString(p.ExceptionsURL)).
		Set("pdf_final", nullString(p.FinalURL)).
		Set("imagens_termo", images).
		Set("atualizado_em", p.UpdatedAt).
		Set("finalizado_em", p.FinalizedAt).
		Where(sq.Eq{"id": p.ID, "status": string(expected)}).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build update process: %w", err)
	}
	return query, args, nil
}

func scanProcess(row pgx.Row) (*model.Process, error) {
	var (
		p                                 model.Process
		status                            string
		termoURL, exceptionsURL, finalURL *string
		images                            []byte
	)
	err := row.Scan(
		&p.ID, &p.Code, &status, &p.ClientName, &p.DocumentNumber, &p.DeliveryStatus,
		&termoURL, &exceptionsURL, &finalURL, &images,
		&p.CreatedAt, &p.UpdatedAt, &p.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Status, err = model.ParseStatus(status); err != nil {
		return nil, err
	}
	p.TermoURL = deref(termoURL)
	p.ExceptionsURL = deref(exceptionsURL)
	p.FinalURL = deref(finalURL)
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.TermoImages); err != nil {
			return nil, fmt.Errorf("decode termo images: %w", err)
		}
	}
	return &p, nil
}

func encodeImages(images []model.ItemImage) (any, error) {
	if len(images) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encode termo images: %w", err)
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
