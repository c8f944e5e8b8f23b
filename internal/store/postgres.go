package store

import (
	"context"
	stderrors "errors"

	"golang-redflag-service/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS case_documents (
		case_id    TEXT        NOT NULL,
		kind       TEXT        NOT NULL,
		body       JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (case_id, kind)
	)
`

// Postgres stores documents as JSONB rows, one per case and kind.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, checks the connection and creates the table if
// needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "store.dsn", "<redacted>", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "", "connect", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "", "migrate", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, caseID string, kind Kind) ([]byte, error) {
	query := `
		SELECT body FROM case_documents
		WHERE case_id = $1 AND kind = $2
	`
	var body []byte
	err := p.pool.QueryRow(ctx, query, caseID, string(kind)).Scan(&body)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(caseID, kind)
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, caseID, "get "+string(kind), err)
	}
	return body, nil
}

func (p *Postgres) Put(ctx context.Context, caseID string, kind Kind, body []byte) error {
	query := `
		INSERT INTO case_documents (case_id, kind, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (case_id, kind)
		DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`
	if _, err := p.pool.Exec(ctx, query, caseID, string(kind), body); err != nil {
		return errors.PersistenceError(errors.CodeStoreUnavailable, caseID, "put "+string(kind), err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
