package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// querier is the subset of *pgxpool.Pool the store needs
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const invoiceColumns = `id, user_id, amount::text, tip_amount::text, date, reason, category, status,
	participants, location, pdf_path, signed_by, signed_at, created_at, updated_at`

// PostgresDB implements the DB interface on a PostgreSQL pool
type PostgresDB struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgresDB migrates the schema at dsn and opens a connection pool
func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "invoice-tracker"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	slog.Info("Connected to PostgreSQL")
	return &PostgresDB{pool: pool, q: pool}, nil
}

// CreateInvoice inserts a new invoice
func (p *PostgresDB) CreateInvoice(ctx context.Context, inv *Invoice) error {
	location, err := marshalLocation(inv.Location)
	if err != nil {
		return err
	}
	_, err = p.q.Exec(ctx, `INSERT INTO invoices
		(id, user_id, amount, tip_amount, date, reason, category, status, participants,
		 location, pdf_path, signed_by, signed_at, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inv.ID, inv.UserID, inv.Amount.String(), inv.TipAmount.String(), inv.Date, inv.Reason,
		inv.Category, string(inv.Status), participantsOrEmpty(inv.Participants), location,
		inv.PDFPath, inv.Signing.SignedBy, inv.Signing.SignedAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting invoice: %w", err)
	}
	return nil
}

// GetInvoice retrieves an invoice by ID for its owner
func (p *PostgresDB) GetInvoice(ctx context.Context, id, userID string) (*Invoice, error) {
	row := p.q.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND user_id = $2`, id, userID)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns the invoices of a user, newest date first
func (p *PostgresDB) ListInvoices(ctx context.Context, userID string) ([]*Invoice, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// UpdateInvoice replaces the content of a pending invoice
func (p *PostgresDB) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	location, err := marshalLocation(inv.Location)
	if err != nil {
		return err
	}
	tag, err := p.q.Exec(ctx, `UPDATE invoices SET
		amount = $3::numeric, tip_amount = $4::numeric, date = $5, reason = $6, category = $7,
		participants = $8, location = $9, pdf_path = $10, signed_by = $11, signed_at = $12, updated_at = $13
		WHERE id = $1 AND user_id = $2 AND status = 'pending'`,
		inv.ID, inv.UserID, inv.Amount.String(), inv.TipAmount.String(), inv.Date, inv.Reason,
		inv.Category, participantsOrEmpty(inv.Participants), location, inv.PDFPath,
		inv.Signing.SignedBy, inv.Signing.SignedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.explainMiss(ctx, inv.ID, inv.UserID, ErrNotPending)
	}
	return nil
}

// UpdateStatus moves a pending invoice to status and records the signer
func (p *PostgresDB) UpdateStatus(ctx context.Context, id, userID string, status Status, signing Signing) (*Invoice, error) {
	if !StatusPending.CanTransitionTo(status) {
		return nil, p.explainMiss(ctx, id, userID, ErrInvalidTransition)
	}

	row := p.q.QueryRow(ctx, `UPDATE invoices SET status = $3, signed_by = $4, signed_at = $5, updated_at = $5
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
		RETURNING `+invoiceColumns,
		id, userID, string(status), signing.SignedBy, signing.SignedAt)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, p.explainMiss(ctx, id, userID, ErrNotPending)
	}
	if err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}
	return inv, nil
}

// explainMiss tells apart a missing or foreign invoice from one that is
// no longer pending. pendingErr is returned for a pending invoice.
func (p *PostgresDB) explainMiss(ctx context.Context, id, userID string, pendingErr error) error {
	var status string
	err := p.q.QueryRow(ctx, `SELECT status FROM invoices WHERE id = $1 AND user_id = $2`, id, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking invoice: %w", err)
	}
	if Status(status) != StatusPending {
		return ErrNotPending
	}
	return pendingErr
}

// Close closes the connection pool
func (p *PostgresDB) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv          Invoice
		amount, tip  string
		status       string
		locationJSON []byte
		participants []string
	)
	err := row.Scan(&inv.ID, &inv.UserID, &amount, &tip, &inv.Date, &inv.Reason, &inv.Category,
		&status, &participants, &locationJSON, &inv.PDFPath, &inv.Signing.SignedBy,
		&inv.Signing.SignedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if inv.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parsing amount: %w", err)
	}
	if inv.TipAmount, err = decimal.NewFromString(tip); err != nil {
		return nil, fmt.Errorf("parsing tip amount: %w", err)
	}
	inv.Status = Status(status)
	inv.Participants = participantsOrEmpty(participants)
	if len(locationJSON) > 0 {
		var loc Location
		if err := json.Unmarshal(locationJSON, &loc); err != nil {
			return nil, fmt.Errorf("parsing location: %w", err)
		}
		inv.Location = loc.Normalize()
	}
	return &inv, nil
}

func marshalLocation(loc *Location) ([]byte, error) {
	if loc == nil {
		return nil, nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("marshaling location: %w", err)
	}
	return data, nil
}

func participantsOrEmpty(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
