package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"giro/pkg/platform/sentinel"
	platformtx "giro/pkg/platform/tx"
)

// Schema is applied at startup. Balances carry a non-negative check so the
// database backstops the invariant even if a code path slips.
const Schema = `
CREATE TABLE IF NOT EXISTS identity_links (
	bank_ref       TEXT PRIMARY KEY,
	account_id     TEXT NOT NULL,
	holder_address TEXT NOT NULL,
	bank_code      TEXT NOT NULL,
	status         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS identity_links_holder_idx ON identity_links (holder_address);
CREATE INDEX IF NOT EXISTS identity_links_account_idx ON identity_links (account_id);

CREATE TABLE IF NOT EXISTS ledger_accounts (
	account_key    TEXT PRIMARY KEY,
	balance        NUMERIC(30,6) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	last_synced_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transfers (
	id         TEXT PRIMARY KEY,
	from_ref   TEXT NOT NULL,
	to_ref     TEXT NOT NULL,
	scheme     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	amount     NUMERIC(30,6) NOT NULL,
	fee        NUMERIC(30,6) NOT NULL DEFAULT 0,
	memo       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transfers_from_idx ON transfers (from_ref);
CREATE INDEX IF NOT EXISTS transfers_to_idx ON transfers (to_ref);
`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists links, accounts, and transfers in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed ledger store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// q returns the active transaction when inside WithTransaction, the pool
// otherwise.
func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := platformtx.From(ctx); ok {
		return tx
	}
	return s.pool
}

func (s *PostgresStore) LinkByAddress(ctx context.Context, holderAddress string) (IdentityLink, error) {
	return s.scanLink(s.q(ctx).QueryRow(ctx,
		`SELECT bank_ref, account_id, holder_address, bank_code, status
		 FROM identity_links WHERE holder_address = $1`, holderAddress))
}

func (s *PostgresStore) LinkByRef(ctx context.Context, bankRef string) (IdentityLink, error) {
	return s.scanLink(s.q(ctx).QueryRow(ctx,
		`SELECT bank_ref, account_id, holder_address, bank_code, status
		 FROM identity_links WHERE bank_ref = $1`, bankRef))
}

func (s *PostgresStore) scanLink(row pgx.Row) (IdentityLink, error) {
	var link IdentityLink
	var status string
	err := row.Scan(&link.BankRef, &link.AccountID, &link.HolderAddress, &link.BankCode, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return IdentityLink{}, fmt.Errorf("link not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return IdentityLink{}, fmt.Errorf("find link: %w", err)
	}
	link.Status = LinkStatus(status)
	return link, nil
}

func (s *PostgresStore) LinksByAccountIDs(ctx context.Context, accountIDs []string) (map[string]IdentityLink, error) {
	if len(accountIDs) == 0 {
		return map[string]IdentityLink{}, nil
	}
	rows, err := s.q(ctx).Query(ctx,
		`SELECT bank_ref, account_id, holder_address, bank_code, status
		 FROM identity_links WHERE account_id = ANY($1)`, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("find links by account ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]IdentityLink)
	for rows.Next() {
		var link IdentityLink
		var status string
		if err := rows.Scan(&link.BankRef, &link.AccountID, &link.HolderAddress, &link.BankCode, &status); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		link.Status = LinkStatus(status)
		out[link.AccountID] = link
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveLink(ctx context.Context, link IdentityLink) error {
	_, err := s.q(ctx).Exec(ctx,
		`INSERT INTO identity_links (bank_ref, account_id, holder_address, bank_code, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (bank_ref) DO UPDATE SET status = EXCLUDED.status`,
		link.BankRef, link.AccountID, link.HolderAddress, link.BankCode, string(link.Status))
	if err != nil {
		return fmt.Errorf("save link: %w", err)
	}
	return nil
}

func (s *PostgresStore) AccountByKey(ctx context.Context, key string) (Account, error) {
	query := `SELECT account_key, balance::text, last_synced_at FROM ledger_accounts WHERE account_key = $1`
	if _, inTx := platformtx.From(ctx); inTx {
		// Row lock: two concurrent transfers from the same sender serialize
		// on the balance row, so the sufficiency check stays indivisible
		// from the debit.
		query += ` FOR UPDATE`
	}

	var account Account
	var balance string
	err := s.q(ctx).QueryRow(ctx, query, key).Scan(&account.Key, &balance, &account.LastSyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	account.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("parse balance: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, account Account) error {
	_, err := s.q(ctx).Exec(ctx,
		`INSERT INTO ledger_accounts (account_key, balance, last_synced_at)
		 VALUES ($1, $2::numeric, now())
		 ON CONFLICT (account_key) DO UPDATE SET balance = EXCLUDED.balance, last_synced_at = now()`,
		account.Key, account.Balance.String())
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// CreditAccount applies a relative balance change in SQL. Two transactions
// that both first-credit an absent row cannot lock it with FOR UPDATE, so an
// absolute upsert would let the second committer erase the first's credit;
// the additive conflict clause makes them sum instead.
func (s *PostgresStore) CreditAccount(ctx context.Context, key string, amount decimal.Decimal) error {
	_, err := s.q(ctx).Exec(ctx,
		`INSERT INTO ledger_accounts (account_key, balance, last_synced_at)
		 VALUES ($1, $2::numeric, now())
		 ON CONFLICT (account_key) DO UPDATE
		 SET balance = ledger_accounts.balance + EXCLUDED.balance, last_synced_at = now()`,
		key, amount.String())
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateTransfer(ctx context.Context, transfer Transfer) error {
	_, err := s.q(ctx).Exec(ctx,
		`INSERT INTO transfers (id, from_ref, to_ref, scheme, kind, amount, fee, memo, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)`,
		transfer.ID, transfer.FromRef, transfer.ToRef, string(transfer.Scheme), string(transfer.Kind),
		transfer.Amount.String(), transfer.Fee.String(), transfer.Memo, transfer.Status, transfer.CreatedAt)
	if err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

func (s *PostgresStore) TransfersByKeys(ctx context.Context, keys []string, limit int) ([]Transfer, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT id, from_ref, to_ref, scheme, kind, amount::text, fee::text, memo, status, created_at
		 FROM transfers
		 WHERE from_ref = ANY($1) OR to_ref = ANY($1)
		 ORDER BY created_at DESC
		 LIMIT $2`, keys, limit)
	if err != nil {
		return nil, fmt.Errorf("find transfers: %w", err)
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		var scheme, kind, amount, fee string
		if err := rows.Scan(&t.ID, &t.FromRef, &t.ToRef, &scheme, &kind, &amount, &fee, &t.Memo, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.Scheme = KeyScheme(scheme)
		t.Kind = TransferKind(kind)
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if t.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("parse fee: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// WithTransaction runs fn inside one database transaction. Row locking inside
// AccountByKey gives the read-then-decrement in the transfer path its
// indivisibility with respect to other writers.
func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	dbTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	if err := fn(platformtx.WithTx(ctx, dbTx)); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
