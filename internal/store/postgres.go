package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All monetary values are stored as NUMERIC for exact decimal
// precision; holdings are stored as JSONB on the student row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateClass(ctx context.Context, c *model.ClassConfig) error {
	allowed, err := json.Marshal(c.AllowedStocks)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO classes (id, name, activity_start, activity_end, seed_money, allowed_stocks, commission_enabled, commission_rate, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8::NUMERIC, $9)`,
		c.ID, c.Name, c.ActivityStart, c.ActivityEnd,
		c.SeedMoney.String(), allowed,
		c.Commission.Enabled, c.Commission.RatePercent.String(),
		c.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetClass(ctx context.Context, id string) (*model.ClassConfig, error) {
	var c model.ClassConfig
	var seedMoney, rate string
	var allowed []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, activity_start, activity_end,
		        seed_money::TEXT, allowed_stocks,
		        commission_enabled, commission_rate::TEXT, created_at
		 FROM classes WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.ActivityStart, &c.ActivityEnd,
			&seedMoney, &allowed,
			&c.Commission.Enabled, &rate, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get class %s: %w", id, err)
	}

	c.SeedMoney, _ = decimal.NewFromString(seedMoney)
	c.Commission.RatePercent, _ = decimal.NewFromString(rate)
	if err := json.Unmarshal(allowed, &c.AllowedStocks); err != nil {
		return nil, fmt.Errorf("get class %s: decode allowed stocks: %w", id, err)
	}
	return &c, nil
}

func (s *PostgresStore) UpdateClass(ctx context.Context, c *model.ClassConfig) error {
	allowed, err := json.Marshal(c.AllowedStocks)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE classes
		 SET name = $2, activity_start = $3, activity_end = $4,
		     seed_money = $5::NUMERIC, allowed_stocks = $6,
		     commission_enabled = $7, commission_rate = $8::NUMERIC
		 WHERE id = $1`,
		c.ID, c.Name, c.ActivityStart, c.ActivityEnd,
		c.SeedMoney.String(), allowed,
		c.Commission.Enabled, c.Commission.RatePercent.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrClassNotFound, c.ID)
	}
	return nil
}

func (s *PostgresStore) CreateStudent(ctx context.Context, a *model.StudentAccount) error {
	var taken bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM students WHERE class_id = $1 AND nickname = $2)`,
		a.ClassID, a.Nickname).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrNicknameTaken, a.Nickname)
	}

	holdings, err := json.Marshal(a.Holdings)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO students (id, nickname, class_id, cash, holdings, enrolled_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, now())`,
		a.ID, a.Nickname, a.ClassID, a.Cash.String(), holdings,
	)
	return err
}

func (s *PostgresStore) GetStudent(ctx context.Context, id string) (*model.StudentAccount, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, nickname, class_id, cash::TEXT, holdings
		 FROM students WHERE id = $1`, id)

	a, err := scanStudent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get student %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListStudentsByClass(ctx context.Context, classID string) ([]model.StudentAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, nickname, class_id, cash::TEXT, holdings
		 FROM students WHERE class_id = $1 ORDER BY enrolled_at`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.StudentAccount
	for rows.Next() {
		a, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) UpdateStudent(ctx context.Context, a *model.StudentAccount) error {
	holdings, err := json.Marshal(a.Holdings)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE students SET cash = $2::NUMERIC, holdings = $3 WHERE id = $1`,
		a.ID, a.Cash.String(), holdings,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, a.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteStudent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return nil
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, student_id, kind, stock_code, stock_name, quantity, unit_price, timestamp, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8, $9)`,
		tx.ID, tx.StudentID, tx.Kind, tx.StockCode, tx.StockName,
		tx.Quantity, tx.UnitPrice.String(), tx.Timestamp, tx.Reason,
	)
	return err
}

func (s *PostgresStore) TransactionsByStudent(ctx context.Context, studentID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, kind, stock_code, stock_name, quantity, unit_price::TEXT, timestamp, reason
		 FROM transactions WHERE student_id = $1 ORDER BY timestamp`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		var price string
		if err := rows.Scan(&tx.ID, &tx.StudentID, &tx.Kind, &tx.StockCode, &tx.StockName,
			&tx.Quantity, &price, &tx.Timestamp, &tx.Reason); err != nil {
			return nil, err
		}
		tx.UnitPrice, _ = decimal.NewFromString(price)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) DeleteTransactionsByStudent(ctx context.Context, studentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE student_id = $1`, studentID)
	return err
}

func (s *PostgresStore) LoadClockState(ctx context.Context) (string, error) {
	var date string
	err := s.pool.QueryRow(ctx,
		`SELECT last_advance FROM clock_state WHERE singleton = TRUE`).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return date, nil
}

func (s *PostgresStore) SaveClockState(ctx context.Context, date string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO clock_state (singleton, last_advance) VALUES (TRUE, $1)
		 ON CONFLICT (singleton) DO UPDATE SET last_advance = EXCLUDED.last_advance`,
		date,
	)
	return err
}

// pgRow is satisfied by both pgx.Row and pgx.Rows.
type pgRow interface {
	Scan(dest ...interface{}) error
}

func scanStudent(row pgRow) (*model.StudentAccount, error) {
	var a model.StudentAccount
	var cash string
	var holdings []byte

	if err := row.Scan(&a.ID, &a.Nickname, &a.ClassID, &cash, &holdings); err != nil {
		return nil, err
	}

	a.Cash, _ = decimal.NewFromString(cash)
	a.Holdings = make(map[string]model.Holding)
	if len(holdings) > 0 {
		if err := json.Unmarshal(holdings, &a.Holdings); err != nil {
			return nil, fmt.Errorf("decode holdings: %w", err)
		}
	}
	return &a, nil
}
