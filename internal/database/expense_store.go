package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
)

const expenseColumns = `id, user_id, description, amount_cents, expense_date, category, created_at, updated_at`

// expenseSortColumns whitelists the sortable fields. Both the entity-style
// names and the short wire names are accepted.
var expenseSortColumns = map[string]string{
	"expenseDate":        "expense_date",
	"date":               "expense_date",
	"expenseAmount":      "amount_cents",
	"amount":             "amount_cents",
	"expenseDescription": "description",
	"description":        "description",
	"expenseCategory":    "category",
	"category":           "category",
	"createdAt":          "created_at",
	"updatedAt":          "updated_at",
}

// IsSortableExpenseField reports whether sortBy names a sortable expense field.
func IsSortableExpenseField(sortBy string) bool {
	_, ok := expenseSortColumns[sortBy]
	return ok
}

// ExpenseStore persists expenses. Every read and write is scoped to the
// owning user.
type ExpenseStore struct {
	db *sql.DB
}

func NewExpenseStore(db *sql.DB) *ExpenseStore {
	return &ExpenseStore{db: db}
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var e models.Expense
	var (
		category string
		cents    int64
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Description, &cents, &e.Date, &category, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.Amount = fromCents(cents)
	e.Category = models.Category(category)
	e.Date = dateOnly(e.Date)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

// dateOnly drops the time of day and location so dates compare as calendar days.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// toCents converts a validated amount (at most two fractional digits) to
// integer cents.
func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func (s *ExpenseStore) Create(ctx context.Context, e *models.Expense) error {
	e.Date = dateOnly(e.Date)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.UserID, e.Description, toCents(e.Amount), e.Date, string(e.Category), e.CreatedAt, e.UpdatedAt)
	return classifyError(err)
}

// Get returns ErrNotFound when the expense is absent or owned by someone else.
func (s *ExpenseStore) Get(ctx context.Context, userID, id uuid.UUID) (*models.Expense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND user_id = $2
	`, id, userID)
	return scanExpense(row)
}

// Update replaces description, amount, date and category of e, matched by
// e.ID and e.UserID. CreatedAt is filled from the stored row.
func (s *ExpenseStore) Update(ctx context.Context, e *models.Expense) error {
	e.Date = dateOnly(e.Date)
	err := s.db.QueryRowContext(ctx, `
		UPDATE expenses
		SET description = $3, amount_cents = $4, expense_date = $5, category = $6, updated_at = $7
		WHERE id = $1 AND user_id = $2
		RETURNING created_at
	`, e.ID, e.UserID, e.Description, toCents(e.Amount), e.Date, string(e.Category), e.UpdatedAt).Scan(&e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return nil
}

func (s *ExpenseStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of the user's expenses and the total number of rows
// matching the filters. q must already be normalized: Size > 0, Page >= 0,
// SortBy sortable and SortDir "asc" or "desc".
func (s *ExpenseStore) List(ctx context.Context, userID uuid.UUID, q models.ExpenseQuery) ([]models.Expense, int64, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if q.Category != "" {
		conditions = append(conditions, "category = $"+strconv.Itoa(argIdx))
		args = append(args, string(q.Category))
		argIdx++
	}
	if q.StartDate != nil {
		conditions = append(conditions, "expense_date >= $"+strconv.Itoa(argIdx))
		args = append(args, dateOnly(*q.StartDate))
		argIdx++
	}
	if q.EndDate != nil {
		conditions = append(conditions, "expense_date <= $"+strconv.Itoa(argIdx))
		args = append(args, dateOnly(*q.EndDate))
		argIdx++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.Expense{}, 0, nil
	}

	column, ok := expenseSortColumns[q.SortBy]
	if !ok {
		column = "expense_date"
	}
	dir := "DESC"
	if strings.EqualFold(q.SortDir, "asc") {
		dir = "ASC"
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses ` + whereClause +
		` ORDER BY ` + column + ` ` + dir + `, created_at ` + dir + `, id ` + dir +
		` LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, q.Size, q.Page*q.Size)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		expenses = append(expenses, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return expenses, total, nil
}
