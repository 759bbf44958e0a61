package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/database"
	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultSortBy   = "expenseDate"
	DefaultSortDir  = "desc"

	// maxOffset caps page*size so the row offset fits every driver's integer.
	maxOffset = math.MaxInt32
)

// ExpenseRepository is the owner-scoped expense store.
type ExpenseRepository interface {
	Create(ctx context.Context, e *models.Expense) error
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Expense, error)
	Update(ctx context.Context, e *models.Expense) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, q models.ExpenseQuery) ([]models.Expense, int64, error)
}

// ExpenseService implements expense CRUD for a single owner at a time and
// announces every change on the event publisher.
type ExpenseService struct {
	store  ExpenseRepository
	events EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewExpenseService builds the service. events may be nil.
func NewExpenseService(store ExpenseRepository, events EventPublisher, log *zap.Logger) *ExpenseService {
	return &ExpenseService{
		store:  store,
		events: events,
		log:    log.Named("expenses"),
		now:    time.Now,
	}
}

func (s *ExpenseService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ExpenseService) Create(ctx context.Context, userID uuid.UUID, in models.ExpenseInput) (*models.Expense, error) {
	now := s.now().UTC()
	e := &models.Expense{
		ID:          uuid.New(),
		UserID:      userID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}

	s.publish(ctx, models.ExpenseCreated, e)
	return e, nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Expense, error) {
	e, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, s.mapErr(err, "get expense")
	}
	return e, nil
}

// Update replaces the mutable fields. Id, owner and creation time are kept.
func (s *ExpenseService) Update(ctx context.Context, userID, id uuid.UUID, in models.ExpenseInput) (*models.Expense, error) {
	e := &models.Expense{
		ID:          id,
		UserID:      userID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
		Category:    in.Category,
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.store.Update(ctx, e); err != nil {
		return nil, s.mapErr(err, "update expense")
	}

	s.publish(ctx, models.ExpenseUpdated, e)
	return e, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return s.mapErr(err, "delete expense")
	}

	if s.events != nil {
		event := models.ExpenseEvent{
			Type:      models.ExpenseDeleted,
			UserID:    userID.String(),
			ExpenseID: id.String(),
			Timestamp: s.now().UTC(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.log.Warn("failed to publish expense event", zap.String("type", string(event.Type)), zap.Error(err))
		}
	}
	return nil
}

// List returns one page of the user's expenses after normalizing q.
func (s *ExpenseService) List(ctx context.Context, userID uuid.UUID, q models.ExpenseQuery) (models.Page[models.Expense], error) {
	q, err := NormalizeQuery(q)
	if err != nil {
		return models.Page[models.Expense]{}, err
	}

	items, total, err := s.store.List(ctx, userID, q)
	if err != nil {
		return models.Page[models.Expense]{}, fmt.Errorf("list expenses: %w", err)
	}
	return models.NewPage(items, q.Page, q.Size, total), nil
}

// NormalizeQuery applies defaults and rejects out-of-range paging, unknown
// sort fields and inverted date ranges.
func NormalizeQuery(q models.ExpenseQuery) (models.ExpenseQuery, error) {
	errs := validation.Errors{}

	if q.Page < 0 {
		errs["page"] = "must be zero or greater"
	}
	switch {
	case q.Size == 0:
		q.Size = DefaultPageSize
	case q.Size < 0 || q.Size > MaxPageSize:
		errs["size"] = fmt.Sprintf("must be between 1 and %d", MaxPageSize)
	}
	if _, bad := errs["size"]; !bad && q.Page > maxOffset/q.Size {
		errs["page"] = fmt.Sprintf("must be at most %d for size %d", maxOffset/q.Size, q.Size)
	}

	if q.SortBy == "" {
		q.SortBy = DefaultSortBy
	} else if !database.IsSortableExpenseField(q.SortBy) {
		errs["sortBy"] = "is not a sortable field"
	}

	switch strings.ToLower(q.SortDir) {
	case "":
		q.SortDir = DefaultSortDir
	case "asc", "desc":
		q.SortDir = strings.ToLower(q.SortDir)
	default:
		errs["sortDir"] = "must be asc or desc"
	}

	if q.Category != "" && !q.Category.Valid() {
		errs["category"] = "is not a known category"
	}

	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		errs["startDate"] = "must not be after endDate"
	}

	if len(errs) > 0 {
		return q, errs
	}
	return q, nil
}

func (s *ExpenseService) mapErr(err error, op string) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrExpenseNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *ExpenseService) publish(ctx context.Context, typ models.ExpenseEventType, e *models.Expense) {
	if s.events == nil {
		return
	}
	resp := e.Response()
	event := models.ExpenseEvent{
		Type:      typ,
		UserID:    e.UserID.String(),
		ExpenseID: e.ID.String(),
		Expense:   &resp,
		Timestamp: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish expense event", zap.String("type", string(typ)), zap.Error(err))
	}
}
