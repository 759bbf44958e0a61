package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
)

// ExpenseHandler serves the caller's expenses.
type ExpenseHandler struct {
	auth     *services.AuthService
	expenses *services.ExpenseService
	validate *validation.Validator
	log      *zap.Logger
}

func NewExpenseHandler(auth *services.AuthService, expenses *services.ExpenseService, validate *validation.Validator, log *zap.Logger) *ExpenseHandler {
	return &ExpenseHandler{auth: auth, expenses: expenses, validate: validate, log: log.Named("expense_handler")}
}

// List handles GET /api/expenses.
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.CurrentUserID(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	q, err := parseExpenseQuery(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	page, err := h.expenses.List(r.Context(), userID, q)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, models.MapPage(page, func(e models.Expense) models.ExpenseResponse {
		return e.Response()
	}))
}

// Create handles POST /api/expenses.
func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.CurrentUserID(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	in, err := h.decodeExpense(w, r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	e, err := h.expenses.Create(r.Context(), userID, in)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, e.Response())
}

// Get handles GET /api/expenses/{id}.
func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.target(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	e, err := h.expenses.Get(r.Context(), userID, id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, e.Response())
}

// Update handles PUT /api/expenses/{id}.
func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.target(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	in, err := h.decodeExpense(w, r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	e, err := h.expenses.Update(r.Context(), userID, id, in)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, e.Response())
}

// Delete handles DELETE /api/expenses/{id}.
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.target(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	if err := h.expenses.Delete(r.Context(), userID, id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Categories handles GET /api/categories.
func Categories(w http.ResponseWriter, r *http.Request) {
	options := make([]models.CategoryOption, 0, len(models.Categories))
	for _, c := range models.Categories {
		options = append(options, models.CategoryOption{Value: c, Label: c.Label()})
	}
	writeJSON(w, http.StatusOK, options)
}

// target resolves the caller and the {id} path parameter. A malformed id
// cannot name any expense, so it is reported as not found.
func (h *ExpenseHandler) target(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := h.auth.CurrentUserID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, services.ErrExpenseNotFound
	}
	return userID, id, nil
}

func (h *ExpenseHandler) decodeExpense(w http.ResponseWriter, r *http.Request) (models.ExpenseInput, error) {
	var req models.ExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return models.ExpenseInput{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return models.ExpenseInput{}, err
	}
	return req.Input()
}

// parseExpenseQuery reads paging, sorting and filter parameters. Range and
// whitelist checks happen in the service.
func parseExpenseQuery(r *http.Request) (models.ExpenseQuery, error) {
	values := r.URL.Query()
	errs := validation.Errors{}
	q := models.ExpenseQuery{
		SortBy:  values.Get("sortBy"),
		SortDir: values.Get("sortDir"),
	}

	intParam := func(name string, dst *int) {
		raw := values.Get(name)
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs[name] = "must be an integer"
			return
		}
		*dst = n
	}
	intParam("page", &q.Page)
	intParam("size", &q.Size)

	if raw := values.Get("category"); raw != "" {
		c, ok := models.ParseCategory(raw)
		if !ok {
			errs["category"] = "is not a known category"
		}
		q.Category = c
	}

	dateParam := func(name string) *time.Time {
		raw := values.Get(name)
		if raw == "" {
			return nil
		}
		t, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			errs[name] = "must be a date in YYYY-MM-DD format"
			return nil
		}
		return &t
	}
	q.StartDate = dateParam("startDate")
	q.EndDate = dateParam("endDate")

	if len(errs) > 0 {
		return q, errs
	}
	return q, nil
}
