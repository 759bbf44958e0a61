package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire and query format for expense dates.
const DateLayout = "2006-01-02"

type Category string

const (
	CategoryFood           Category = "FOOD"
	CategoryHousing        Category = "HOUSING"
	CategoryTransportation Category = "TRANSPORTATION"
	CategoryUtilities      Category = "UTILITIES"
	CategoryEntertainment  Category = "ENTERTAINMENT"
	CategoryHealthcare     Category = "HEALTHCARE"
	CategoryEducation      Category = "EDUCATION"
	CategoryPersonalCare   Category = "PERSONAL_CARE"
	CategoryMiscellaneous  Category = "MISCELLANEOUS"
)

var categoryLabels = map[Category]string{
	CategoryFood:           "Food",
	CategoryHousing:        "Housing",
	CategoryTransportation: "Transportation",
	CategoryUtilities:      "Utilities",
	CategoryEntertainment:  "Entertainment",
	CategoryHealthcare:     "Healthcare",
	CategoryEducation:      "Education",
	CategoryPersonalCare:   "Personal Care",
	CategoryMiscellaneous:  "Miscellaneous",
}

// Categories lists every category in display order.
var Categories = []Category{
	CategoryFood,
	CategoryHousing,
	CategoryTransportation,
	CategoryUtilities,
	CategoryEntertainment,
	CategoryHealthcare,
	CategoryEducation,
	CategoryPersonalCare,
	CategoryMiscellaneous,
}

func (c Category) Label() string {
	return categoryLabels[c]
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// ParseCategory accepts the enum name in any case, or the display label.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	c := Category(strings.ToUpper(strings.ReplaceAll(s, " ", "_")))
	if c.Valid() {
		return c, true
	}
	return "", false
}

type CategoryOption struct {
	Value Category `json:"value"`
	Label string   `json:"label"`
}

// Expense is a single stored transaction owned by exactly one user.
type Expense struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	Category    Category
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e *Expense) Response() ExpenseResponse {
	return ExpenseResponse{
		ID:            e.ID.String(),
		Description:   e.Description,
		Amount:        json.Number(e.Amount.StringFixed(2)),
		Date:          e.Date.Format(DateLayout),
		Category:      e.Category,
		CategoryLabel: e.Category.Label(),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

type ExpenseResponse struct {
	ID            string      `json:"id"`
	Description   string      `json:"description"`
	Amount        json.Number `json:"amount"`
	Date          string      `json:"date"`
	Category      Category    `json:"category"`
	CategoryLabel string      `json:"categoryLabel"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// ExpenseRequest is the create/replace body.
type ExpenseRequest struct {
	Description string          `json:"description" validate:"required,max=255"`
	Amount      decimal.Decimal `json:"amount" validate:"money"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Category    string          `json:"category" validate:"required,category"`
}

// ExpenseInput is a validated ExpenseRequest.
type ExpenseInput struct {
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	Category    Category
}

// Input converts a validated request. Callers must validate first.
func (r ExpenseRequest) Input() (ExpenseInput, error) {
	date, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return ExpenseInput{}, err
	}
	category, _ := ParseCategory(r.Category)
	return ExpenseInput{
		Description: strings.TrimSpace(r.Description),
		Amount:      r.Amount,
		Date:        date.UTC(),
		Category:    category,
	}, nil
}

// ExpenseQuery selects one page of a user's expenses. Zero values mean
// "no filter" for Category, StartDate and EndDate.
type ExpenseQuery struct {
	Page      int
	Size      int
	SortBy    string
	SortDir   string
	Category  Category
	StartDate *time.Time
	EndDate   *time.Time
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	CurrentPage   int   `json:"currentPage"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	Size          int   `json:"size"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// NewPage computes the page metadata for content at index page of a result
// set with total rows split into pages of size.
func NewPage[T any](content []T, page, size int, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if size > 0 {
		totalPages = int((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{
		Content:       content,
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalElements: total,
		Size:          size,
		First:         page == 0,
		Last:          page >= totalPages-1,
	}
}

// MapPage converts the content of a page, keeping its metadata.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, 0, len(p.Content))
	for _, v := range p.Content {
		out = append(out, fn(v))
	}
	return Page[U]{
		Content:       out,
		CurrentPage:   p.CurrentPage,
		TotalPages:    p.TotalPages,
		TotalElements: p.TotalElements,
		Size:          p.Size,
		First:         p.First,
		Last:          p.Last,
	}
}
