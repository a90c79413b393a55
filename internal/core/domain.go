package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date used on the wire and in storage.
const DateLayout = "2006-01-02"

const (
	MaxCategoryName = 100
	MaxNoteLength   = 500
)

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Category is either top-level (Parent nil) or a subcategory of a
	// top-level category. Nesting never goes deeper than one level.
	Category struct {
		ID     int64     `json:"id"`
		Name   string    `json:"name"`
		Parent *Category `json:"parent,omitempty"`
	}

	Expense struct {
		ID         int64    `json:"id"`
		Category   Category `json:"category"`
		Count      int      `json:"count"`
		UnitPrice  Money    `json:"unitPrice"`
		TotalPrice Money    `json:"totalPrice"`
		Date       Date     `json:"localDate"`
		Note       string   `json:"note,omitempty"`
	}

	// ExpensePatch carries the optional fields of an expense update.
	// Count and UnitPrice are applied together or not at all.
	ExpensePatch struct {
		CategoryID *int64
		Date       *Date
		Count      *int
		UnitPrice  *Money
		Note       *string
	}
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCount    = errors.New("invalid count")
	ErrInvalidID       = errors.New("invalid id")
	ErrEmptyName       = errors.New("empty category name")
	ErrNameTooLong     = errors.New("category name too long (max 100 characters)")
	ErrNoteTooLong     = errors.New("note too long (max 500 characters)")
	ErrMissingCategory = errors.New("missing category")
	ErrNestedCategory  = errors.New("subcategories cannot have subcategories")
	ErrCategoryInUse   = errors.New("category has expenses")
	ErrDuplicateName   = errors.New("category name already exists")
	ErrInvalidFilter   = errors.New("invalid filter")
)

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar day in UTC.
func Today() Date {
	y, m, d := time.Now().UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the date as YYYY-MM-DD; the zero date renders empty.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsTopLevel reports whether the category has no parent.
func (c Category) IsTopLevel() bool {
	return c.Parent == nil
}

// RootID returns the id of the top-level category this category belongs to.
func (c Category) RootID() int64 {
	if c.Parent != nil {
		return c.Parent.ID
	}
	return c.ID
}

// ValidateCategoryName trims and checks a category name.
func ValidateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if len(name) > MaxCategoryName {
		return "", ErrNameTooLong
	}
	return name, nil
}

// Normalize fills defaults and derives the total price.
func (e *Expense) Normalize() {
	if e.Count == 0 {
		e.Count = 1
	}
	e.Note = strings.TrimSpace(e.Note)
	e.TotalPrice = e.UnitPrice.Times(e.Count)
}

func (e Expense) Validate() error {
	if e.Category.ID <= 0 {
		return ErrMissingCategory
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.Count < 1 {
		return ErrInvalidCount
	}
	if err := e.UnitPrice.Validate(); err != nil {
		return err
	}
	if e.TotalPrice != e.UnitPrice.Times(e.Count) {
		return fmt.Errorf("%w: total does not match unit price and count", ErrInvalidAmount)
	}
	if len(e.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// Apply merges the patch into the expense and recomputes the total.
// Count and unit price are only taken when the price is positive and
// the count non-zero.
func (p ExpensePatch) Apply(e *Expense) {
	if p.CategoryID != nil {
		e.Category = Category{ID: *p.CategoryID}
	}
	if p.Date != nil && !p.Date.IsZero() {
		e.Date = *p.Date
	}
	if p.Count != nil && p.UnitPrice != nil && *p.Count != 0 && p.UnitPrice.Cents > 0 {
		e.Count = *p.Count
		e.UnitPrice = *p.UnitPrice
	}
	if p.Note != nil {
		e.Note = strings.TrimSpace(*p.Note)
	}
	e.TotalPrice = e.UnitPrice.Times(e.Count)
}
