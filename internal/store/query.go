package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ActionSentinel/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidCriteria = errors.New("invalid query criteria")

var sortColumns = map[string]string{
	"createdAt":   "created_at",
	"created_at":  "created_at",
	"id":          "id",
	"userId":      "user_id",
	"user_id":     "user_id",
	"description": "description",
	"kind":        "kind",
}

// Criteria filters and pages an action query. Zero values mean "no filter"
// or the default.
type Criteria struct {
	Page          int        `json:"page"`
	Size          int        `json:"size"`
	UserID        string     `json:"user_id"`
	Kind          model.Kind `json:"kind"`
	CreatedFrom   *time.Time `json:"created_from"`
	CreatedTo     *time.Time `json:"created_to"`
	SortBy        []string   `json:"sort_by"`
	SortDirection string     `json:"sort_direction"`
}

// Normalize validates the criteria and fills in defaults.
func (c Criteria) Normalize() (Criteria, error) {
	if c.Page < 0 {
		return c, fmt.Errorf("%w: page must be non-negative", ErrInvalidCriteria)
	}
	if c.Size == 0 {
		c.Size = DefaultPageSize
	}
	if c.Size < 1 || c.Size > MaxPageSize {
		return c, fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidCriteria, MaxPageSize)
	}
	switch strings.ToUpper(c.SortDirection) {
	case "":
		c.SortDirection = "DESC"
	case "ASC", "DESC":
		c.SortDirection = strings.ToUpper(c.SortDirection)
	default:
		return c, fmt.Errorf("%w: sort direction must be ASC or DESC", ErrInvalidCriteria)
	}
	if len(c.SortBy) == 0 {
		c.SortBy = []string{"createdAt"}
	}
	for _, f := range c.SortBy {
		if _, ok := sortColumns[f]; !ok {
			return c, fmt.Errorf("%w: cannot sort by %q", ErrInvalidCriteria, f)
		}
	}
	if c.Kind != "" {
		k, err := model.ParseKind(string(c.Kind))
		if err != nil {
			return c, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
		}
		c.Kind = k
	}
	return c, nil
}

// Page is one slice of a query result.
type Page struct {
	Items         []model.Action `json:"actions"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	TotalElements int            `json:"total_elements"`
	TotalPages    int            `json:"total_pages"`
}

// Query returns the actions matching c.
func (s *Store) Query(ctx context.Context, c Criteria) (Page, error) {
	c, err := c.Normalize()
	if err != nil {
		return Page{}, err
	}

	var (
		where []string
		args  []any
	)
	if c.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, c.UserID)
	}
	if c.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(c.Kind))
	}
	if c.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, toMillis(*c.CreatedFrom))
	}
	if c.CreatedTo != nil {
		where = append(where, "created_at <= ?")
		args = append(args, toMillis(*c.CreatedTo))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM actions`+clause), args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count actions: %w", err)
	}

	order := make([]string, 0, len(c.SortBy)+1)
	for _, f := range c.SortBy {
		order = append(order, sortColumns[f]+" "+c.SortDirection)
	}
	order = append(order, "id "+c.SortDirection)

	q := `SELECT ` + actionColumns + ` FROM actions` + clause +
		` ORDER BY ` + strings.Join(order, ", ") + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), append(args, c.Size, c.Page*c.Size)...)
	if err != nil {
		return Page{}, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	items := make([]model.Action, 0, c.Size)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return Page{}, err
		}
		a, err := row.action()
		if err != nil {
			s.log.Error().Err(err).Int64("action_id", row.def.ID).Msg("Skipping unmappable action row")
			continue
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("query actions: %w", err)
	}

	return Page{
		Items:         items,
		Page:          c.Page,
		Size:          c.Size,
		TotalElements: total,
		TotalPages:    (total + c.Size - 1) / c.Size,
	}, nil
}
