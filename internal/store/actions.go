package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ActionSentinel/internal/model"
)

const actionColumns = `id, user_id, description, kind, context_domain, context_key,
	target_price, divergence_tolerance, trigger_below, purchase_price, stop_loss_percent, created_at`

// Patch holds the fields an existing action may change. Nil fields are
// left alone. Which numeric fields apply depends on the action kind.
type Patch struct {
	Description     *string  `json:"description,omitempty"`
	TargetPrice     *float64 `json:"target_price,omitempty"`
	Tolerance       *float64 `json:"divergence_tolerance,omitempty"`
	PurchasePrice   *float64 `json:"purchase_price,omitempty"`
	StopLossPercent *float64 `json:"stop_loss_percent,omitempty"`
}

func (p Patch) apply(def *model.Definition) {
	if p.Description != nil {
		def.Description = *p.Description
	}
	switch def.Kind {
	case model.KindBuyOnDivergence, model.KindSellOnDivergence:
		if p.TargetPrice != nil {
			def.TargetPrice = *p.TargetPrice
		}
		if p.Tolerance != nil {
			def.Tolerance = *p.Tolerance
		}
	case model.KindStopLoss:
		if p.PurchasePrice != nil {
			def.PurchasePrice = *p.PurchasePrice
		}
		if p.StopLossPercent != nil {
			def.StopLossPercent = *p.StopLossPercent
		}
	}
}

// Create validates and inserts a new action and records an ACTION_ADDED
// event in the same transaction.
func (s *Store) Create(ctx context.Context, def model.Definition) (model.Action, error) {
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	def.ID = 0
	a, err := model.Build(def)
	if err != nil {
		return model.Action{}, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		now := toMillis(time.Now())
		q := s.rebind(`INSERT INTO actions
			(user_id, description, kind, context_domain, context_key,
			 target_price, divergence_tolerance, trigger_below, purchase_price, stop_loss_percent,
			 created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
			RETURNING id`)
		if err := tx.QueryRowContext(ctx, q,
			a.UserID, a.Description, string(a.Kind), string(a.Domain), a.Symbol,
			a.TargetPrice, a.Tolerance, a.TriggerBelow(), stopLossArg(a, true), stopLossArg(a, false),
			toMillis(a.CreatedAt), now,
		).Scan(&a.ID); err != nil {
			return fmt.Errorf("insert action: %w", err)
		}
		_, err := s.appendEvent(ctx, tx, model.EventAdded, a.ID, a.UserID)
		return err
	})
	if err != nil {
		return model.Action{}, err
	}

	s.log.Info().Int64("action_id", a.ID).Str("user_id", a.UserID).Str("kind", string(a.Kind)).Msg("Action created")
	return a, nil
}

// Patch updates an existing action and records an ACTION_UPDATED event.
// Kind, instrument and direction cannot change.
func (s *Store) Patch(ctx context.Context, id int64, p Patch) (model.Action, error) {
	var out model.Action
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		def, err := s.loadDefinition(ctx, tx, id)
		if err != nil {
			return err
		}
		p.apply(&def)
		a, err := model.Build(def)
		if err != nil {
			return err
		}

		q := s.rebind(`UPDATE actions SET
			description = ?, target_price = ?, divergence_tolerance = ?,
			purchase_price = ?, stop_loss_percent = ?, updated_at = ?
			WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, q,
			a.Description, a.TargetPrice, a.Tolerance,
			stopLossArg(a, true), stopLossArg(a, false), toMillis(time.Now()), id,
		); err != nil {
			return fmt.Errorf("update action %d: %w", id, err)
		}
		if _, err := s.appendEvent(ctx, tx, model.EventUpdated, a.ID, a.UserID); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return model.Action{}, err
	}

	s.log.Info().Int64("action_id", id).Msg("Action updated")
	return out, nil
}

// Delete removes an action and records an ACTION_DELETED event.
func (s *Store) Delete(ctx context.Context, id int64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT user_id FROM actions WHERE id = ?`), id).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup action %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM actions WHERE id = ?`), id); err != nil {
			return fmt.Errorf("delete action %d: %w", id, err)
		}
		_, err = s.appendEvent(ctx, tx, model.EventDeleted, id, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info().Int64("action_id", id).Msg("Action deleted")
	return nil
}

// Get returns one action or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (model.Action, error) {
	def, err := s.loadDefinition(ctx, s.db, id)
	if err != nil {
		return model.Action{}, err
	}
	return model.Build(def)
}

// LoadOne implements the cache loader. A missing row is reported as
// found=false rather than an error.
func (s *Store) LoadOne(ctx context.Context, id int64) (model.Action, bool, error) {
	a, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return model.Action{}, false, nil
	}
	if err != nil {
		return model.Action{}, false, err
	}
	return a, true, nil
}

// LoadAll returns every stored action. Rows that no longer map to a valid
// action are logged and skipped.
func (s *Store) LoadAll(ctx context.Context) ([]model.Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	defer rows.Close()

	var out []model.Action
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		a, err := row.action()
		if err != nil {
			s.log.Error().Err(err).Int64("action_id", row.def.ID).Msg("Skipping unmappable action row")
			continue
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	return out, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) loadDefinition(ctx context.Context, q queryRower, id int64) (model.Definition, error) {
	row, err := scanRow(q.QueryRowContext(ctx, s.rebind(`SELECT `+actionColumns+` FROM actions WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Definition{}, ErrNotFound
	}
	if err != nil {
		return model.Definition{}, err
	}
	return row.definition()
}

// actionRow is a scanned row before its kind and domain are mapped.
type actionRow struct {
	def    model.Definition
	kind   string
	domain string
}

func scanRow(r rowScanner) (actionRow, error) {
	var (
		row             actionRow
		purchase, pct   sql.NullFloat64
		createdAtMillis int64
	)
	def := &row.def
	if err := r.Scan(&def.ID, &def.UserID, &def.Description, &row.kind, &row.domain, &def.Symbol,
		&def.TargetPrice, &def.Tolerance, &def.TriggerBelow, &purchase, &pct, &createdAtMillis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return row, err
		}
		return row, fmt.Errorf("scan action: %w", err)
	}
	def.PurchasePrice = purchase.Float64
	def.StopLossPercent = pct.Float64
	def.CreatedAt = fromMillis(createdAtMillis)
	return row, nil
}

func (r actionRow) definition() (model.Definition, error) {
	def := r.def
	k, err := model.ParseKind(r.kind)
	if err != nil {
		return def, fmt.Errorf("action %d: %w", def.ID, err)
	}
	d, err := model.ParseDomain(r.domain)
	if err != nil {
		return def, fmt.Errorf("action %d: %w", def.ID, err)
	}
	def.Kind = k
	def.Domain = d
	return def, nil
}

func (r actionRow) action() (model.Action, error) {
	def, err := r.definition()
	if err != nil {
		return model.Action{}, err
	}
	a, err := model.Build(def)
	if err != nil {
		return model.Action{}, fmt.Errorf("action %d: %w", def.ID, err)
	}
	return a, nil
}

func stopLossArg(a model.Action, purchase bool) sql.NullFloat64 {
	if a.Kind != model.KindStopLoss {
		return sql.NullFloat64{}
	}
	if purchase {
		return sql.NullFloat64{Float64: a.StopLoss.PurchasePrice, Valid: true}
	}
	return sql.NullFloat64{Float64: a.StopLoss.StopLossPercent, Valid: true}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
