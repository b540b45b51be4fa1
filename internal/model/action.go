package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrUnknownKind   = errors.New("unknown action kind")
	ErrInvalidAction = errors.New("invalid action")
)

// Kind identifies an action variant.
type Kind string

const (
	KindBuyOnDivergence  Kind = "BUY_ON_DIVERGENCE"
	KindSellOnDivergence Kind = "SELL_ON_DIVERGENCE"
	KindStopLoss         Kind = "STOP_LOSS"
)

// ParseKind maps an external kind name to a Kind. Names from the legacy
// API (BUY_AUTOMATIC, SELL_AUTOMATIC, SET_STOP_LOSS) are accepted too.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(KindBuyOnDivergence), "BUY_AUTOMATIC":
		return KindBuyOnDivergence, nil
	case string(KindSellOnDivergence), "SELL_AUTOMATIC":
		return KindSellOnDivergence, nil
	case string(KindStopLoss), "SET_STOP_LOSS":
		return KindStopLoss, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Direction is the side of the target an action watches. It is fixed when
// the action is built.
type Direction int

const (
	TriggerAbove Direction = iota
	TriggerBelow
)

func (d Direction) String() string {
	if d == TriggerBelow {
		return "BELOW"
	}
	return "ABOVE"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "ABOVE":
		*d = TriggerAbove
	case "BELOW":
		*d = TriggerBelow
	default:
		return fmt.Errorf("%w: direction %q", ErrInvalidAction, b)
	}
	return nil
}

// DirectionFromBelow converts the persisted "trigger below" flag.
func DirectionFromBelow(below bool) Direction {
	if below {
		return TriggerBelow
	}
	return TriggerAbove
}

// StopLossTerms are the inputs a stop-loss target is derived from.
type StopLossTerms struct {
	PurchasePrice   float64 `json:"purchase_price"`
	StopLossPercent float64 `json:"stop_loss_percent"`
}

// Action is a rule that decides each cycle whether a trade should fire.
// Values are built by the constructors below and handed around by copy;
// nothing on the evaluation path mutates them.
type Action struct {
	ID          int64         `json:"id"`
	UserID      string        `json:"user_id"`
	Description string        `json:"description"`
	Domain      Domain        `json:"context_domain"`
	Symbol      string        `json:"context_id"`
	Kind        Kind          `json:"kind"`
	TargetPrice float64       `json:"target_price"`
	Tolerance   float64       `json:"divergence_tolerance"`
	Direction   Direction     `json:"direction"`
	StopLoss    StopLossTerms `json:"stop_loss"`
	CreatedAt   time.Time     `json:"created_at"`
}

// TriggerBelow reports whether the action fires on prices under its target.
func (a Action) TriggerBelow() bool { return a.Direction == TriggerBelow }

// Definition is the kind-agnostic input used by the mapping layer.
type Definition struct {
	ID              int64
	UserID          string
	Description     string
	Kind            Kind
	Domain          Domain
	Symbol          string
	TargetPrice     float64
	Tolerance       float64
	TriggerBelow    bool
	PurchasePrice   float64
	StopLossPercent float64
	CreatedAt       time.Time
}

// Build dispatches a Definition to the constructor for its kind.
func Build(def Definition) (Action, error) {
	var (
		a   Action
		err error
	)
	switch def.Kind {
	case KindBuyOnDivergence:
		a, err = NewBuyOnDivergence(def.UserID, def.Description, def.Domain, def.Symbol,
			def.TargetPrice, def.Tolerance, DirectionFromBelow(def.TriggerBelow))
	case KindSellOnDivergence:
		a, err = NewSellOnDivergence(def.UserID, def.Description, def.Domain, def.Symbol,
			def.TargetPrice, def.Tolerance, DirectionFromBelow(def.TriggerBelow))
	case KindStopLoss:
		a, err = NewStopLoss(def.UserID, def.Description, def.Domain, def.Symbol,
			def.PurchasePrice, def.StopLossPercent)
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownKind, def.Kind)
	}
	if err != nil {
		return Action{}, err
	}
	a.ID = def.ID
	a.CreatedAt = def.CreatedAt
	return a, nil
}

// NewBuyOnDivergence builds a buy rule. Only the ABOVE direction can fire.
func NewBuyOnDivergence(userID, description string, domain Domain, symbol string, target, tolerance float64, dir Direction) (Action, error) {
	return newTargetPrice(KindBuyOnDivergence, userID, description, domain, symbol, target, tolerance, dir)
}

// NewSellOnDivergence builds a sell rule. Only the BELOW direction can fire.
func NewSellOnDivergence(userID, description string, domain Domain, symbol string, target, tolerance float64, dir Direction) (Action, error) {
	return newTargetPrice(KindSellOnDivergence, userID, description, domain, symbol, target, tolerance, dir)
}

// NewStopLoss builds a sell-below rule with target purchasePrice*(1-percent)
// and zero tolerance.
func NewStopLoss(userID, description string, domain Domain, symbol string, purchasePrice, percent float64) (Action, error) {
	if !finite(purchasePrice) || purchasePrice <= 0 {
		return Action{}, fmt.Errorf("%w: purchase price must be positive, got %v", ErrInvalidAction, purchasePrice)
	}
	if !finite(percent) || percent < 0 || percent >= 1 {
		return Action{}, fmt.Errorf("%w: stop-loss percent must be in [0,1), got %v", ErrInvalidAction, percent)
	}
	a, err := newTargetPrice(KindStopLoss, userID, description, domain, symbol,
		purchasePrice*(1-percent), 0, TriggerBelow)
	if err != nil {
		return Action{}, err
	}
	a.StopLoss = StopLossTerms{PurchasePrice: purchasePrice, StopLossPercent: percent}
	return a, nil
}

func newTargetPrice(kind Kind, userID, description string, domain Domain, symbol string, target, tolerance float64, dir Direction) (Action, error) {
	if !domain.Valid() {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	if strings.TrimSpace(symbol) == "" {
		return Action{}, fmt.Errorf("%w: context id is required", ErrInvalidAction)
	}
	if !finite(target) {
		return Action{}, fmt.Errorf("%w: target price must be finite", ErrInvalidAction)
	}
	if !finite(tolerance) || tolerance < 0 {
		return Action{}, fmt.Errorf("%w: divergence tolerance must be >= 0, got %v", ErrInvalidAction, tolerance)
	}
	if dir != TriggerAbove && dir != TriggerBelow {
		return Action{}, fmt.Errorf("%w: direction %d", ErrInvalidAction, dir)
	}
	return Action{
		UserID:      userID,
		Description: description,
		Domain:      domain,
		Symbol:      symbol,
		Kind:        kind,
		TargetPrice: target,
		Tolerance:   tolerance,
		Direction:   dir,
	}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
