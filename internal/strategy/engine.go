package strategy

import (
	"fmt"
	"math"

	"ActionSentinel/internal/model"
)

// ShouldTake decides whether an action fires against the given snapshot.
// Missing data is not an error; it simply does not trigger.
func ShouldTake(a model.Action, snap *model.Snapshot) (bool, error) {
	switch a.Kind {
	case model.KindBuyOnDivergence:
		if a.Direction != model.TriggerAbove {
			return false, nil
		}
		return diverges(a, snap)
	case model.KindSellOnDivergence, model.KindStopLoss:
		if a.Direction != model.TriggerBelow {
			return false, nil
		}
		return diverges(a, snap)
	default:
		return false, fmt.Errorf("%w: %q", model.ErrUnknownKind, a.Kind)
	}
}

// Divergence returns |price - target| for the action's instrument.
func Divergence(a model.Action, snap *model.Snapshot) (float64, bool, error) {
	price, ok, err := snap.Value(a.Domain, a.Symbol)
	if err != nil || !ok {
		return 0, false, err
	}
	return math.Abs(price - a.TargetPrice), true, nil
}

func diverges(a model.Action, snap *model.Snapshot) (bool, error) {
	d, ok, err := Divergence(a, snap)
	if err != nil {
		return false, fmt.Errorf("read %s/%s: %w", a.Domain, a.Symbol, err)
	}
	return ok && d > a.Tolerance, nil
}
