package registry

import (
	"errors"
	"fmt"

	"freshtrace-system/internal/database/models"
)

// ErrIllegalTransition is returned when a batch is asked to move to a state
// the lifecycle does not allow from its current state.
var ErrIllegalTransition = errors.New("illegal state transition")

// State is a batch lifecycle state.
type State string

const (
	StateManufactured State = "manufactured"
	StateShipped      State = "shipped"
	StateInRetail     State = "in_retail"
	StateSelling      State = "selling"
	StateExpiringSoon State = "expiring_soon"
	StateDonated      State = "donated"
	StateSoldOut      State = "sold_out"
	StateDisposed     State = "disposed"
)

// transitions lists the allowed moves. Self-loops make scan replays and
// repeated sales idempotent; selling and expiring_soon return to in_retail
// when a new shipment of the same batch arrives. donated and sold_out can
// flip between each other so the last closing event wins; disposed accepts
// nothing.
var transitions = map[State][]State{
	StateManufactured: {StateShipped},
	StateShipped:      {StateShipped, StateInRetail},
	StateInRetail:     {StateInRetail, StateSelling, StateExpiringSoon, StateDonated, StateSoldOut, StateDisposed},
	StateSelling:      {StateSelling, StateInRetail, StateExpiringSoon, StateDonated, StateSoldOut, StateDisposed},
	StateExpiringSoon: {StateExpiringSoon, StateInRetail, StateSelling, StateDonated, StateSoldOut, StateDisposed},
	StateDonated:      {StateSoldOut, StateDisposed},
	StateSoldOut:      {StateDonated, StateDisposed},
	StateDisposed:     {},
}

// CanTransition reports whether a batch in state from may move to state to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ApplyTransition moves the batch to the target state, or reports why it
// cannot. The caller persists the batch.
func ApplyTransition(batch *models.Batch, to State) error {
	from := State(batch.Status)
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	batch.Status = string(to)
	return nil
}
