package scoring

import (
	"fmt"

	"github.com/mathiasgse/screenfree/internal/rubric"
)

// GateAction is the routing decision for a scored candidate.
type GateAction string

const (
	GateAutoReject  GateAction = "auto-reject"
	GatePass        GateAction = "pass"
	GateAutoPromote GateAction = "auto-promote"
)

// GateResult is an action with its explanation.
type GateResult struct {
	Action GateAction
	Reason string
}

// Gate routes a score: at or below AutoReject is rejected, at or above
// AutoPromote goes to the maybe pile, anything else waits for review.
func Gate(score int, t rubric.Thresholds) GateResult {
	switch {
	case score <= t.AutoReject:
		return GateResult{
			Action: GateAutoReject,
			Reason: fmt.Sprintf("Score %d is below auto-reject threshold (%d)", score, t.AutoReject),
		}
	case score >= t.AutoPromote:
		return GateResult{
			Action: GateAutoPromote,
			Reason: fmt.Sprintf("Score %d meets auto-promote threshold (%d)", score, t.AutoPromote),
		}
	default:
		return GateResult{
			Action: GatePass,
			Reason: fmt.Sprintf("Score %d requires manual review", score),
		}
	}
}
