package policy

// #region imports
import (
	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
)

// #endregion

// #region reward

const (
	rewardSuccess       = 1.0
	rewardFailure       = -1.0
	bonusAccepted       = 2.0
	bonusPositive       = 2.0
	penaltyNegative     = -1.0
	rewardRejectedFloor = -1.0
)

// BaseReward is +1 for a successful remediation and -1 otherwise.
func BaseReward(outcome deploy.Status) float64 {
	if outcome == deploy.StatusSuccess {
		return rewardSuccess
	}
	return rewardFailure
}

// ShapeReward combines the outcome with an optional rating.
// rejected forces -1; accepted adds +2 only on top of a positive base;
// positive adds +2, neutral 0, negative -1. An empty value leaves the base.
func ShapeReward(outcome deploy.Status, v feedback.Value) float64 {
	base := BaseReward(outcome)
	switch v {
	case feedback.ValueRejected:
		return rewardRejectedFloor
	case feedback.ValueAccepted:
		if base > 0 {
			return base + bonusAccepted
		}
	case feedback.ValuePositive:
		return base + bonusPositive
	case feedback.ValueNegative:
		return base + penaltyNegative
	}
	return base
}

// #endregion
