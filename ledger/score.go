/*
score.go - Derived green score

The green score is never authoritative state: it is a pure function of the
current claim and spend-transaction counts plus the account's verification
flags, recomputed on every claim/redeem and on demand. Because it is always
derived, it self-corrects even if a previous write was lost.

FORMULA:
  base 600
  + 50 if KYC complete
  + 50 if fraud clear
  + min(5 x claim count, 150)
  + min(3 x spend-transaction count, 100)
  capped at 1000
*/
package ledger

const (
	scoreBase          = 600
	scoreKYCBonus      = 50
	scoreFraudBonus    = 50
	scorePerClaim      = 5
	scoreClaimCap      = 150
	scorePerSpend      = 3
	scoreSpendCap      = 100
	scoreCeiling       = 1000
)

// ScoreInputs are the facts the green score derives from.
type ScoreInputs struct {
	KYCComplete bool
	FraudClear  bool
	ClaimCount  int
	SpendCount  int // transactions with a negative amount
}

// ComputeScore derives the green score from its inputs.
func ComputeScore(in ScoreInputs) int {
	score := scoreBase
	if in.KYCComplete {
		score += scoreKYCBonus
	}
	if in.FraudClear {
		score += scoreFraudBonus
	}
	score += min(scorePerClaim*in.ClaimCount, scoreClaimCap)
	score += min(scorePerSpend*in.SpendCount, scoreSpendCap)
	return min(score, scoreCeiling)
}
