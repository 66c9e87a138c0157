package models

// Verdict is the coarse quality bucket the server attaches to a score.
type Verdict string

const (
	VerdictBad      Verdict = "bad"
	VerdictModerate Verdict = "moderate"
	VerdictGood     Verdict = "good"
)

const (
	moderateThreshold = 0.4
	goodThreshold     = 0.6
)

// VerdictForScore buckets a score in [0,1]. Both thresholds are inclusive
// lower bounds: 0.4 is moderate and 0.6 is good.
func VerdictForScore(score float64) Verdict {
	switch {
	case score < moderateThreshold:
		return VerdictBad
	case score < goodThreshold:
		return VerdictModerate
	default:
		return VerdictGood
	}
}

func (v Verdict) IsValid() bool {
	switch v {
	case VerdictBad, VerdictModerate, VerdictGood:
		return true
	default:
		return false
	}
}

func (v Verdict) String() string {
	return string(v)
}
