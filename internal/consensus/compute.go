package consensus

import (
	"fmt"
	"strings"

	"github.com/johnayoung/jazamiti-consensus/internal/provider"
)

// ReasonNoServices is the reasoning attached to a result computed from zero verdicts.
const ReasonNoServices = "No AI services available for validation"

// excerptLen bounds how much of each verdict's reasoning is quoted.
const excerptLen = 100

// Result is the reconciled decision for one record.
type Result struct {
	FinalDecision    bool               `json:"final_decision"`
	Confidence       float64            `json:"confidence"`
	Verdicts         []provider.Verdict `json:"individual_verdicts"`
	ConsensusReached bool               `json:"consensus_reached"`
	Reasoning        string             `json:"reasoning"`
}

// Compute folds verdicts into one Result.
//
// The decision is a strict majority by count: a tie between valid and invalid
// verdicts yields false. Consensus is reached when either side has at least
// threshold verdicts. Confidence is the unweighted mean.
func Compute(verdicts []provider.Verdict, threshold int) Result {
	if len(verdicts) == 0 {
		return Result{
			Verdicts:  []provider.Verdict{},
			Reasoning: ReasonNoServices,
		}
	}

	var valid, invalid int
	var total float64
	for _, v := range verdicts {
		if v.IsValid {
			valid++
		} else {
			invalid++
		}
		total += v.Confidence
	}

	final := valid > invalid
	reached := valid >= threshold || invalid >= threshold

	return Result{
		FinalDecision:    final,
		Confidence:       total / float64(len(verdicts)),
		Verdicts:         verdicts,
		ConsensusReached: reached,
		Reasoning:        narrate(verdicts, valid, invalid, final, reached),
	}
}

func narrate(verdicts []provider.Verdict, valid, invalid int, final, reached bool) string {
	agreeing, label := invalid, "invalid"
	if final {
		agreeing, label = valid, "valid"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Consensus Analysis: %d/%d models agree the record is %s. ", agreeing, len(verdicts), label)
	if reached {
		b.WriteString("Strong consensus reached. ")
	} else {
		b.WriteString("Weak consensus - consider manual review. ")
	}

	b.WriteString("Individual model reasoning:")
	for _, v := range verdicts {
		fmt.Fprintf(&b, " %s (%.2f confidence): %s", v.Provider, v.Confidence, excerpt(v.Reasoning, excerptLen))
	}
	return b.String()
}

// excerpt returns the first n runes of s, marking truncation with "...".
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func fallback(err error) Result {
	return Result{
		Verdicts:  []provider.Verdict{},
		Reasoning: "All AI services failed: " + err.Error(),
	}
}
