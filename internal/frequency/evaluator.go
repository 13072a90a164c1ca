package frequency

// Verdict classifies a successfully parsed reading. A reading that could not
// be taken has no verdict at all.
type Verdict string

const (
	Pass Verdict = "PASS"
	Fail Verdict = "FAIL"
)

// Evaluate returns Pass when value lies inside the inclusive window
// [target - window, target + window].
func Evaluate(value float64, params TestParameters) Verdict {
	window := params.Window()
	if params.TargetHz-window <= value && value <= params.TargetHz+window {
		return Pass
	}
	return Fail
}
