package model

// Verdict is the persisted outcome vocabulary of a judging pass.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictRE  Verdict = "RE"
	VerdictCE  Verdict = "CE"

	// VerdictPE is reserved in the storage vocabulary. No judging path produces it.
	VerdictPE Verdict = "PE"
)

// Valid reports whether v is one of the produced verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAC, VerdictWA, VerdictTLE, VerdictMLE, VerdictRE, VerdictCE:
		return true
	}
	return false
}

// Fatal reports whether a per-case verdict halts evaluation of later cases.
func (v Verdict) Fatal() bool {
	switch v {
	case VerdictTLE, VerdictMLE, VerdictRE, VerdictCE:
		return true
	}
	return false
}

// JudgeState is the lifecycle state of one judging pass.
type JudgeState string

const (
	StatePending   JudgeState = "Pending"
	StateCompiling JudgeState = "Compiling"
	StateRunning   JudgeState = "Running"
	StateCompleted JudgeState = "Completed"
	StateCancelled JudgeState = "Cancelled"
)

// Terminal reports whether no further transitions follow s.
func (s JudgeState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Failure kinds attached to per-case results for finer reporting than the verdict.
const (
	FailureOutputLimit   = "output_limit"
	FailureToolchain     = "toolchain_missing"
	FailureInternalError = "internal_error"
)
