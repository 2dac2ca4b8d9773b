package lockmanager

// LockMode values are ordered by group mode priority:
// NonLock < IS < IX < S < SIX < X. The group mode of a request queue is the
// highest mode among its granted requests.
type LockMode int

const (
	NonLock LockMode = iota
	IntentionShared
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m LockMode) String() string {
	switch m {
	case NonLock:
		return "NON"
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	}
	return "UNKNOWN"
}

// compat is indexed by LockMode in declaration order:
// NON, IS, IX, S, SIX, X.
var compat = [6][6]bool{
	/*NON*/ {true, true, true, true, true, true},
	/*IS */ {true, true, true, true, true, false},
	/*IX */ {true, true, true, false, false, false},
	/*S  */ {true, true, false, true, false, false},
	/*SIX*/ {true, true, false, false, false, false},
	/*X  */ {true, false, false, false, false, false},
}

// IsCompatible reports whether two locks in the given modes may be held on
// the same resource by different transactions. It is symmetric.
func IsCompatible(lhs, rhs LockMode) bool {
	return compat[lhs][rhs] && compat[rhs][lhs]
}
