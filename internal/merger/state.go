// Package merger implements dsg's three-way classification of every path
// visible across the Local, Cache, and Remote manifests into one of
// fifteen SyncStates (spec §4.3).
package merger

// SyncState names one cell of the 3-bit L/C/R presence grid, subdivided
// by pairwise equality where more than one side is present.
type SyncState string

const (
	StateAllEqual          SyncState = "sLCR__all_eq"
	StateLEqCNeR           SyncState = "sLCR__L_eq_C_ne_R"
	StateLEqRNeC           SyncState = "sLCR__L_eq_R_ne_C"
	StateCEqRNeL           SyncState = "sLCR__C_eq_R_ne_L"
	StateAllDiffer         SyncState = "sLCR__all_ne"
	StateDeletedLocalCEqR  SyncState = "sxLCR__C_eq_R"
	StateDeletedLocalCNeR  SyncState = "sxLCR__C_ne_R"
	StateCacheMissingLEqR  SyncState = "sLxCR__L_eq_R"
	StateCacheMissingLNeR  SyncState = "sLxCR__L_ne_R"
	StateRemoteDeletedLEqC SyncState = "sLCxR__L_eq_C"
	StateRemoteDeletedLNeC SyncState = "sLCxR__L_ne_C"
	StateOnlyRemote        SyncState = "sxLCxR__only_R"
	StateOnlyCache         SyncState = "sxLCRx__only_C"
	StateOnlyLocal         SyncState = "sLxCxR__only_L"
	StateNone              SyncState = "sxLxCxR__none"
)

// AllStates enumerates all fifteen SyncStates, for property tests.
var AllStates = []SyncState{
	StateAllEqual, StateLEqCNeR, StateLEqRNeC, StateCEqRNeL, StateAllDiffer,
	StateDeletedLocalCEqR, StateDeletedLocalCNeR,
	StateCacheMissingLEqR, StateCacheMissingLNeR,
	StateRemoteDeletedLEqC, StateRemoteDeletedLNeC,
	StateOnlyRemote, StateOnlyCache, StateOnlyLocal, StateNone,
}

// IsConflict reports whether a state represents an unresolved conflict
// that must be surfaced via conflicts.txt before any transaction begins
// (spec §4.4).
func (s SyncState) IsConflict() bool {
	switch s {
	case StateAllDiffer, StateDeletedLocalCNeR, StateCacheMissingLNeR, StateRemoteDeletedLNeC:
		return true
	default:
		return false
	}
}
