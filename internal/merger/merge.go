package merger

import (
	"sort"

	"github.com/HRDAG/dsg/internal/manifest"
)

// eq compares two present entries using the hash-aware comparator: deep
// when both sides carry real hashes, shallow otherwise (spec §4.3).
func eq(a, b *manifest.Entry) bool {
	if a.Type == manifest.EntryFile && b.Type == manifest.EntryFile &&
		a.File.Hash != manifest.UnknownHash && b.File.Hash != manifest.UnknownHash {
		return manifest.EqDeep(a, b)
	}
	return manifest.EqShallow(a, b)
}

// Classify returns the SyncState for one path given its (possibly nil)
// entry on each of Local, Cache, and Remote.
func Classify(l, c, r *manifest.Entry) SyncState {
	bits := 0
	if l != nil {
		bits |= 0b100
	}
	if c != nil {
		bits |= 0b010
	}
	if r != nil {
		bits |= 0b001
	}

	switch bits {
	case 0b111:
		lc, lr, cr := eq(l, c), eq(l, r), eq(c, r)
		switch {
		case lc && lr && cr:
			return StateAllEqual
		case lc && !lr:
			return StateLEqCNeR
		case lr && !lc:
			return StateLEqRNeC
		case cr && !lc:
			return StateCEqRNeL
		default:
			return StateAllDiffer
		}
	case 0b011: // C and R present, L absent
		if eq(c, r) {
			return StateDeletedLocalCEqR
		}
		return StateDeletedLocalCNeR
	case 0b101: // L and R present, C absent
		if eq(l, r) {
			return StateCacheMissingLEqR
		}
		return StateCacheMissingLNeR
	case 0b110: // L and C present, R absent
		if eq(l, c) {
			return StateRemoteDeletedLEqC
		}
		return StateRemoteDeletedLNeC
	case 0b001:
		return StateOnlyRemote
	case 0b010:
		return StateOnlyCache
	case 0b100:
		return StateOnlyLocal
	default:
		return StateNone
	}
}

// Merge classifies every path appearing in any of L, C, R and returns
// the full path -> SyncState map. Iteration is over the sorted union of
// path sets, as spec §4.3 requires for determinism; the returned map is
// unordered (Go maps have no order), which is fine since SyncState
// computation does not depend on map iteration order.
func Merge(L, C, R *manifest.Manifest) map[string]SyncState {
	union := make(map[string]struct{})
	for _, p := range L.Paths() {
		union[p] = struct{}{}
	}
	for _, p := range C.Paths() {
		union[p] = struct{}{}
	}
	for _, p := range R.Paths() {
		union[p] = struct{}{}
	}

	sorted := make([]string, 0, len(union))
	for p := range union {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	out := make(map[string]SyncState, len(sorted))
	for _, p := range sorted {
		out[p] = Classify(L.Get(p), C.Get(p), R.Get(p))
	}
	return out
}
