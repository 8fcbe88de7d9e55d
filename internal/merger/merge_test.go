package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HRDAG/dsg/internal/manifest"
)

func fileEntry(path, hash string, size int64) *manifest.Entry {
	return &manifest.Entry{Type: manifest.EntryFile, File: &manifest.FileRef{
		Path: path, User: "pball@example.com", Filesize: size,
		MTime: "2025-01-01T00:00:00.000Z", Hash: hash,
	}}
}

func TestClassifyAllFifteenStates(t *testing.T) {
	a := fileEntry("p", "h1", 10)
	b := fileEntry("p", "h1", 10) // equal to a
	c := fileEntry("p", "h2", 20) // differs

	cases := []struct {
		name     string
		l, cEnt, r *manifest.Entry
		want     SyncState
	}{
		{"all present equal", a, b, b, StateAllEqual},
		{"L=C != R", a, b, c, StateLEqCNeR},
		{"L=R != C", a, c, b, StateLEqRNeC},
		{"C=R != L", c, a, b, StateCEqRNeL},
		{"all differ", fileEntry("p", "h1", 1), fileEntry("p", "h2", 2), fileEntry("p", "h3", 3), StateAllDiffer},
		{"deleted local, C=R", nil, a, b, StateDeletedLocalCEqR},
		{"deleted local, C!=R", nil, a, c, StateDeletedLocalCNeR},
		{"cache missing, L=R", a, nil, b, StateCacheMissingLEqR},
		{"cache missing, L!=R", a, nil, c, StateCacheMissingLNeR},
		{"remote deleted, L=C", a, b, nil, StateRemoteDeletedLEqC},
		{"remote deleted, L!=C", a, c, nil, StateRemoteDeletedLNeC},
		{"only remote", nil, nil, a, StateOnlyRemote},
		{"only cache", nil, a, nil, StateOnlyCache},
		{"only local", a, nil, nil, StateOnlyLocal},
		{"none", nil, nil, nil, StateNone},
	}

	seen := make(map[SyncState]bool)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.l, tc.cEnt, tc.r)
			assert.Equal(t, tc.want, got)
			seen[got] = true
		})
	}

	for _, s := range AllStates {
		assert.True(t, seen[s], "state %s not covered by test cases", s)
	}
}

func TestMergeTotalityAndSortedUnion(t *testing.T) {
	L := manifest.New()
	C := manifest.New()
	R := manifest.New()

	require.NoError(t, L.Put(fileEntry("only_local.csv", "h", 1)))
	require.NoError(t, C.Put(fileEntry("only_cache.csv", "h", 1)))
	require.NoError(t, R.Put(fileEntry("only_remote.csv", "h", 1)))

	shared := fileEntry("shared.csv", "h", 1)
	require.NoError(t, L.Put(shared))
	require.NoError(t, C.Put(shared))
	require.NoError(t, R.Put(shared))

	states := Merge(L, C, R)
	require.Len(t, states, 4)
	assert.Equal(t, StateOnlyLocal, states["only_local.csv"])
	assert.Equal(t, StateOnlyCache, states["only_cache.csv"])
	assert.Equal(t, StateOnlyRemote, states["only_remote.csv"])
	assert.Equal(t, StateAllEqual, states["shared.csv"])
}

func TestIsConflict(t *testing.T) {
	conflictStates := []SyncState{StateAllDiffer, StateDeletedLocalCNeR, StateCacheMissingLNeR, StateRemoteDeletedLNeC}
	for _, s := range conflictStates {
		assert.True(t, s.IsConflict(), s)
	}
	for _, s := range AllStates {
		isConflict := false
		for _, cs := range conflictStates {
			if s == cs {
				isConflict = true
			}
		}
		if !isConflict {
			assert.False(t, s.IsConflict(), s)
		}
	}
}
