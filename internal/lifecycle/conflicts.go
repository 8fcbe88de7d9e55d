package lifecycle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HRDAG/dsg/internal/dsgerr"
)

// Resolution is the user's L/C/R annotation for one conflicting path
// (spec §6: "conflict resolution file").
type Resolution byte

const (
	ResolveLocal  Resolution = 'L'
	ResolveCache  Resolution = 'C'
	ResolveRemote Resolution = 'R'
)

const conflictsFileName = "conflicts.txt"

func (r *Repo) conflictsPath() string {
	return filepath.Join(r.Root, conflictsFileName)
}

// writeConflictsFile enumerates the conflicting paths for the user to
// annotate (spec §6). Paths are written in sorted order with an empty
// resolution column.
func (r *Repo) writeConflictsFile(paths []string) error {
	f, err := os.Create(r.conflictsPath())
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "lifecycle: create conflicts.txt", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# Annotate each path with L (keep local), C (keep cache), or R (keep remote),")
	fmt.Fprintln(w, "# then re-run sync. Lines are <path><TAB><resolution>.")
	for _, p := range paths {
		fmt.Fprintf(w, "%s\t\n", p)
	}
	return w.Flush()
}

// readConflictsFile parses a previously-written (and now user-annotated)
// conflicts.txt. Unannotated or malformed lines are simply omitted from
// the result, leaving that path still unresolved.
func (r *Repo) readConflictsFile() (map[string]Resolution, error) {
	data, err := os.ReadFile(r.conflictsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dsgerr.Wrap(dsgerr.KindIO, "lifecycle: read conflicts.txt", err)
	}

	out := map[string]Resolution{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		path := fields[0]
		annotation := strings.ToUpper(strings.TrimSpace(fields[1]))
		if len(annotation) != 1 {
			continue
		}
		switch Resolution(annotation[0]) {
		case ResolveLocal, ResolveCache, ResolveRemote:
			out[path] = Resolution(annotation[0])
		}
	}
	return out, nil
}

// removeConflictsFile deletes conflicts.txt once every conflict it
// named has been resolved and the sync that resolves them completes.
func (r *Repo) removeConflictsFile() error {
	err := os.Remove(r.conflictsPath())
	if err != nil && !os.IsNotExist(err) {
		return dsgerr.Wrap(dsgerr.KindIO, "lifecycle: remove conflicts.txt", err)
	}
	return nil
}
