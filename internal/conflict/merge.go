package conflict

import (
	"strings"
	"unicode/utf8"

	"modsync/internal/syncerr"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MergeFunc combines the local and remote content of path.
type MergeFunc func(path string, local, remote []byte) ([]byte, error)

const (
	markerLocal  = "<<<<<<< local"
	markerMiddle = "======="
	markerRemote = ">>>>>>> remote"
)

// TextExtensions are registered with TextMerge by default.
var TextExtensions = []string{".txt", ".ini", ".json", ".xml", ".psc", ".md", ".yaml", ".yml", ".toml", ".cfg"}

// TextMerge is a line-based two-way merge. Lines only one side added are
// kept; regions both sides changed are wrapped in conflict markers.
func TextMerge(path string, local, remote []byte) ([]byte, error) {
	if !utf8.Valid(local) || !utf8.Valid(remote) {
		return nil, syncerr.New(syncerr.KindMergeUnsupported, "%s is not valid text", path)
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(remote), string(local))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out, ins, del strings.Builder
	flush := func() {
		switch {
		case ins.Len() > 0 && del.Len() > 0:
			out.WriteString(markerLocal + "\n")
			writeLine(&out, ins.String())
			out.WriteString(markerMiddle + "\n")
			writeLine(&out, del.String())
			out.WriteString(markerRemote + "\n")
		case ins.Len() > 0:
			out.WriteString(ins.String())
		case del.Len() > 0:
			out.WriteString(del.String())
		}
		ins.Reset()
		del.Reset()
	}

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			ins.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			del.WriteString(d.Text)
		case diffmatchpatch.DiffEqual:
			flush()
			out.WriteString(d.Text)
		}
	}
	flush()

	return []byte(out.String()), nil
}

func writeLine(b *strings.Builder, s string) {
	b.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		b.WriteByte('\n')
	}
}
