// Package output renders renumber results for the operator.
package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jbweber/renumber/internal/renumber"
)

// FormatResult renders a completed renumber operation as a human-readable
// summary: the executed renames as a table, then where the config and the
// audit artifacts ended up.
func FormatResult(r *renumber.Result) string {
	var buf bytes.Buffer

	if len(r.Renames) > 0 {
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "POOL\tBACKEND\tOLD VOLUME\tNEW VOLUME")
		for _, rn := range r.Renames {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rn.Pool, rn.Backend, rn.OldName, rn.NewName)
		}
		_ = w.Flush()
	} else {
		buf.WriteString("No volumes needed renaming\n")
	}

	if r.Relocation != nil {
		fmt.Fprintf(&buf, "\nLocal state moved: %s -> %s\n", r.Relocation.OldPath, r.Relocation.NewPath)
	}

	fmt.Fprintf(&buf, "\nConfiguration: %s\n", r.NewConfigPath)
	fmt.Fprintf(&buf, "Backup:        %s\n", r.BackupDir)
	fmt.Fprintf(&buf, "Check %s for the full rename trail\n", r.MappingPath)

	switch {
	case r.StartRequested && r.Started:
		buf.WriteString("Guest started\n")
	case r.StartRequested && r.StartErr != nil:
		fmt.Fprintf(&buf, "Warning: guest did not start: %v\n", r.StartErr)
	}

	return buf.String()
}
