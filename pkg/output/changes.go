package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/syncwave/syncwave/pkg/detect"
)

// WriteChanges renders detected changes in the requested format
func WriteChanges(w io.Writer, changes []detect.Change, format Format) error {
	switch format {
	case FormatJSON:
		return writeChangesJSON(w, changes)
	default:
		return writeChangesHuman(w, changes)
	}
}

// WriteChangesFile persists the change report to a file. Nothing is
// written when there are no changes.
func WriteChangesFile(path string, changes []detect.Change, format Format) error {
	if len(changes) == 0 {
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	return WriteChanges(file, changes, format)
}

func writeChangesHuman(w io.Writer, changes []detect.Change) error {
	if len(changes) == 0 {
		green.Fprintln(w, "Trees are in sync, nothing to do")
		return nil
	}

	var newCount, modCount, delCount int
	var newBytes, modBytes int64

	for _, ch := range changes {
		switch ch.Type {
		case detect.ChangeNew:
			green.Fprintf(w, "+ %s (%s)\n", ch.RelPath, FormatBytes(ch.Size))
			newCount++
			newBytes += ch.Size
		case detect.ChangeModified:
			yellow.Fprintf(w, "~ %s (%s)\n", ch.RelPath, FormatBytes(ch.Size))
			modCount++
			modBytes += ch.Size
		case detect.ChangeDeleted:
			red.Fprintf(w, "- %s\n", ch.RelPath)
			delCount++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d new (%s), %d modified (%s), %d deleted\n",
		newCount, FormatBytes(newBytes), modCount, FormatBytes(modBytes), delCount)
	return nil
}

func writeChangesJSON(w io.Writer, changes []detect.Change) error {
	out := struct {
		Generated time.Time       `json:"generated"`
		Total     int             `json:"total"`
		Changes   []detect.Change `json:"changes"`
	}{
		Generated: time.Now(),
		Total:     len(changes),
		Changes:   changes,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
