package fileops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syncwave/syncwave/pkg/models"
)

// Preview describes what an operation would do without doing it
type Preview struct {
	Operation         *models.Operation `json:"operation"`
	EstimatedBytes    int64             `json:"estimated_bytes"`
	DestinationExists bool              `json:"destination_exists"`
	CrossDevice       bool              `json:"cross_device"`
	Warnings          []string          `json:"warnings,omitempty"`
}

// PreviewOperation inspects the filesystem state an operation would touch.
// It never mutates anything. Conditions that would make the live run fail
// or behave differently are reported as warnings rather than errors, so a
// dry run can show the whole plan.
func (e *Executor) PreviewOperation(ctx context.Context, op *models.Operation) (*Preview, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &Preview{Operation: op}

	var srcInfo os.FileInfo
	if op.Type.NeedsSource() {
		info, err := os.Stat(op.Source)
		switch {
		case os.IsNotExist(err):
			if op.Type == models.OpDelete {
				p.Warnings = append(p.Warnings, "target already absent, delete will be a no-op")
			} else {
				p.Warnings = append(p.Warnings, fmt.Sprintf("source does not exist: %s", op.Source))
			}
		case err != nil:
			p.Warnings = append(p.Warnings, fmt.Sprintf("cannot stat source: %v", err))
		default:
			srcInfo = info
			p.EstimatedBytes = info.Size()
		}
	}

	if op.Type.NeedsDestination() {
		p.DestinationExists = pathExists(op.Destination)
	}

	switch op.Type {
	case models.OpCreate:
		p.EstimatedBytes = int64(len(op.Content))
		if p.DestinationExists {
			p.Warnings = append(p.Warnings, fmt.Sprintf("destination already exists, create will fail: %s", op.Destination))
		}
	case models.OpUpdate:
		if !p.DestinationExists {
			p.Warnings = append(p.Warnings, "destination does not exist, update behaves like a plain copy")
		}
	case models.OpMove:
		if srcInfo != nil {
			srcDev, srcOK := deviceOf(op.Source)
			dstDev, dstOK := deviceOf(filepath.Dir(op.Destination))
			if srcOK && dstOK && srcDev != dstDev {
				p.CrossDevice = true
				p.Warnings = append(p.Warnings, "source and destination are on different filesystems, move will copy then delete instead of an atomic rename")
			}
		}
	}

	return p, nil
}
