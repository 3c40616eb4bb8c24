package diff

import (
	"fmt"

	"github.com/archdrift/pkg/models"
)

const (
	DefaultMaxFiles = 50
	DefaultMaxLines = 5000
)

// Limits bounds the volume of a change request sent for analysis
type Limits struct {
	MaxFiles int
	MaxLines int
}

// DefaultLimits returns the built-in analysis limits
func DefaultLimits() Limits {
	return Limits{MaxFiles: DefaultMaxFiles, MaxLines: DefaultMaxLines}
}

// TruncationResult is the outcome of Truncate
type TruncationResult struct {
	Files        []models.ChangedFile
	WasTruncated bool
	Reason       string
}

// Truncate keeps the first MaxFiles files in source order. When the file count
// is within bounds but totalLines exceeds MaxLines, every file is kept and the
// result is only flagged. The file-count case wins when both limits are exceeded.
func Truncate(files []models.ChangedFile, totalLines int, limits Limits) TruncationResult {
	if limits.MaxFiles > 0 && len(files) > limits.MaxFiles {
		kept := make([]models.ChangedFile, limits.MaxFiles)
		copy(kept, files[:limits.MaxFiles])
		return TruncationResult{
			Files:        kept,
			WasTruncated: true,
			Reason: fmt.Sprintf("Diff truncated: exceeded %d-file limit (%d files). Only the first %d files were analyzed.",
				limits.MaxFiles, len(files), limits.MaxFiles),
		}
	}

	if limits.MaxLines > 0 && totalLines > limits.MaxLines {
		return TruncationResult{
			Files:        files,
			WasTruncated: true,
			Reason: fmt.Sprintf("Diff exceeds %d-line limit (%d lines changed). Analysis may be incomplete.",
				limits.MaxLines, totalLines),
		}
	}

	return TruncationResult{Files: files}
}

// TotalChangedLines sums additions and deletions over files
func TotalChangedLines(files []models.ChangedFile) int {
	total := 0
	for _, f := range files {
		total += f.Additions + f.Deletions
	}
	return total
}
