package diff

import (
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/archdrift/pkg/models"
)

const devNull = "/dev/null"

// ParseFiles reads a unified multi-file diff into per-file change records.
// Used when the platform only returns the raw diff without file statistics.
func ParseFiles(rawDiff string) ([]models.ChangedFile, error) {
	if strings.TrimSpace(rawDiff) == "" {
		return nil, nil
	}

	fileDiffs, err := godiff.NewMultiFileDiffReader(strings.NewReader(rawDiff)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	files := make([]models.ChangedFile, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		added, deleted := countLines(fd)
		files = append(files, models.ChangedFile{
			Filename:  fileName(fd),
			Status:    fileStatus(fd),
			Additions: added,
			Deletions: deleted,
		})
	}
	return files, nil
}

// ParseStats summarizes a unified multi-file diff
func ParseStats(rawDiff string) (models.ChangeStats, error) {
	files, err := ParseFiles(rawDiff)
	if err != nil {
		return models.ChangeStats{}, err
	}
	return StatsOf(files), nil
}

// StatsOf sums the statistics of already parsed files
func StatsOf(files []models.ChangedFile) models.ChangeStats {
	stats := models.ChangeStats{Files: len(files)}
	for _, f := range files {
		stats.Additions += f.Additions
		stats.Deletions += f.Deletions
	}
	return stats
}

// FilterDiff keeps only the sections of rawDiff whose file is in included.
// If the diff cannot be parsed it is returned unchanged.
func FilterDiff(rawDiff string, included []models.ChangedFile) string {
	if strings.TrimSpace(rawDiff) == "" {
		return rawDiff
	}

	keep := make(map[string]bool, len(included))
	for _, f := range included {
		keep[f.Filename] = true
	}

	fileDiffs, err := godiff.NewMultiFileDiffReader(strings.NewReader(rawDiff)).ReadAllFiles()
	if err != nil {
		return rawDiff
	}

	kept := make([]*godiff.FileDiff, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		if keep[fileName(fd)] {
			kept = append(kept, fd)
		}
	}
	if len(kept) == len(fileDiffs) {
		return rawDiff
	}

	out, err := godiff.PrintMultiFileDiff(kept)
	if err != nil {
		return rawDiff
	}
	return string(out)
}

func countLines(fd *godiff.FileDiff) (added, deleted int) {
	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			if strings.HasPrefix(line, "+") {
				added++
			} else if strings.HasPrefix(line, "-") {
				deleted++
			}
		}
	}
	return added, deleted
}

func fileName(fd *godiff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == devNull {
		name = fd.OrigName
	}
	return stripPrefix(name)
}

func fileStatus(fd *godiff.FileDiff) string {
	switch {
	case fd.OrigName == devNull:
		return "added"
	case fd.NewName == devNull:
		return "removed"
	case stripPrefix(fd.OrigName) != stripPrefix(fd.NewName):
		return "renamed"
	default:
		return "modified"
	}
}

func stripPrefix(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}
