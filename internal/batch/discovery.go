package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// discoverDatasetFiles expands files and directories into a sorted,
// de-duplicated list of dataset files matching the patterns.
func discoverDatasetFiles(args []string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var datasetFiles []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			files, err := discoverInDirectory(arg, recursive, includePatterns, excludePatterns)
			if err != nil {
				return nil, err
			}
			datasetFiles = append(datasetFiles, files...)
		} else if shouldIncludeFile(arg, includePatterns, excludePatterns) {
			datasetFiles = append(datasetFiles, arg)
		}
	}

	slices.Sort(datasetFiles)
	return slices.Compact(datasetFiles), nil
}

// discoverInDirectory walks dir, descending into subdirectories only when
// recursive is set.
func discoverInDirectory(dir string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var files []string

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if shouldIncludeFile(path, includePatterns, excludePatterns) {
			files = append(files, path)
		}

		return nil
	}

	return files, filepath.WalkDir(dir, walkFn)
}

// shouldIncludeFile determines if a file should be included based on include/exclude patterns.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}

	// No include patterns means everything that is not excluded.
	if len(includePatterns) == 0 {
		return true
	}

	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern matches the base name of path against shell patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
