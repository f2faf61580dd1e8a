// Package ingestion crawls a Robot Framework project and loads it into the
// graph and vector stores.
package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileEntry is one ingestible file found by Crawl.
type FileEntry struct {
	// Path is the absolute file path.
	Path string

	// RelPath is the path relative to the project root, with forward slashes.
	RelPath string

	// SHA256 is the hex digest of the content. Empty unless hashing was requested.
	SHA256 string
}

// ingestibleExtensions are the Robot Framework source extensions.
var ingestibleExtensions = map[string]bool{
	".robot":    true,
	".resource": true,
}

// blacklistedDirs are skipped wherever they appear in a path.
var blacklistedDirs = map[string]bool{
	"venv":         true,
	".venv":        true,
	"__pycache__":  true,
	".git":         true,
	"pabot":        true,
	"node_modules": true,
	".rfgraph":     true,
}

// rfArtifacts are execution outputs Robot Framework writes next to suites.
var rfArtifacts = map[string]bool{
	"output.xml":  true,
	"report.html": true,
	"log.html":    true,
}

type crawlOptions struct {
	hash   bool
	logger *log.Logger
}

// CrawlOption configures Crawl.
type CrawlOption func(*crawlOptions)

// WithHashes makes Crawl fill FileEntry.SHA256.
func WithHashes() CrawlOption {
	return func(o *crawlOptions) { o.hash = true }
}

// WithCrawlLogger sets the logger used for per-file crawl decisions.
func WithCrawlLogger(l *log.Logger) CrawlOption {
	return func(o *crawlOptions) { o.logger = l }
}

// Crawl returns every .robot and .resource file under root, sorted by
// relative path. Blacklisted directories, Robot Framework output artifacts
// and paths matched by the root .gitignore are skipped.
func Crawl(root string, opts ...CrawlOption) ([]FileEntry, error) {
	o := &crawlOptions{logger: log.Default()}
	for _, opt := range opts {
		opt(o)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	patterns, err := loadGitignore(root)
	if err != nil {
		return nil, err
	}
	matcher := gitignore.NewMatcher(patterns)

	var entries []FileEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := splitPath(relPath)

		if d.IsDir() {
			if blacklistedDirs[d.Name()] || matcher.Match(parts, true) {
				o.logger.Debug("skipping directory", "path", filepath.ToSlash(relPath))
				return filepath.SkipDir
			}
			return nil
		}

		if !isIngestible(d.Name()) || matcher.Match(parts, false) {
			return nil
		}

		entry := FileEntry{Path: path, RelPath: filepath.ToSlash(relPath)}
		if o.hash {
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			sum := sha256.Sum256(content)
			entry.SHA256 = hex.EncodeToString(sum[:])
		}

		o.logger.Debug("crawled", "path", entry.RelPath)
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}

// loadGitignore loads the patterns of the .gitignore at root, if any.
func loadGitignore(root string) ([]gitignore.Pattern, error) {
	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, nil
}

// isIngestible reports whether a file name is a Robot Framework source.
func isIngestible(name string) bool {
	if rfArtifacts[name] {
		return false
	}
	return ingestibleExtensions[strings.ToLower(filepath.Ext(name))]
}

// isBlacklisted reports whether any component of relPath is blacklisted.
func isBlacklisted(relPath string) bool {
	for _, part := range splitPath(relPath) {
		if blacklistedDirs[part] {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	return strings.Split(filepath.ToSlash(p), "/")
}
