// Package parsers turns Robot Framework source files into model records.
//
// The parser works line by line on the plain-text format: sections are
// introduced by "*** Name ***" headers, cells are separated by two or more
// spaces or a tab, and "..." continues the previous statement.
package parsers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Benny93/rfgraph/internal/config"
	"github.com/Benny93/rfgraph/internal/model"
)

// ErrNotUTF8 is returned for files whose content is not valid UTF-8.
var ErrNotUTF8 = errors.New("content is not valid UTF-8")

// Parser defines the interface for Robot Framework file parsers.
type Parser interface {
	// Parse parses the content of the file at relPath (relative to the
	// project root, forward slashes) into a resource file record.
	Parse(relPath string, content []byte) (*model.ResourceFile, error)

	// Language returns the language this parser handles
	Language() string
}

// Parse reads path (absolute or relative to root) and parses it with the
// role and platform rules of cfg.
func Parse(root, path string, cfg *config.Config) (*model.ResourceFile, error) {
	relPath, err := RelativePath(root, path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", relPath, err)
	}

	return NewRobotParser(cfg).Parse(relPath, content)
}

// RelativePath returns path relative to root in forward-slash form. It fails
// for paths outside root.
func RelativePath(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relativizing %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside project root %s", path, root)
	}
	return rel, nil
}
