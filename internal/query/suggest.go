package query

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/Benny93/rfgraph/internal/model"
	"github.com/Benny93/rfgraph/internal/storage"
)

const (
	// suggestCandidates is the number of search results considered.
	suggestCandidates = 15

	// maxReused is the number of keywords a suggestion reuses.
	maxReused = 5

	baseDataQuery = "Base Data Creation setup"
)

// rolePriority orders reuse candidates: flows before platform keywords,
// page objects and API keywords. Other roles sort last.
var rolePriority = map[model.Role]int{
	model.RoleFlow:          0,
	model.RoleKnowledgeBase: 1,
	model.RolePageObject:    2,
	model.RoleAPI:           3,
}

// ReusedKeyword is an existing keyword a new suite should call.
type ReusedKeyword struct {
	FQN    string     `json:"fqn"`
	Name   string     `json:"name"`
	Source string     `json:"source"`
	Role   model.Role `json:"role"`
}

// Suggestion is a reuse plan for a new suite at Target.
type Suggestion struct {
	Target string          `json:"target"`
	Reused []ReusedKeyword `json:"reused_keywords"`

	// Imports are Resource paths relative to Target's directory: the one
	// file whose import chain covers most reused keywords, or each source
	// directly when none covers any.
	Imports []string `json:"imports"`

	// BaseDataPattern is the text of the closest existing Base Data
	// Creation keyword, empty when there is none.
	BaseDataPattern string `json:"base_data_pattern"`
}

// Suggest plans which existing keywords a new suite described by
// description should reuse, and which import gives access to them.
func (e *Engine) Suggest(ctx context.Context, description, target string) (*Suggestion, error) {
	results, err := e.search(ctx, description, suggestCandidates, storage.Filter{Type: storage.TypeKeyword})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return priority(results[i].Metadata.Role) < priority(results[j].Metadata.Role)
	})

	reused := []ReusedKeyword{}
	seen := make(map[string]bool)
	for _, r := range results {
		m := r.Metadata
		if m.FQN == "" || seen[m.FQN] {
			continue
		}
		seen[m.FQN] = true
		reused = append(reused, ReusedKeyword{FQN: m.FQN, Name: m.Name, Source: m.Source, Role: m.Role})
		if len(reused) >= maxReused {
			break
		}
	}

	pattern, err := e.baseDataPattern(ctx)
	if err != nil {
		return nil, err
	}

	return &Suggestion{
		Target:          target,
		Reused:          reused,
		Imports:         e.imports(target, reused),
		BaseDataPattern: pattern,
	}, nil
}

func priority(role model.Role) int {
	if p, ok := rolePriority[role]; ok {
		return p
	}
	return len(rolePriority)
}

// imports picks the Resource imports for target.
func (e *Engine) imports(target string, reused []ReusedKeyword) []string {
	needed := make(map[string]bool)
	for _, kw := range reused {
		if kw.Source != "" {
			needed[kw.Source] = true
		}
	}
	sources := make([]string, 0, len(needed))
	for s := range needed {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	if best, covered := e.resolver.BestCoverage(sources); covered > 0 {
		return []string{RelativePath(target, best)}
	}

	imports := make([]string, len(sources))
	for i, s := range sources {
		imports[i] = RelativePath(target, s)
	}
	return imports
}

func (e *Engine) baseDataPattern(ctx context.Context) (string, error) {
	results, err := e.search(ctx, baseDataQuery, 3, storage.Filter{Type: storage.TypeKeyword})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].Document, nil
}

// RelativePath returns to expressed relative to the directory of from. Both
// are project-relative paths with forward slashes.
func RelativePath(from, to string) string {
	var fromParts []string
	if dir := path.Dir(model.NormalizePath(from)); dir != "." {
		fromParts = strings.Split(dir, "/")
	}
	toParts := strings.Split(model.NormalizePath(to), "/")

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	parts := make([]string, 0, len(fromParts)-common+len(toParts)-common)
	for range len(fromParts) - common {
		parts = append(parts, "..")
	}
	parts = append(parts, toParts[common:]...)
	if len(parts) == 0 {
		return to
	}
	return strings.Join(parts, "/")
}
