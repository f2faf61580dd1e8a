// Package resolver computes the effective scope of Robot Framework files:
// every keyword reachable through the transitive chain of Resource imports.
//
// A Resolver works on one immutable file map. Scopes are computed on first
// request and cached for the lifetime of the Resolver; concurrent requests
// for the same file share a single computation.
package resolver

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/Benny93/rfgraph/internal/model"
)

// Scope is the effective keyword scope of one file: its own keywords first,
// then those of its imports in depth-first import order. Each file
// contributes its keywords once; keywords are not deduplicated by FQN.
type Scope struct {
	File     string
	Keywords []*model.Keyword
}

// FQNs returns the keyword identities of the scope in scope order.
func (s *Scope) FQNs() []string {
	fqns := make([]string, len(s.Keywords))
	for i, kw := range s.Keywords {
		fqns[i] = kw.FQN
	}
	return fqns
}

// Resolver resolves imports and effective scopes over a fixed file map.
type Resolver struct {
	files  map[string]*model.ResourceFile
	order  []string
	root   string
	logger *log.Logger

	mu       sync.Mutex
	scopes   map[string]*Scope
	closures map[string][]string
	group    singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for unresolved imports.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver over fileMap, keyed by project-relative path.
// Keys may use either separator; they are normalized to forward slashes.
// projectRoot is used to relativize absolute import paths.
func New(fileMap map[string]*model.ResourceFile, projectRoot string, opts ...Option) *Resolver {
	files := make(map[string]*model.ResourceFile, len(fileMap))
	for p, rf := range fileMap {
		files[model.NormalizePath(p)] = rf
	}

	r := &Resolver{
		files:    files,
		root:     projectRoot,
		logger:   log.Default(),
		scopes:   make(map[string]*Scope),
		closures: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.order = make([]string, 0, len(files))
	for p := range files {
		r.order = append(r.order, p)
	}
	sort.Strings(r.order)

	return r
}

// Files returns the paths of the file map in sorted order.
func (r *Resolver) Files() []string {
	return append([]string(nil), r.order...)
}

// File returns the record for p, or nil.
func (r *Resolver) File(p string) *model.ResourceFile {
	return r.files[model.NormalizePath(p)]
}

// EffectiveKeywords returns the effective scope of p. Repeated calls return
// the same *Scope. A path missing from the file map has an empty scope.
func (r *Resolver) EffectiveKeywords(p string) *Scope {
	p = model.NormalizePath(p)
	r.mu.Lock()
	if s, ok := r.scopes[p]; ok {
		r.mu.Unlock()
		return s
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(p, func() (any, error) {
		r.mu.Lock()
		if s, ok := r.scopes[p]; ok {
			r.mu.Unlock()
			return s, nil
		}
		r.mu.Unlock()

		s := &Scope{File: p}
		visited := make(map[string]bool)
		r.walk(p, visited, func(rf *model.ResourceFile) {
			s.Keywords = append(s.Keywords, rf.Keywords...)
		})

		r.mu.Lock()
		r.scopes[p] = s
		r.mu.Unlock()
		return s, nil
	})

	return v.(*Scope)
}

// ImportedFiles returns p plus every file it imports transitively, sorted.
func (r *Resolver) ImportedFiles(p string) []string {
	p = model.NormalizePath(p)
	r.mu.Lock()
	cached, ok := r.closures[p]
	r.mu.Unlock()
	if ok {
		return append([]string(nil), cached...)
	}

	visited := make(map[string]bool)
	r.walk(p, visited, nil)

	files := make([]string, 0, len(visited))
	for f := range visited {
		files = append(files, f)
	}
	sort.Strings(files)

	r.mu.Lock()
	r.closures[p] = files
	r.mu.Unlock()

	return append([]string(nil), files...)
}

// BestCoverage returns the file whose import closure contains the most of
// needed, and how many it contains. Ties keep the first file in sorted path
// order. When no file covers anything it returns "" and 0.
func (r *Resolver) BestCoverage(needed []string) (string, int) {
	want := make(map[string]bool, len(needed))
	for _, n := range needed {
		want[model.NormalizePath(n)] = true
	}
	if len(want) == 0 {
		return "", 0
	}

	best, bestCount := "", 0
	for _, f := range r.order {
		count := 0
		for _, imported := range r.ImportedFiles(f) {
			if want[imported] {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = f, count
		}
	}
	return best, bestCount
}

// ResolveImport resolves the raw Resource import expression raw of
// importer to a path in the file map. ${CURDIR} and %{CURDIR} stand for the
// importer's directory. Imports that leave the project root or name a file
// outside the map are rejected.
func (r *Resolver) ResolveImport(importer, raw string) (string, bool) {
	expr := strings.ReplaceAll(raw, "${CURDIR}", ".")
	expr = strings.ReplaceAll(expr, "%{CURDIR}", ".")
	expr = model.NormalizePath(strings.TrimSpace(expr))
	if expr == "" {
		return "", false
	}

	var candidate string
	if filepath.IsAbs(expr) || path.IsAbs(expr) {
		rel, err := filepath.Rel(r.root, filepath.FromSlash(expr))
		if err != nil {
			r.logger.Debug("import outside project root", "import", raw, "from", importer)
			return "", false
		}
		candidate = filepath.ToSlash(rel)
	} else {
		candidate = path.Join(path.Dir(model.NormalizePath(importer)), expr)
	}

	if candidate == ".." || strings.HasPrefix(candidate, "../") {
		r.logger.Debug("import outside project root", "import", raw, "from", importer)
		return "", false
	}
	if _, ok := r.files[candidate]; !ok {
		r.logger.Debug("unresolved import", "import", raw, "from", importer)
		return "", false
	}
	return candidate, true
}

// ResolveCall returns the FQN of the keyword that a call to name from file
// refers to, looking through the effective scope of file. Names match the
// way Robot Framework matches them: ignoring case, spaces and underscores.
// A "resource.Keyword" name only matches keywords of that resource.
func (r *Resolver) ResolveCall(file, name string) (string, bool) {
	scope := r.EffectiveKeywords(file)
	want := normalizeName(name)

	for _, kw := range scope.Keywords {
		if normalizeName(kw.Name) == want {
			return kw.FQN, true
		}
	}

	if i := strings.LastIndex(name, "."); i > 0 {
		stem, kwName := normalizeName(name[:i]), normalizeName(name[i+1:])
		for _, kw := range scope.Keywords {
			if normalizeName(model.Stem(kw.SourceFile)) == stem && normalizeName(kw.Name) == kwName {
				return kw.FQN, true
			}
		}
	}
	return "", false
}

// walk visits p and its transitive imports depth-first, calling visit once
// per file present in the file map. visited is shared by the whole walk, so
// import cycles terminate.
func (r *Resolver) walk(p string, visited map[string]bool, visit func(*model.ResourceFile)) {
	if visited[p] {
		return
	}
	visited[p] = true

	rf, ok := r.files[p]
	if !ok {
		return
	}
	if visit != nil {
		visit(rf)
	}

	for _, imp := range rf.Imports {
		if resolved, ok := r.ResolveImport(p, imp); ok {
			r.walk(resolved, visited, visit)
		}
	}
}

func normalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "")
	return strings.ReplaceAll(name, "_", "")
}
