package ingestion

import (
	"context"
	"sort"
	"strings"

	"github.com/Benny93/rfgraph/internal/graph"
	"github.com/Benny93/rfgraph/internal/model"
)

// Confidence levels of an unused keyword finding.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// UnusedKeyword is a keyword definition nothing in the project calls.
type UnusedKeyword struct {
	FQN        string `json:"fqn"`
	Source     string `json:"source"`
	Line       int    `json:"line"`
	Confidence string `json:"confidence"`
}

// UnusedKeywords reports keywords without incoming CALLS edges.
//
// Detection phases:
// 1. Initial scan - flag keywords with no callers in the graph
// 2. Exemptions - un-flag keywords used as a test [Setup] or [Teardown]
// 3. Confidence scoring - setup-like names may be called from suite
// settings the graph does not track, so they score low
//
// resolve maps setup and teardown names to keyword identities; it may be nil.
func UnusedKeywords(ctx context.Context, ix *graph.Index, files map[string]*model.ResourceFile, resolve graph.CallResolver) ([]UnusedKeyword, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	// Phase 1: Initial scan
	var flagged []*model.Keyword
	for _, p := range paths {
		for _, kw := range files[p].Keywords {
			callers, err := ix.CallersOf(ctx, kw.FQN)
			if err != nil {
				return nil, err
			}
			if len(callers) == 0 {
				flagged = append(flagged, kw)
			}
		}
	}

	// Phase 2: Exemptions
	exempt := fixtureKeywords(paths, files, resolve)

	// Phase 3: Confidence scoring
	unused := make([]UnusedKeyword, 0, len(flagged))
	for _, kw := range flagged {
		if exempt[kw.FQN] {
			continue
		}
		confidence := ConfidenceHigh
		if isFixtureName(kw.Name) {
			confidence = ConfidenceLow
		}
		unused = append(unused, UnusedKeyword{
			FQN:        kw.FQN,
			Source:     kw.SourceFile,
			Line:       kw.Line,
			Confidence: confidence,
		})
	}
	return unused, nil
}

// UnusedKeywords reports the unused keywords of the snapshot.
func (s *Snapshot) UnusedKeywords(ctx context.Context) ([]UnusedKeyword, error) {
	return UnusedKeywords(ctx, s.Index, s.Files, s.Resolver.ResolveCall)
}

// fixtureKeywords returns the identities of keywords referenced by a test
// setup or teardown.
func fixtureKeywords(paths []string, files map[string]*model.ResourceFile, resolve graph.CallResolver) map[string]bool {
	used := make(map[string]bool)
	for _, p := range paths {
		for _, tc := range files[p].TestCases {
			for _, ref := range []*string{tc.Setup, tc.Teardown} {
				if ref == nil || resolve == nil {
					continue
				}
				if fqn, ok := resolve(p, *ref); ok {
					used[fqn] = true
				}
			}
		}
	}
	return used
}

func isFixtureName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "setup") || strings.Contains(lower, "teardown")
}
