// Package model defines the domain records produced by parsing a Robot
// Framework project: resource files, keywords, test cases, variables and
// per-platform locator mappings, together with their identity scheme.
//
// Records are built once per ingestion run and are not mutated afterwards;
// every other package consumes them read-only.
package model

import (
	"path"
	"strings"
)

// Role is the functional category of a file, inferred from its location.
type Role string

const (
	RoleAtomicTest    Role = "ATOMIC_TESTS"
	RoleE2ETest       Role = "E2E_TESTS"
	RoleKnowledgeBase Role = "KNOWLEDGE_BASE"
	RoleDataLayer     Role = "DATA_LAYER"
	RolePageObject    Role = "PAGE_OBJECT"
	RoleFlow          Role = "FLOW"
	RoleAPI           Role = "API"
	RoleMigrationTest Role = "MIGRATION_TESTS"
	RoleUnknown       Role = "UNKNOWN"
)

// IsTest reports whether files of this role hold test cases that take part
// in redundancy and diversity analysis.
func (r Role) IsTest() bool {
	return r == RoleAtomicTest || r == RoleE2ETest || r == RoleMigrationTest
}

// Platform is the target execution environment of a file.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
	PlatformBackend Platform = "be"
	PlatformCommon  Platform = "common"
)

// VariableType is the container kind of a variable, taken from its sigil.
type VariableType string

const (
	VarScalar VariableType = "scalar"
	VarList   VariableType = "list"
	VarDict   VariableType = "dict"
)

// Keyword is a parsed keyword definition.
type Keyword struct {
	Name           string   `json:"name"`
	FQN            string   `json:"fqn"`
	SourceFile     string   `json:"source_file"`
	Documentation  string   `json:"documentation,omitempty"`
	Arguments      []string `json:"arguments,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	BodyText       string   `json:"body_text,omitempty"`
	CalledKeywords []string `json:"called_keywords,omitempty"`
	Line           int      `json:"line"`
}

// TestCase is a parsed test case. Setup, Teardown and Template are nil when
// the test does not declare them.
type TestCase struct {
	Name           string   `json:"name"`
	FQN            string   `json:"fqn"`
	SourceFile     string   `json:"source_file"`
	Documentation  string   `json:"documentation,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Setup          *string  `json:"setup,omitempty"`
	Teardown       *string  `json:"teardown,omitempty"`
	Template       *string  `json:"template,omitempty"`
	BodyText       string   `json:"body_text,omitempty"`
	CalledKeywords []string `json:"called_keywords,omitempty"`
	Line           int      `json:"line"`
}

// ResourceFile is one parsed .robot or .resource file.
type ResourceFile struct {
	// Path is relative to the project root, always with forward slashes.
	Path          string   `json:"path"`
	Role          Role     `json:"role"`
	Platform      Platform `json:"platform"`
	Documentation string   `json:"documentation,omitempty"`

	// Imports are the raw Resource import expressions, unresolved.
	Imports        []string `json:"imports,omitempty"`
	LibraryImports []string `json:"library_imports,omitempty"`

	Keywords  []*Keyword        `json:"keywords,omitempty"`
	TestCases []*TestCase       `json:"test_cases,omitempty"`
	Variables []*Variable       `json:"variables,omitempty"`
	Locators  []*LocatorMapping `json:"locators,omitempty"`
}

// Stem returns the file's base name without extension; it prefixes every
// FQN defined in the file.
func (rf *ResourceFile) Stem() string {
	return Stem(rf.Path)
}

// Stem returns the base name of p without its extension.
func Stem(p string) string {
	base := path.Base(NormalizePath(p))
	return strings.TrimSuffix(base, path.Ext(base))
}

// NormalizePath converts a path to the forward-slash form used as file
// identity.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
