package model

import "strings"

// Identity prefixes for non-file, non-FQN nodes.
const (
	VariablePrefix = "var:"
	TagPrefix      = "tag:"
	ElementPrefix  = "element:"
)

// FileUID returns the identity of a file node.
func FileUID(relPath string) string {
	return NormalizePath(relPath)
}

// FQN returns the fully-qualified name "<stem>.<name>" of a keyword or test
// case defined in relPath.
func FQN(relPath, name string) string {
	return Stem(relPath) + "." + name
}

// VariableUID returns the identity of a variable node.
func VariableUID(name string) string {
	return VariablePrefix + name
}

// TagUID returns the identity of a tag node.
func TagUID(tag string) string {
	return TagPrefix + tag
}

// ElementUID returns the identity of a locator element node.
func ElementUID(element string) string {
	return ElementPrefix + element
}

// StripTagPrefix turns a tag identity back into the tag name.
func StripTagPrefix(uid string) string {
	return strings.TrimPrefix(uid, TagPrefix)
}

// StripElementPrefix turns an element identity back into the element name.
func StripElementPrefix(uid string) string {
	return strings.TrimPrefix(uid, ElementPrefix)
}
