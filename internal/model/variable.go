package model

import "strings"

// Redacted replaces the value of any variable whose name looks sensitive.
const Redacted = "***REDACTED***"

// sensitiveTerms mark a variable name as holding a secret.
var sensitiveTerms = []string{"password", "secret", "token", "key", "credential"}

// Variable is a parsed variable. Value is a display representation and never
// carries the real value of a sensitive variable.
type Variable struct {
	Name       string       `json:"name"`
	Value      string       `json:"value"`
	SourceFile string       `json:"source_file"`
	Type       VariableType `json:"type"`
}

// NewVariable builds a Variable, inferring its type from the sigil of name
// ("&{...}" dict, "@{...}" list, anything else scalar) and redacting the value
// when the name matches a sensitive term.
func NewVariable(name, value, sourceFile string) *Variable {
	if IsSensitiveName(name) {
		value = Redacted
	}
	return &Variable{
		Name:       name,
		Value:      value,
		SourceFile: sourceFile,
		Type:       variableTypeOf(name),
	}
}

// IsSensitiveName reports whether a variable name contains a sensitive term.
func IsSensitiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range sensitiveTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func variableTypeOf(name string) VariableType {
	switch {
	case strings.HasPrefix(name, "&"):
		return VarDict
	case strings.HasPrefix(name, "@"):
		return VarList
	default:
		return VarScalar
	}
}

// BareName strips the sigil and braces: "&{IOS}" becomes "IOS".
func BareName(name string) string {
	if len(name) >= 3 && strings.ContainsRune("$@&%", rune(name[0])) && name[1] == '{' && strings.HasSuffix(name, "}") {
		return name[2 : len(name)-1]
	}
	return name
}
