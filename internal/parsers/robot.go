package parsers

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Benny93/rfgraph/internal/config"
	"github.com/Benny93/rfgraph/internal/model"
)

// bodySeparator joins the cells of one body statement in BodyText and
// variable value representations.
const bodySeparator = "    "

type section int

const (
	sectionNone section = iota
	sectionSettings
	sectionVariables
	sectionKeywords
	sectionTestCases
	sectionComments
)

// controlWords open, continue or close control structures; they are not
// keyword calls.
var controlWords = map[string]bool{
	"FOR": true, "END": true, "IF": true, "ELSE": true, "ELSE IF": true,
	"WHILE": true, "TRY": true, "EXCEPT": true, "FINALLY": true,
	"BREAK": true, "CONTINUE": true, "RETURN": true, "VAR": true, "GROUP": true,
}

// statement is one logical line: continuation lines are already folded in.
type statement struct {
	cells    []string
	line     int
	indented bool
}

// RobotParser parses Robot Framework .robot and .resource files.
type RobotParser struct {
	cfg *config.Config

	separatorRegex  *regexp.Regexp
	assignmentRegex *regexp.Regexp
	locatorRegex    *regexp.Regexp
}

// NewRobotParser creates a parser that assigns roles with cfg.
func NewRobotParser(cfg *config.Config) *RobotParser {
	return &RobotParser{
		cfg:             cfg,
		separatorRegex:  regexp.MustCompile(`\t| {2,}`),
		assignmentRegex: regexp.MustCompile(`^[$@&]\{[^}]+\}\s*=?$`),
		locatorRegex:    regexp.MustCompile(`^(\w+)=(.+)$`),
	}
}

// Language returns the language this parser handles.
func (p *RobotParser) Language() string {
	return "robotframework"
}

// Parse parses content of the file at relPath.
func (p *RobotParser) Parse(relPath string, content []byte) (*model.ResourceFile, error) {
	if !utf8.Valid(content) {
		return nil, ErrNotUTF8
	}

	relPath = model.NormalizePath(relPath)
	rf := &model.ResourceFile{
		Path:     relPath,
		Role:     AssignRole(relPath, p.cfg),
		Platform: AssignPlatform(relPath),
	}

	sections := p.splitSections(string(content))

	var defaultTemplate string
	for _, st := range sections[sectionSettings] {
		if t, ok := p.parseSetting(rf, st); ok {
			defaultTemplate = t
		}
	}

	p.parseVariables(rf, sections[sectionVariables])
	p.parseKeywords(rf, sections[sectionKeywords])
	p.parseTestCases(rf, sections[sectionTestCases], defaultTemplate)

	return rf, nil
}

// splitSections groups the statements of content by section.
func (p *RobotParser) splitSections(content string) map[section][]*statement {
	result := make(map[section][]*statement)
	current := sectionNone
	var last *statement

	lines := strings.Split(content, "\n")
	for lineNum, line := range lines {
		line = strings.TrimRight(line, "\r")
		if lineNum == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if strings.HasPrefix(line, "*") {
			current = sectionOf(line)
			last = nil
			continue
		}
		if current == sectionNone || current == sectionComments {
			continue
		}

		indented, cells := p.splitCells(line)
		if len(cells) == 0 {
			continue
		}

		if cells[0] == "..." {
			if last != nil {
				last.cells = append(last.cells, cells[1:]...)
			}
			continue
		}

		st := &statement{cells: cells, line: lineNum + 1, indented: indented}
		result[current] = append(result[current], st)
		last = st

		// A name line may carry its first step: "Name    Log    x".
		if !indented && len(cells) > 1 && (current == sectionKeywords || current == sectionTestCases) {
			st.cells = cells[:1]
			step := &statement{cells: cells[1:], line: lineNum + 1, indented: true}
			result[current] = append(result[current], step)
			last = step
		}
	}

	return result
}

func sectionOf(header string) section {
	name := strings.ToLower(strings.TrimSpace(strings.Trim(header, "* \t")))
	switch name {
	case "settings", "setting":
		return sectionSettings
	case "variables", "variable":
		return sectionVariables
	case "keywords", "keyword":
		return sectionKeywords
	case "test cases", "test case", "tasks", "task":
		return sectionTestCases
	case "comments", "comment":
		return sectionComments
	}
	return sectionNone
}

// splitCells splits a line into its non-empty cells, dropping comments.
// indented reports whether the line starts with whitespace.
func (p *RobotParser) splitCells(line string) (indented bool, cells []string) {
	if strings.TrimSpace(line) == "" {
		return false, nil
	}
	indented = line[0] == ' ' || line[0] == '\t'

	for _, cell := range p.separatorRegex.Split(line, -1) {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if strings.HasPrefix(cell, "#") {
			break
		}
		cells = append(cells, cell)
	}
	return indented, cells
}

// parseSetting applies one Settings statement to rf. It returns the default
// test template when the statement declares one.
func (p *RobotParser) parseSetting(rf *model.ResourceFile, st *statement) (string, bool) {
	name := strings.ToLower(st.cells[0])
	args := st.cells[1:]

	switch name {
	case "resource":
		if len(args) > 0 {
			rf.Imports = append(rf.Imports, args[0])
		}
	case "library":
		if len(args) > 0 {
			rf.LibraryImports = append(rf.LibraryImports, args[0])
		}
	case "documentation":
		rf.Documentation = strings.Join(args, " ")
	case "test template", "task template":
		if len(args) > 0 {
			return args[0], true
		}
	}
	return "", false
}

func (p *RobotParser) parseVariables(rf *model.ResourceFile, statements []*statement) {
	ios := make(map[string]string)
	android := make(map[string]string)

	for _, st := range statements {
		name := strings.TrimSpace(strings.TrimSuffix(st.cells[0], "="))
		values := st.cells[1:]

		rf.Variables = append(rf.Variables, model.NewVariable(name, strings.Join(values, bodySeparator), rf.Path))

		var target map[string]string
		switch strings.ToUpper(model.BareName(name)) {
		case "IOS":
			target = ios
		case "ANDROID":
			target = android
		default:
			continue
		}
		for _, v := range values {
			if m := p.locatorRegex.FindStringSubmatch(v); m != nil {
				target[m[1]] = m[2]
			}
		}
	}

	elements := make([]string, 0, len(ios)+len(android))
	for k := range ios {
		elements = append(elements, k)
	}
	for k := range android {
		if _, ok := ios[k]; !ok {
			elements = append(elements, k)
		}
	}
	sort.Strings(elements)

	for _, el := range elements {
		rf.Locators = append(rf.Locators, model.NewLocatorMapping(el, ios[el], android[el]))
	}
}

// block is one keyword or test case: its name statement plus its body.
type block struct {
	name string
	line int
	body []*statement
}

func groupBlocks(statements []*statement) []*block {
	var blocks []*block
	var current *block
	for _, st := range statements {
		if !st.indented {
			current = &block{name: st.cells[0], line: st.line}
			blocks = append(blocks, current)
			continue
		}
		if current != nil {
			current.body = append(current.body, st)
		}
	}
	return blocks
}

func isSetting(cell string) bool {
	return strings.HasPrefix(cell, "[") && strings.HasSuffix(cell, "]")
}

func settingName(cell string) string {
	return strings.ToLower(strings.Trim(cell, "[]"))
}

func firstOrNil(cells []string) *string {
	if len(cells) == 0 {
		return nil
	}
	v := cells[0]
	return &v
}

func (p *RobotParser) parseKeywords(rf *model.ResourceFile, statements []*statement) {
	for _, b := range groupBlocks(statements) {
		kw := &model.Keyword{
			Name:       b.name,
			FQN:        model.FQN(rf.Path, b.name),
			SourceFile: rf.Path,
			Line:       b.line,
		}

		var steps []*statement
		for _, st := range b.body {
			if !isSetting(st.cells[0]) {
				steps = append(steps, st)
				continue
			}
			args := st.cells[1:]
			switch settingName(st.cells[0]) {
			case "documentation":
				kw.Documentation = strings.Join(args, " ")
			case "arguments":
				kw.Arguments = args
			case "tags":
				kw.Tags = args
			}
		}

		kw.BodyText = bodyText(steps)
		kw.CalledKeywords = p.calledKeywords(steps)
		rf.Keywords = append(rf.Keywords, kw)
	}
}

func (p *RobotParser) parseTestCases(rf *model.ResourceFile, statements []*statement, defaultTemplate string) {
	for _, b := range groupBlocks(statements) {
		tc := &model.TestCase{
			Name:       b.name,
			FQN:        model.FQN(rf.Path, b.name),
			SourceFile: rf.Path,
			Line:       b.line,
		}
		if defaultTemplate != "" {
			tc.Template = firstOrNil([]string{defaultTemplate})
		}

		var steps []*statement
		for _, st := range b.body {
			if !isSetting(st.cells[0]) {
				steps = append(steps, st)
				continue
			}
			args := st.cells[1:]
			switch settingName(st.cells[0]) {
			case "documentation":
				tc.Documentation = strings.Join(args, " ")
			case "tags":
				tc.Tags = args
			case "setup":
				tc.Setup = firstOrNil(args)
			case "teardown":
				tc.Teardown = firstOrNil(args)
			case "template":
				tc.Template = firstOrNil(args)
			}
		}

		tc.BodyText = bodyText(steps)
		if tc.Template != nil && strings.ToUpper(*tc.Template) != "NONE" {
			// Rows of a templated test are arguments of the template.
			tc.CalledKeywords = []string{*tc.Template}
		} else {
			tc.Template = nil
			tc.CalledKeywords = p.calledKeywords(steps)
		}
		rf.TestCases = append(rf.TestCases, tc)
	}
}

func bodyText(steps []*statement) string {
	lines := make([]string, 0, len(steps))
	for _, st := range steps {
		lines = append(lines, strings.Join(st.cells, bodySeparator))
	}
	return strings.Join(lines, "\n")
}

// calledKeywords returns the distinct keyword names called by steps in
// order of first call.
func (p *RobotParser) calledKeywords(steps []*statement) []string {
	var calls []string
	seen := make(map[string]bool)
	for _, st := range steps {
		name := p.keywordOf(st.cells)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		calls = append(calls, name)
	}
	return calls
}

// keywordOf returns the keyword called by one step, or "" when the step is
// not a keyword call.
func (p *RobotParser) keywordOf(cells []string) string {
	i := 0
	for i < len(cells) && p.assignmentRegex.MatchString(cells[i]) {
		i++
	}
	if i >= len(cells) {
		return ""
	}

	first := cells[i]
	if !controlWords[first] {
		return first
	}

	// Inline IF: "IF    ${cond}    Keyword    args".
	switch first {
	case "IF", "ELSE IF":
		if len(cells) > i+2 {
			return cells[i+2]
		}
	case "ELSE":
		if len(cells) > i+1 {
			return cells[i+1]
		}
	}
	return ""
}
