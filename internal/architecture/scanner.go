package architecture

import (
	"regexp"
	"strings"

	"github.com/archdrift/pkg/models"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokOpen
	tokClose
	tokAssign
	tokArrow // text holds the bracketed kind of -[kind]->, if any
)

type token struct {
	kind tokenKind
	text string
}

var arrowPattern = regexp.MustCompile(`^(.*?)(-\[([^\]]*)\]->|->)(.*)$`)

// tripleQuote returns the ''' or """ delimiter starting at line[i], or ""
func tripleQuote(line string, i int) string {
	if i+3 > len(line) {
		return ""
	}
	if d := line[i : i+3]; d == "'''" || d == `"""` {
		return d
	}
	return ""
}

// tripleText trims the lines of a multi-line string
func tripleText(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// lexLine splits one comment-free DSL statement into tokens. Triple-quoted strings may
// span several lines of the statement.
func lexLine(line string) []token {
	var toks []token
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case tripleQuote(line, i) != "":
			d := tripleQuote(line, i)
			end := strings.Index(line[i+3:], d)
			if end < 0 {
				return append(toks, token{kind: tokString, text: tripleText(line[i+3:])})
			}
			toks = append(toks, token{kind: tokString, text: tripleText(line[i+3 : i+3+end])})
			i += 3 + end + 3
		case c == '{':
			toks = append(toks, token{kind: tokOpen, text: "{"})
			i++
		case c == '}':
			toks = append(toks, token{kind: tokClose, text: "}"})
			i++
		case c == '\'' || c == '"':
			var b strings.Builder
			j := i + 1
			for ; j < len(line) && line[j] != c; j++ {
				if line[j] == '\\' && j+1 < len(line) {
					j++
				}
				b.WriteByte(line[j])
			}
			toks = append(toks, token{kind: tokString, text: b.String()})
			i = j + 1
		default:
			j := i
			for j < len(line) && !strings.ContainsRune(" \t\r\n{}'\"", rune(line[j])) {
				j++
			}
			toks = append(toks, splitWord(line[i:j])...)
			i = j
		}
	}
	return toks
}

func splitWord(w string) []token {
	switch {
	case w == "":
		return nil
	case w == "=":
		return []token{{kind: tokAssign, text: "="}}
	case strings.Contains(w, "://"):
		return []token{{kind: tokWord, text: w}}
	}

	if m := arrowPattern.FindStringSubmatch(w); m != nil {
		out := splitWord(m[1])
		out = append(out, token{kind: tokArrow, text: m[3]})
		return append(out, splitWord(m[4])...)
	}
	if i := strings.Index(w, "="); i > 0 {
		out := splitWord(w[:i])
		out = append(out, token{kind: tokAssign, text: "="})
		return append(out, splitWord(w[i+1:])...)
	}
	return []token{{kind: tokWord, text: w}}
}

type frameKind int

const (
	frameOther frameKind = iota
	frameModel
	frameElement
	frameGroup
	frameMeta
	frameSpec
)

// frame is one open block; owner is the enclosing element id
type frame struct {
	kind  frameKind
	owner string
}

type rawRelationship struct {
	source, target, kind, title string
	scope                       string
}

var structurizrElements = map[string]bool{
	"person":         true,
	"softwaresystem": true,
	"container":      true,
	"component":      true,
	"element":        true,
}

var repositoryKeys = map[string]bool{
	"repository":    true,
	"repo":          true,
	"repositoryurl": true,
	"sourcerepo":    true,
}

// scanner accumulates components and relationships across the files of one model
type scanner struct {
	d            dialect
	hierarchical bool
	elementKinds map[string]bool

	components   []models.ArchitecturalComponent
	byID         map[string]int
	repoFromMeta map[string]bool
	rels         []rawRelationship

	stack     []frame
	inComment bool
	// inString is the delimiter of a triple-quoted string left open by the previous line
	inString string
	pending  []string
}

func newScanner(d dialect) *scanner {
	return &scanner{
		d:            d,
		hierarchical: d.hierarchical,
		elementKinds: map[string]bool{},
		byID:         map[string]int{},
		repoFromMeta: map[string]bool{},
	}
}

var elementKindPattern = regexp.MustCompile(`(?m)^\s*element\s+([A-Za-z_][\w-]*)`)

// seedKinds registers element kinds declared in any specification block up front,
// so "kind id" declarations resolve regardless of file order.
func (s *scanner) seedKinds(content string) {
	for _, m := range elementKindPattern.FindAllStringSubmatch(content, -1) {
		s.elementKinds[m[1]] = true
	}
}

func (s *scanner) scanFile(content string) {
	s.stack = s.stack[:0]
	s.inComment = false
	s.inString = ""
	s.pending = nil

	if s.d.format == FormatStructurizr && !strings.Contains(content, "workspace") && !modelOpener.MatchString(content) {
		// an !include fragment holds model statements without the wrapper
		s.stack = append(s.stack, frame{kind: frameModel})
	}

	for _, line := range strings.Split(content, "\n") {
		s.scanLine(line)
	}
	if len(s.pending) > 0 {
		// an unterminated string runs to the end of the file
		s.scanStatement(strings.Join(s.pending, "\n"))
		s.pending = nil
	}
}

var modelOpener = regexp.MustCompile(`(?m)^\s*model\s*\{`)

// scanLine feeds one physical line; lines inside a triple-quoted string are held
// back until the string closes
func (s *scanner) scanLine(line string) {
	code := s.stripComments(line)
	if s.inString != "" {
		s.pending = append(s.pending, code)
		return
	}
	if len(s.pending) > 0 {
		code = strings.Join(append(s.pending, code), "\n")
		s.pending = nil
	}
	s.scanStatement(code)
}

func (s *scanner) scanStatement(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if strings.HasPrefix(trimmed, "!") {
		if s.d.format == FormatStructurizr && strings.HasPrefix(trimmed, "!identifiers") && strings.Contains(trimmed, "hierarchical") {
			s.hierarchical = true
		}
		return
	}

	var stmt []token
	for _, t := range lexLine(line) {
		switch t.kind {
		case tokOpen:
			s.open(stmt)
			stmt = nil
		case tokClose:
			if len(stmt) > 0 {
				s.statement(stmt)
				stmt = nil
			}
			if len(s.stack) > 0 {
				s.stack = s.stack[:len(s.stack)-1]
			}
		default:
			stmt = append(stmt, t)
		}
	}
	if len(stmt) > 0 {
		s.statement(stmt)
	}
}

func (s *scanner) stripComments(line string) string {
	if s.inComment {
		end := strings.Index(line, "*/")
		if end < 0 {
			return ""
		}
		line = line[end+2:]
		s.inComment = false
	}

	start := 0
	if s.inString != "" {
		end := strings.Index(line, s.inString)
		if end < 0 {
			return line
		}
		start = end + 3
		s.inString = ""
	} else if s.d.hashComments && strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}

	var quote byte
	for i := start; i < len(line); i++ {
		c := line[i]
		switch {
		case quote == 0 && tripleQuote(line, i) != "":
			d := tripleQuote(line, i)
			end := strings.Index(line[i+3:], d)
			if end < 0 {
				s.inString = d
				return line
			}
			i += 3 + end + 2
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			end := strings.Index(line[i+2:], "*/")
			if end < 0 {
				s.inComment = true
				return line[:i]
			}
			line = line[:i] + " " + line[i+2+end+2:]
		case c == '/' && i+1 < len(line) && line[i+1] == '/' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t'):
			return line[:i]
		}
	}
	return line
}

func (s *scanner) top() frame {
	if len(s.stack) == 0 {
		return frame{kind: frameOther}
	}
	return s.stack[len(s.stack)-1]
}

func (s *scanner) inModel() bool {
	for _, f := range s.stack {
		if f.kind == frameModel {
			return true
		}
	}
	return false
}

func (s *scanner) push(kind frameKind, owner string) {
	s.stack = append(s.stack, frame{kind: kind, owner: owner})
}

func (s *scanner) open(stmt []token) {
	top := s.top()
	owner := top.owner

	if len(stmt) == 0 {
		s.push(frameOther, owner)
		return
	}

	if !s.inModel() {
		switch {
		case len(s.stack) > 0 && top.kind != frameOther:
			s.push(frameOther, owner)
		case stmt[0].text == "model":
			s.push(frameModel, "")
		case stmt[0].text == "specification" && s.d.format == FormatLikeC4:
			s.push(frameSpec, "")
		default:
			s.push(frameOther, "")
		}
		return
	}

	switch top.kind {
	case frameModel, frameElement, frameGroup:
	default:
		s.push(frameOther, owner)
		return
	}

	if id, ok := s.declaration(stmt, owner); ok {
		s.push(frameElement, id)
		return
	}
	if hasArrow(stmt) {
		s.relationship(stmt, owner)
		s.push(frameOther, owner)
		return
	}

	keyword := strings.ToLower(stmt[0].text)
	switch {
	case keyword == s.d.metaBlock && owner != "":
		s.push(frameMeta, owner)
	case keyword == "group":
		s.push(frameGroup, owner)
	case keyword == "extend" && len(stmt) > 1:
		s.push(frameElement, stmt[1].text)
	case s.d.format == FormatStructurizr && structurizrElements[keyword]:
		// element without an identifier; its children keep the outer owner
		s.push(frameGroup, owner)
	default:
		s.push(frameOther, owner)
	}
}

func (s *scanner) statement(stmt []token) {
	top := s.top()
	owner := top.owner

	switch top.kind {
	case frameSpec:
		if len(stmt) >= 2 && stmt[0].text == "element" {
			s.elementKinds[stmt[1].text] = true
		}
		return
	case frameMeta:
		s.metadata(stmt, owner)
		return
	case frameModel, frameElement, frameGroup:
	default:
		return
	}

	if _, ok := s.declaration(stmt, owner); ok {
		return
	}
	if hasArrow(stmt) {
		s.relationship(stmt, owner)
		return
	}
	if owner == "" {
		return
	}
	s.property(stmt, owner)
}

func hasArrow(stmt []token) bool {
	for _, t := range stmt {
		if t.kind == tokArrow {
			return true
		}
	}
	return false
}

func (s *scanner) declaration(stmt []token, owner string) (string, bool) {
	if hasArrow(stmt) {
		return "", false
	}

	if len(stmt) >= 3 && stmt[0].kind == tokWord && stmt[1].kind == tokAssign && stmt[2].kind == tokWord {
		kind := stmt[2].text
		if s.d.format == FormatStructurizr && !structurizrElements[strings.ToLower(kind)] {
			return "", false
		}
		return s.declare(stmt[0].text, kind, stmt[3:], owner), true
	}

	if s.d.format == FormatLikeC4 && len(stmt) >= 2 && stmt[0].kind == tokWord && stmt[1].kind == tokWord &&
		s.elementKinds[stmt[0].text] && !strings.HasPrefix(stmt[1].text, "#") {
		return s.declare(stmt[1].text, stmt[0].text, stmt[2:], owner), true
	}

	return "", false
}

func (s *scanner) declare(name, kind string, rest []token, owner string) string {
	id := name
	if s.hierarchical && owner != "" {
		id = owner + "." + name
	}
	if _, exists := s.byID[id]; exists {
		return id
	}

	c := models.ArchitecturalComponent{ID: id, Name: name, Type: kind, Parent: owner}
	var strs []string
	for _, t := range rest {
		switch {
		case t.kind == tokString:
			strs = append(strs, t.text)
		case t.kind == tokWord && strings.HasPrefix(t.text, "#"):
			c.Tags = append(c.Tags, strings.TrimPrefix(t.text, "#"))
		}
	}
	if len(strs) > 0 {
		c.Name = strs[0]
	}
	if len(strs) > 1 {
		c.Description = strs[1]
	}
	if s.d.format == FormatStructurizr {
		tagsAt := 2
		if k := strings.ToLower(kind); k == "container" || k == "component" {
			tagsAt = 3
		}
		if len(strs) > tagsAt {
			c.Tags = append(c.Tags, splitTags(strs[tagsAt])...)
		}
	}

	s.byID[id] = len(s.components)
	s.components = append(s.components, c)
	return id
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s *scanner) relationship(stmt []token, owner string) {
	at := -1
	for i, t := range stmt {
		if t.kind == tokArrow {
			at = i
			break
		}
	}
	if at+1 >= len(stmt) || stmt[at+1].kind != tokWord {
		return
	}

	source := owner
	if at > 0 {
		source = stmt[at-1].text
	}
	if source == "" {
		return
	}

	rel := rawRelationship{source: source, target: stmt[at+1].text, kind: stmt[at].text, scope: owner}
	var strs []string
	for _, t := range stmt[at+2:] {
		if t.kind == tokString {
			strs = append(strs, t.text)
		}
	}
	if len(strs) > 0 {
		rel.title = strs[0]
	}
	if s.d.format == FormatStructurizr && len(strs) > 1 {
		rel.kind = strs[1]
	}
	s.rels = append(s.rels, rel)
}

func (s *scanner) property(stmt []token, owner string) {
	i, ok := s.byID[owner]
	if !ok {
		return
	}
	c := &s.components[i]

	for _, t := range stmt {
		if t.kind == tokWord && strings.HasPrefix(t.text, "#") && s.d.format == FormatLikeC4 {
			c.Tags = append(c.Tags, strings.TrimPrefix(t.text, "#"))
		}
	}

	value := ""
	if len(stmt) > 1 {
		value = stmt[1].text
	}

	switch strings.ToLower(stmt[0].text) {
	case "description":
		c.Description = value
	case "title":
		c.Name = value
	case "tags":
		c.Tags = append(c.Tags, splitTags(value)...)
	case "link", "url":
		if c.Repository == "" && looksLikeURL(value) {
			c.Repository = value
		}
	}
}

func (s *scanner) metadata(stmt []token, owner string) {
	i, ok := s.byID[owner]
	if !ok || len(stmt) < 2 {
		return
	}
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(stmt[0].text))
	if repositoryKeys[key] && !s.repoFromMeta[owner] {
		s.components[i].Repository = stmt[1].text
		s.repoFromMeta[owner] = true
	}
}

func looksLikeURL(v string) bool {
	return strings.Contains(v, "://") || strings.HasPrefix(v, "git@")
}

// finish resolves relationship references against the declared ids
func (s *scanner) finish() ([]models.ArchitecturalComponent, []models.ModelRelationship) {
	rels := make([]models.ModelRelationship, 0, len(s.rels))
	for _, r := range s.rels {
		rels = append(rels, models.ModelRelationship{
			Source: s.resolve(r.source, r.scope),
			Target: s.resolve(r.target, r.scope),
			Kind:   r.kind,
			Title:  r.title,
		})
	}
	return s.components, rels
}

func (s *scanner) resolve(ref, scope string) string {
	if ref == "this" || ref == "it" {
		return scope
	}
	if _, ok := s.byID[ref]; ok {
		return ref
	}
	if !s.hierarchical {
		return ref
	}

	for sc := scope; sc != ""; {
		if candidate := sc + "." + ref; s.has(candidate) {
			return candidate
		}
		i, ok := s.byID[sc]
		if !ok {
			break
		}
		sc = s.components[i].Parent
	}

	var match string
	for _, c := range s.components {
		if strings.HasSuffix(c.ID, "."+ref) {
			if match != "" {
				return ref
			}
			match = c.ID
		}
	}
	if match != "" {
		return match
	}
	return ref
}

func (s *scanner) has(id string) bool {
	_, ok := s.byID[id]
	return ok
}
