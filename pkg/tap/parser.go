// Package tap parses Test Anything Protocol output into assertions,
// plans and nested subtests.
package tap

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Assert is one parsed test point.
type Assert struct {
	ID        int
	OK        bool
	Name      string
	Directive string // "skip", "todo" or ""
	Reason    string
	Diag      map[string]any
}

// Plan is a parsed "1..N" line.
type Plan struct {
	Start int
	End   int
	Skip  string
}

// Results summarizes one stream (the root or a subtest) once it ends.
type Results struct {
	OK       bool
	Count    int
	Pass     int
	Fail     int
	Skip     int
	Todo     int
	Plan     *Plan
	Bailout  string
	Failures []Assert
}

// Listener receives parse events. Path is empty for the root stream and
// holds the subtest names from the root down otherwise.
type Listener interface {
	SubtestStart(path []string)
	SubtestEnd(path []string, res Results)
	Assert(path []string, a Assert)
	Comment(path []string, text string)
	Bailout(path []string, reason string)
}

const indent = "    "

var (
	planRe      = regexp.MustCompile(`^(\d+)\.\.(\d+)(?:\s*#\s*(.*))?$`)
	assertRe    = regexp.MustCompile(`^(not )?ok\b(?:\s+(\d+))?(?:\s*-?\s*(.*))?$`)
	directiveRe = regexp.MustCompile(`(?i)^(.*?)(?:^|\s+)#\s*(todo|skip)\S*\s*(.*)$`)
	timeRe      = regexp.MustCompile(`\s*#\s*time=\S+\s*$`)
)

// Parser consumes TAP lines for one stream level. Subtest lines, indented
// by four spaces, are delegated to a child parser.
type Parser struct {
	l    Listener
	path []string
	res  Results

	child *Parser
	// anon buffers an indented block that had no "# Subtest:" header. Its
	// name is only known from the parent's closing assert.
	anon []string

	pending *Assert
	// buffered is the parent assert of a "{ ... }" subtest block. It is
	// flushed after the block closes so the child ends first.
	buffered *Assert
	inYAML   bool
	yaml    []string
	closed  bool
}

// NewParser creates a root parser reporting to l.
func NewParser(l Listener) *Parser {
	return &Parser{l: l}
}

// Parse reads r to EOF and returns the root results.
func Parse(r io.Reader, l Listener) (Results, error) {
	p := NewParser(l)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		p.Line(sc.Text())
	}
	res := p.End()
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read tap stream: %w", err)
	}
	return res, nil
}

// Line feeds one line without its trailing newline.
func (p *Parser) Line(line string) {
	if p.closed {
		return
	}
	line = strings.TrimRight(line, "\r")

	if p.inYAML {
		if strings.TrimSpace(line) == "..." {
			p.finishYAML()
			return
		}
		p.yaml = append(p.yaml, strings.TrimPrefix(line, "  "))
		return
	}

	if p.pending != nil && strings.TrimSpace(line) == "---" && strings.HasPrefix(line, "  ") {
		p.inYAML = true
		return
	}

	if strings.HasPrefix(line, indent) {
		p.flushAssert()
		p.subtestLine(strings.TrimPrefix(line, indent))
		return
	}

	if strings.TrimSpace(line) == "" {
		return
	}

	if p.buffered != nil {
		closing := strings.TrimSpace(line) == "}"
		p.finishBuffered()
		if closing {
			return
		}
	}

	p.flushAssert()
	p.parseLine(line)
}

func (p *Parser) subtestLine(line string) {
	if p.child == nil && p.anon == nil {
		if name, ok := subtestHeader(line); ok {
			p.openChild(name)
			return
		}
		p.anon = []string{}
	}
	if p.anon != nil {
		p.anon = append(p.anon, line)
		return
	}
	p.child.Line(line)
}

func (p *Parser) parseLine(line string) {
	if m := assertRe.FindStringSubmatch(line); m != nil {
		var buffered bool
		m[3], buffered = strings.CutSuffix(strings.TrimSpace(m[3]), "{")
		a := parseAssert(m)
		if buffered {
			p.openBuffered(a)
			return
		}
		p.closeChild(a.Name)
		p.pending = &a
		return
	}

	p.closeChild("")

	if name, ok := subtestHeader(line); ok {
		if !p.repeatsOwnHeader(name) {
			p.openChild(name)
		}
		return
	}
	if m := planRe.FindStringSubmatch(line); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		plan := &Plan{Start: start, End: end}
		if m[3] != "" && strings.HasPrefix(strings.ToLower(m[3]), "skip") {
			plan.Skip = strings.TrimSpace(strings.TrimPrefix(m[3][4:], ":"))
		}
		p.res.Plan = plan
		return
	}
	if reason, ok := strings.CutPrefix(line, "Bail out!"); ok {
		p.res.Bailout = strings.TrimSpace(reason)
		if p.res.Bailout == "" {
			p.res.Bailout = "bailed out"
		}
		p.l.Bailout(p.path, p.res.Bailout)
		return
	}
	if text, ok := strings.CutPrefix(line, "#"); ok {
		p.l.Comment(p.path, strings.TrimSpace(text))
	}
	// Version lines and unrecognized output are ignored.
}

// openBuffered starts a subtest whose result line came first. A header
// for the same name that opened an empty child just before is reused.
func (p *Parser) openBuffered(a Assert) {
	name := a.Name
	if name == "" {
		name = "(unnamed)"
	}
	if c := p.child; c == nil || !c.empty() || c.path[len(c.path)-1] != name {
		p.openChild(name)
	}
	p.buffered = &a
}

// finishBuffered ends the buffered subtest and queues its parent assert.
func (p *Parser) finishBuffered() {
	a := p.buffered
	p.buffered = nil
	p.closeChild("")
	p.pending = a
}

func (p *Parser) empty() bool {
	return p.res.Count == 0 && p.res.Plan == nil && p.pending == nil && p.child == nil && p.anon == nil
}

func subtestHeader(line string) (string, bool) {
	name, ok := strings.CutPrefix(strings.TrimSpace(line), "# Subtest")
	if !ok {
		return "", false
	}
	name = strings.TrimPrefix(name, ":")
	return strings.TrimSpace(name), true
}

// repeatsOwnHeader reports whether a header naming this subtest arrives
// before any of its content. Producers that print the header both before
// and inside the indented block would otherwise nest a phantom child.
func (p *Parser) repeatsOwnHeader(name string) bool {
	if len(p.path) == 0 || p.res.Count > 0 || p.res.Plan != nil || p.pending != nil {
		return false
	}
	return name == p.path[len(p.path)-1]
}

func (p *Parser) openChild(name string) {
	p.closeChild("")
	path := append(append([]string(nil), p.path...), name)
	p.child = &Parser{l: p.l, path: path}
	p.l.SubtestStart(path)
}

// closeChild ends the open subtest. name is the closing assert's name,
// used to label an anonymous buffered subtest.
func (p *Parser) closeChild(name string) {
	if p.anon != nil {
		lines := p.anon
		p.anon = nil
		if name == "" {
			name = "(unnamed)"
		}
		p.openChild(name)
		for _, l := range lines {
			p.child.Line(l)
		}
	}
	if p.child == nil {
		return
	}
	c := p.child
	p.child = nil
	res := c.End()
	p.l.SubtestEnd(c.path, res)
}

func parseAssert(m []string) Assert {
	a := Assert{OK: m[1] == ""}
	if m[2] != "" {
		a.ID, _ = strconv.Atoi(m[2])
	}
	desc := timeRe.ReplaceAllString(m[3], "")
	if d := directiveRe.FindStringSubmatch(desc); d != nil {
		desc = d[1]
		if strings.HasPrefix(strings.ToLower(d[2]), "todo") {
			a.Directive = "todo"
		} else {
			a.Directive = "skip"
		}
		a.Reason = strings.TrimSpace(d[3])
	}
	a.Name = strings.ReplaceAll(strings.TrimSpace(desc), `\#`, "#")
	return a
}

func (p *Parser) finishYAML() {
	p.inYAML = false
	text := strings.Join(p.yaml, "\n")
	p.yaml = nil
	if p.pending == nil {
		return
	}
	var diag map[string]any
	if err := yaml.Unmarshal([]byte(text), &diag); err != nil || diag == nil {
		diag = map[string]any{"raw": text}
	}
	p.pending.Diag = diag
	p.flushAssert()
}

func (p *Parser) flushAssert() {
	if p.pending == nil {
		return
	}
	a := *p.pending
	p.pending = nil

	p.res.Count++
	if a.ID == 0 {
		a.ID = p.res.Count
	}
	switch {
	case a.Directive == "todo":
		p.res.Todo++
	case a.Directive == "skip":
		p.res.Skip++
	case a.OK:
		p.res.Pass++
	default:
		p.res.Fail++
		p.res.Failures = append(p.res.Failures, a)
	}
	p.l.Assert(p.path, a)
}

// End flushes buffered state, closes any open subtest and returns the
// results. A stream is ok when it has no failures, did not bail out, and
// its plan is present and satisfied.
func (p *Parser) End() Results {
	if p.closed {
		return p.res
	}
	if p.inYAML {
		p.finishYAML()
	}
	if p.buffered != nil {
		p.finishBuffered()
	}
	p.flushAssert()
	p.closeChild("")
	p.closed = true

	p.res.OK = p.res.Fail == 0 && p.res.Bailout == "" && p.planSatisfied()
	return p.res
}

func (p *Parser) planSatisfied() bool {
	plan := p.res.Plan
	if plan == nil {
		return false
	}
	if plan.End < plan.Start {
		return p.res.Count == 0
	}
	return p.res.Count == plan.End-plan.Start+1
}
