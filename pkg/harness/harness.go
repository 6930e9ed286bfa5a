// Package harness spawns TAP-producing test programs concurrently and
// reports their lifecycle and assertions to a Listener, one signal at a
// time.
package harness

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"golang.org/x/sync/errgroup"

	"taplive/pkg/report"
	"taplive/pkg/tap"
)

// Listener receives harness signals. *report.Bridge implements it.
type Listener interface {
	TestAdded(name, parent string)
	TestStarted(name string)
	Assertion(a report.Assertion)
	TestEnded(name string, res *report.Results)
	RunEnded(res report.Results)
}

// Options tunes a Harness.
type Options struct {
	// Jobs limits concurrently running programs; <= 0 means one.
	Jobs int
	// Timeout kills a program that runs longer; zero disables it. It is
	// also exported to children as TAP_TIMEOUT in seconds.
	Timeout time.Duration
	// Env is appended to the inherited environment.
	Env []string
	// Logger receives stderr tails and spawn failures. Nil discards.
	Logger *log.Logger
}

// Harness runs programs and serializes their signals to one Listener.
type Harness struct {
	opts Options
	l    Listener
	mu   sync.Mutex
}

// New creates a harness reporting to l.
func New(l Listener, opts Options) *Harness {
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Harness{opts: opts, l: l}
}

// Run executes every program and ends the run. The returned results are
// the root aggregate: one count per program. A cancelled ctx stops
// launching new programs, kills running ones and is returned as the error
// after run-ended has been signalled.
func (h *Harness) Run(ctx context.Context, programs []Program) (report.Results, error) {
	start := time.Now()
	for _, p := range programs {
		h.emit(func(l Listener) { l.TestAdded(p.Name, "") })
	}

	var (
		mu   sync.Mutex
		root report.Results
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Jobs)
	for _, p := range programs {
		g.Go(func() error {
			if gctx.Err() != nil {
				res := report.Results{OK: false}
				h.emit(func(l Listener) { l.TestEnded(p.Name, &res) })
				tally(&mu, &root, res.OK)
				return nil
			}
			res := h.runProgram(gctx, p)
			tally(&mu, &root, res.OK)
			return nil
		})
	}
	_ = g.Wait()

	root.OK = root.Counts.Fail == 0 && ctx.Err() == nil
	root.Duration = time.Since(start)
	h.emit(func(l Listener) { l.RunEnded(root) })

	if err := ctx.Err(); err != nil {
		return root, fmt.Errorf("run interrupted: %w", err)
	}
	return root, nil
}

func tally(mu *sync.Mutex, root *report.Results, ok bool) {
	mu.Lock()
	defer mu.Unlock()
	root.Counts.Total++
	if ok {
		root.Counts.Pass++
	} else {
		root.Counts.Fail++
	}
}

func (h *Harness) emit(fn func(l Listener)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.l)
}

// runProgram spawns one program, streams its stdout through a TAP parser
// and ends the test. Failures the TAP stream does not explain (timeout,
// exit status, missing plan, spawn error) are reported as one synthetic
// failing assertion so the failure log always shows why.
func (h *Harness) runProgram(ctx context.Context, p Program) report.Results {
	h.emit(func(l Listener) { l.TestStarted(p.Name) })
	start := time.Now()

	runCtx := ctx
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, p.Command[0], p.Command[1:]...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error { return killProcessGroup(cmd.Process.Pid) }
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), "TAP=1")
	if h.opts.Timeout > 0 {
		cmd.Env = append(cmd.Env, "TAP_TIMEOUT="+strconv.Itoa(int(h.opts.Timeout.Seconds())))
	}
	cmd.Env = append(cmd.Env, h.opts.Env...)
	var stderr tailBuffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return h.abort(p, start, &ProgramError{Program: p.Name, Command: p.Command, Err: fmt.Errorf("stdout pipe: %w", err)})
	}
	if err := cmd.Start(); err != nil {
		return h.abort(p, start, &ProgramError{Program: p.Name, Command: p.Command, Err: err})
	}

	parser := tap.NewParser(&programListener{h: h, name: p.Name})
	overlong, readErr := readLines(stdout, func(line string) {
		parser.Line(stripansi.Strip(line))
	})
	tres := parser.End()
	waitErr := cmd.Wait()

	res := convertResults(tres)
	res.Duration = time.Since(start)

	if overlong > 0 || readErr != nil {
		diag := report.Diagnostic{"skipped_lines": overlong, "max_line_bytes": maxLineBytes}
		if readErr != nil {
			diag["error"] = readErr.Error()
		}
		a := report.Assertion{Test: p.Name, Name: "unreadable output", Diag: diag}
		h.emit(func(l Listener) { l.Assertion(a) })
		res.OK = false
		res.Counts.Fail++
		res.Counts.Total++
	}

	var synthetic *report.Assertion
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.OK = false
		synthetic = &report.Assertion{Name: "timeout!", Diag: report.Diagnostic{
			"expired": p.Name,
			"timeout": h.opts.Timeout.Seconds(),
		}}
	case ctx.Err() != nil:
		res.OK = false
		synthetic = &report.Assertion{Name: "interrupted", Diag: report.Diagnostic{"signal": ctx.Err().Error()}}
	case waitErr != nil:
		res.OK = false
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		if tres.Fail == 0 {
			synthetic = &report.Assertion{Name: fmt.Sprintf("exited with code %d", res.ExitCode), Diag: report.Diagnostic{
				"command": strings.Join(p.Command, " "),
				"error":   waitErr.Error(),
			}}
		}
	case !tres.OK && tres.Fail == 0 && tres.Bailout != "":
		synthetic = &report.Assertion{Name: "Bail out! " + tres.Bailout}
	case !tres.OK && tres.Fail == 0:
		synthetic = &report.Assertion{Name: "plan not satisfied", Diag: planDiag(tres)}
	}

	if synthetic != nil {
		if tail := stderr.String(); tail != "" {
			if synthetic.Diag == nil {
				synthetic.Diag = report.Diagnostic{}
			}
			synthetic.Diag["stderr"] = tail
			h.opts.Logger.Printf("harness: %s stderr:\n%s", p.Name, tail)
		}
		synthetic.Test = p.Name
		a := *synthetic
		h.emit(func(l Listener) { l.Assertion(a) })
		res.Counts.Fail++
		res.Counts.Total++
	}

	h.emit(func(l Listener) { l.TestEnded(p.Name, &res) })
	return res
}

// maxLineBytes bounds one line of program output. Longer lines are
// skipped, not parsed.
const maxLineBytes = 4 * 1024 * 1024

// readLines calls fn for every line of r without its newline. Lines over
// maxLineBytes are dropped and counted, and reading continues so the
// program never blocks on a full pipe.
func readLines(r io.Reader, fn func(line string)) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		line     []byte
		overlong int
		skipping bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		switch {
		case skipping:
		case len(line)+len(chunk) > maxLineBytes:
			skipping = true
			overlong++
			line = line[:0]
		default:
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if !skipping && (err == nil || len(line) > 0) {
			fn(strings.TrimSuffix(string(line), "\n"))
		}
		line = line[:0]
		skipping = false
		if errors.Is(err, io.EOF) {
			return overlong, nil
		}
		if err != nil {
			return overlong, fmt.Errorf("read stdout: %w", err)
		}
	}
}

func (h *Harness) abort(p Program, start time.Time, err *ProgramError) report.Results {
	h.opts.Logger.Printf("harness: %v", err)
	res := report.Results{OK: false, Duration: time.Since(start), Counts: report.Counts{Total: 1, Fail: 1}}
	a := report.Assertion{Test: p.Name, Name: "failed to spawn", Diag: report.Diagnostic{"error": err.Error()}}
	h.emit(func(l Listener) {
		l.Assertion(a)
		l.TestEnded(p.Name, &res)
	})
	return res
}

func planDiag(res tap.Results) report.Diagnostic {
	if res.Plan == nil {
		return report.Diagnostic{"plan": "no plan found", "count": res.Count}
	}
	return report.Diagnostic{
		"plan":  fmt.Sprintf("%d..%d", res.Plan.Start, res.Plan.End),
		"count": res.Count,
	}
}

func convertResults(r tap.Results) report.Results {
	res := report.Results{
		OK: r.OK,
		Counts: report.Counts{
			Total: r.Count,
			Pass:  r.Pass,
			Fail:  r.Fail,
			Skip:  r.Skip,
			Todo:  r.Todo,
		},
		Bailout: r.Bailout,
	}
	if r.Plan != nil {
		res.Plan = r.Plan.End - r.Plan.Start + 1
	}
	return res
}

// programListener maps parser events of one program onto test names:
// subtests become "<program>/<sub>/<subsub>".
type programListener struct {
	h    *Harness
	name string
}

func (pl *programListener) testName(path []string) string {
	name := pl.name
	for _, p := range path {
		name = report.SubtestName(name, p)
	}
	return name
}

func (pl *programListener) parentName(path []string) string {
	return pl.testName(path[:len(path)-1])
}

func (pl *programListener) SubtestStart(path []string) {
	name, parent := pl.testName(path), pl.parentName(path)
	pl.h.emit(func(l Listener) {
		l.TestAdded(name, parent)
		l.TestStarted(name)
	})
}

func (pl *programListener) SubtestEnd(path []string, res tap.Results) {
	name := pl.testName(path)
	r := convertResults(res)
	pl.h.emit(func(l Listener) { l.TestEnded(name, &r) })
}

func (pl *programListener) Assert(path []string, a tap.Assert) {
	as := report.Assertion{
		Test:      pl.testName(path),
		ID:        a.ID,
		OK:        a.OK,
		Name:      a.Name,
		Directive: report.Directive(a.Directive),
		Reason:    a.Reason,
		Diag:      a.Diag,
	}
	pl.h.emit(func(l Listener) { l.Assertion(as) })
}

func (pl *programListener) Comment([]string, string) {}

func (pl *programListener) Bailout(path []string, reason string) {
	pl.h.opts.Logger.Printf("harness: %s bailed out: %s", pl.testName(path), reason)
}

// tailBuffer keeps the last few KiB written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const tailLimit = 4096

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	if over := t.buf.Len() - tailLimit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
