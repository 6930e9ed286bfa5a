package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"taplive/pkg/eventlog"
	"taplive/pkg/harness"
	"taplive/pkg/report"
)

// eventMsg carries one normalized event from the harness goroutine.
type eventMsg report.Event

// runDoneMsg is sent after the harness returned; err is non-nil when the
// run was interrupted.
type runDoneMsg struct{ err error }

// chanSink hands events to the bubbletea program. Events are applied on
// the program's goroutine, so the aggregator is never touched concurrently.
type chanSink struct {
	ch   chan<- tea.Msg
	done <-chan struct{}
}

// Apply implements report.Sink. Violations are detected when the model
// applies the event, not here.
func (s chanSink) Apply(ev report.Event) error {
	select {
	case s.ch <- eventMsg(ev):
	case <-s.done:
	}
	return nil
}

// waitForEvent returns a command that blocks for the next harness message.
func waitForEvent(sub <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// liveModel is the bubbletea model of the live reporter. Failures and the
// summary are printed above the program with tea.Println and never
// rewritten; View renders only the running tests and tallies.
type liveModel struct {
	rec    *eventlog.Recorder
	run    *report.Run
	events <-chan tea.Msg
	cancel context.CancelFunc
	logger *log.Logger
	styles Styles

	spinner spinner.Model
	cursor  *report.LogCursor
	now     func() time.Time

	interrupted bool
	done        bool
	err         error
}

func newLiveModel(rec *eventlog.Recorder, run *report.Run, events <-chan tea.Msg, cancel context.CancelFunc, logger *log.Logger, styles Styles) liveModel {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = styles.Running
	return liveModel{
		rec:     rec,
		run:     run,
		events:  events,
		cancel:  cancel,
		logger:  logger,
		styles:  styles,
		spinner: spin,
		cursor:  &report.LogCursor{},
		now:     time.Now,
	}
}

// Init implements tea.Model.
func (m liveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update implements tea.Model.
func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		ev := report.Event(msg)
		if err := m.rec.Apply(ev); err != nil {
			m.logger.Printf("report: %s event for %q not applied: %v", ev.Kind, ev.Test, err)
		}
		return m, tea.Sequence(m.printNew(), waitForEvent(m.events))

	case runDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Sequence(m.printNew(), tea.Quit)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.interrupted {
				// Second request: stop waiting for the harness.
				m.done = true
				return m, tea.Quit
			}
			m.interrupted = true
			m.cancel()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// printNew returns a command printing log lines not yet emitted, or nil.
func (m liveModel) printNew() tea.Cmd {
	lines := m.newLines()
	if len(lines) == 0 {
		return nil
	}
	return tea.Println(strings.Join(lines, "\n"))
}

func (m liveModel) newLines() []string {
	var out []string
	for _, l := range m.cursor.Next(report.Project(m.run, m.now())) {
		out = append(out, renderLine(l, m.styles))
	}
	return out
}

// View implements tea.Model.
func (m liveModel) View() string {
	if m.done {
		return ""
	}
	v := report.Project(m.run, m.now())
	out := renderLive(v, m.styles, m.spinner.View())
	if m.interrupted {
		out += "\n" + m.styles.Violation.Render("interrupting, waiting for test programs to exit…")
	}
	return out + "\n"
}

// runLive runs programs under the bubbletea live reporter. The first
// ctrl+c cancels the harness, which kills running programs and still ends
// the run; a second one leaves immediately.
func runLive(ctx context.Context, env runEnv) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 64)
	exited := make(chan struct{})
	model := newLiveModel(env.recorder, env.run, events, cancel, env.logger, env.styles)
	p := tea.NewProgram(model, tea.WithOutput(env.out))

	go func() {
		sink := chanSink{ch: events, done: exited}
		_, err := harness.New(report.NewBridge(sink, env.logger), env.harnessOpts).Run(runCtx, env.programs)
		select {
		case events <- runDoneMsg{err: err}:
		case <-exited:
		}
	}()

	final, err := p.Run()
	close(exited)
	if err != nil {
		return fmt.Errorf("live reporter: %w", err)
	}
	if s := env.run.Summary(); s != nil && len(s.Timings) > 0 {
		fmt.Fprint(env.out, renderTimings(s, env.color))
	}
	if fm, ok := final.(liveModel); ok {
		if fm.err != nil {
			return fm.err
		}
		if !fm.run.Closed() {
			return errInterrupted
		}
	}
	return nil
}
