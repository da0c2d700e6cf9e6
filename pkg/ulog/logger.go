// Package ulog is the ambient logging and progress-reporting layer
// every layoutctl subcommand shares: leveled text output to the
// terminal, and a single progress-bar use for the one long-running
// scan this module has (debug verify, a full-device walk).
package ulog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// Logger is the leveled text-logging surface every subcommand logs
// through. Debugf/Infof are gated by the CLI's IsDebug/IsVerbose flags
// so a plain run stays quiet.
type Logger interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Printf(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	IsInfoEnabled() bool
	IsDebugEnabled() bool
}

// Progress tracks one long-running operation's completion against a
// known total, e.g. blocks scanned out of a device's total block count.
type Progress interface {
	Increment(n int64)
	Finish(success bool)
}

// ProgressReporter creates Progress trackers.
type ProgressReporter interface {
	NewProgress(label string, total int64) Progress
}

// View is the combined surface layoutctl threads through its commands.
type View interface {
	Logger
	ProgressReporter
}

// CLI is a View backed by logrus for text and mpb for progress bars.
type CLI struct {
	DisableColors bool
	DisableTTY    bool
	IsDebug       bool
	IsVerbose     bool

	lock               sync.Mutex
	isTrackingProgress bool
	bars               map[*mpb.Bar]bool
	buffer             *bytes.Buffer
	progressContainer  *mpb.Progress
}

// New returns a CLI with colors and progress bars enabled only when
// stdout is an actual terminal, the same detection go-isatty gives the
// rest of the ecosystem.
func New() *CLI {
	isTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return &CLI{
		DisableColors: !isTTY,
		DisableTTY:    !isTTY,
	}
}

// Stdout returns a writer that renders ANSI color codes correctly on
// the current platform (a no-op wrapper outside Windows).
func (log *CLI) Stdout() io.Writer {
	return colorable.NewColorableStdout()
}

func (log *CLI) Debugf(format string, x ...interface{}) {
	if log.IsDebug {
		logrus.Tracef(format, x...)
	}
}

func (log *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(format, x...)
}

func (log *CLI) Infof(format string, x ...interface{}) {
	if log.IsVerbose {
		logrus.Debugf(format, x...)
	}
}

func (log *CLI) Printf(format string, x ...interface{}) {
	logrus.Printf(format, x...)
}

func (log *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(format, x...)
}

func (log *CLI) IsInfoEnabled() bool {
	return logrus.IsLevelEnabled(logrus.InfoLevel)
}

func (log *CLI) IsDebugEnabled() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

// NewProgress creates a progress bar tracking total units of work
// (e.g. blocks) under label. With DisableTTY it returns a silent
// tracker that still accepts Increment/Finish calls.
func (log *CLI) NewProgress(label string, total int64) Progress {
	if log.DisableTTY {
		return &nilProgress{}
	}

	log.lock.Lock()
	defer log.lock.Unlock()

	if !log.isTrackingProgress {
		log.isTrackingProgress = true
		log.buffer = new(bytes.Buffer)
		logrus.SetOutput(log.buffer)
		log.progressContainer = mpb.New(mpb.WithWidth(80))
		log.bars = make(map[*mpb.Bar]bool)
	}

	bar := log.progressContainer.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight}),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done",
			),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)
	log.bars[bar] = true

	return &pb{log: log, bar: bar, total: total}
}

// Format renders a logrus entry for terminal output, coloring by level
// unless DisableColors is set.
func (log *CLI) Format(entry *logrus.Entry) ([]byte, error) {
	faint := color.New(color.Faint).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	x := entry.Message
	if !log.DisableColors {
		switch entry.Level {
		case logrus.TraceLevel:
			x = fmt.Sprintf("%s\n", faint(x))
		case logrus.DebugLevel:
			x = fmt.Sprintf("%s\n", blue(x))
		case logrus.InfoLevel:
			x = fmt.Sprintf("%s\n", x)
		case logrus.WarnLevel:
			x = fmt.Sprintf("%s\n", yellow(x))
		case logrus.ErrorLevel:
			x = fmt.Sprintf("%s\n", red(x))
		}
	} else {
		x = fmt.Sprintf("%s\n", x)
	}

	return []byte(x), nil
}

type nilProgress struct{}

func (*nilProgress) Increment(n int64)   {}
func (*nilProgress) Finish(success bool) {}

type pb struct {
	log        *CLI
	bar        *mpb.Bar
	closed     bool
	total      int64
	done       int64
	buffered   int64
	nextUpdate time.Time
}

func (p *pb) Increment(n int64) {
	p.buffered += n
	p.done += n
	if p.nextUpdate.IsZero() || !time.Now().Before(p.nextUpdate) {
		p.flush()
	}
}

func (p *pb) flush() {
	p.nextUpdate = time.Now().Add(100 * time.Millisecond)
	p.bar.IncrInt64(p.buffered)
	p.buffered = 0
}

func (p *pb) Finish(success bool) {
	if p.closed {
		return
	}
	p.flush()
	p.closed = true
	if p.done != p.total || !success {
		p.bar.Abort(false)
	}

	p.log.lock.Lock()
	defer p.log.lock.Unlock()
	delete(p.log.bars, p.bar)

	if len(p.log.bars) == 0 {
		p.log.bars = nil
		p.log.isTrackingProgress = false
		p.log.progressContainer.Wait()
		p.log.progressContainer = nil
		logrus.SetOutput(os.Stdout)
		_, _ = p.log.buffer.WriteTo(os.Stdout)
		p.log.buffer = nil
	}
}
