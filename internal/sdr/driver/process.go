package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// WaitDelay bounds how long a stopped tool may keep its pipes open
	WaitDelay = 2 * time.Second

	maxStderrLine = 4096
)

// Settings is the receive configuration a Tool turns into command line arguments.
type Settings struct {
	Frequency   float64
	SampleRate  float64
	Gain        float64
	Bandwidth   float64
	Antenna     string
	ClockSource string
	TimeSource  string
}

// Tool describes a vendor streaming utility that writes raw I/Q samples to stdout.
type Tool interface {
	Name() string    // Driver name, e.g. "rtlsdr"
	Runtime() string // Binary name, e.g. "rtl_sdr"
	Format() SampleFormat

	// Args returns the command line for streaming with the given settings to stdout.
	Args(serial string, s Settings) ([]string, error)

	// IsOverflow reports whether a stderr line signals dropped samples.
	IsOverflow(line string) bool
}

// WithProcessLogger sets the logger for the process driver
func WithProcessLogger(logger *slog.Logger) func(p *Process) {
	return func(p *Process) {
		p.logger = logger.With(slog.String("driver", p.tool.Name()))
	}
}

// WithRuntimePath uses binPath instead of searching for the tool binary
func WithRuntimePath(binPath string) func(p *Process) {
	return func(p *Process) {
		p.binPath = binPath
	}
}

// Process is a single channel Driver that streams from an external tool. Settings
// are applied by restarting the tool when a stream is running.
type Process struct {
	tool Tool

	mu       sync.Mutex
	binPath  string
	serial   string
	open     bool
	settings Settings

	streamCtx context.Context
	cancel    context.CancelFunc
	stdout    *os.File
	exited    chan struct{}
	exitErr   error
	wg        sync.WaitGroup

	raw     []byte
	pending int

	overflows     atomic.Uint64
	seenOverflows uint64

	logger *slog.Logger
}

func NewProcess(tool Tool, options ...func(p *Process)) *Process {
	p := Process{
		tool:   tool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Open locates the tool binary and binds the driver to serial. Opening twice fails with ErrBusy.
func (p *Process) Open(serial string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open {
		return ErrBusy
	}

	if p.binPath == "" {
		binPath, err := FindRuntime(p.tool.Runtime())
		if err != nil {
			return err
		}
		p.binPath = binPath
	}

	p.serial = serial
	p.open = true
	p.logger.Info("driver opened", slog.String("runtime", p.binPath), slog.String("serial", serial))
	return nil
}

func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil
	}

	err := p.stopLocked()
	p.open = false
	p.serial = ""
	return err
}

func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := Info{
		Driver:  p.tool.Name(),
		Serial:  p.serial,
		Runtime: p.binPath,
	}
	if args, err := p.tool.Args(p.serial, p.settings); err == nil {
		info.Args = strings.Join(args, " ")
	}
	return info
}

func (p *Process) NumChannels() int {
	return 1
}

func (p *Process) SetClockSource(source string) error {
	return p.update(func(s *Settings) { s.ClockSource = source })
}

func (p *Process) SetTimeSource(source string) error {
	return p.update(func(s *Settings) { s.TimeSource = source })
}

func (p *Process) ClockSource() string {
	return p.get().ClockSource
}

func (p *Process) TimeSource() string {
	return p.get().TimeSource
}

func (p *Process) SetFrequency(hz float64, _ int) error {
	return p.update(func(s *Settings) { s.Frequency = hz })
}

func (p *Process) SetSampleRate(sps float64, _ int) error {
	return p.update(func(s *Settings) { s.SampleRate = sps })
}

func (p *Process) SetGain(db float64, _ int) error {
	return p.update(func(s *Settings) { s.Gain = db })
}

func (p *Process) SetBandwidth(hz float64, _ int) error {
	return p.update(func(s *Settings) { s.Bandwidth = hz })
}

func (p *Process) SetAntenna(name string, _ int) error {
	return p.update(func(s *Settings) { s.Antenna = name })
}

func (p *Process) Frequency(int) float64  { return p.get().Frequency }
func (p *Process) SampleRate(int) float64 { return p.get().SampleRate }
func (p *Process) Gain(int) float64       { return p.get().Gain }
func (p *Process) Bandwidth(int) float64  { return p.get().Bandwidth }
func (p *Process) Antenna(int) string     { return p.get().Antenna }

func (p *Process) get() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// update applies fn to the settings, restarting a running stream so the tool picks them up.
func (p *Process) update(fn func(s *Settings)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return ErrNotOpen
	}

	previous := p.settings
	fn(&p.settings)

	if p.stdout == nil || p.settings == previous {
		return nil
	}

	ctx := p.streamCtx
	if err := p.stopLocked(); err != nil {
		p.logger.Warn(fmt.Sprintf("error stopping stream for restart: %s", err.Error()))
	}
	return p.startLocked(ctx)
}

func (p *Process) StartStream(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return ErrNotOpen
	}
	if p.stdout != nil {
		return nil // already streaming
	}

	return p.startLocked(ctx)
}

func (p *Process) startLocked(ctx context.Context) error {
	args, err := p.tool.Args(p.serial, p.settings)
	if err != nil {
		return NewConfigError("%s: %w", p.tool.Name(), err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(streamCtx, p.binPath, args...)
	cmd.WaitDelay = WaitDelay
	cmd.Stderr = &stderrWriter{p: p}

	stdout, w, err := os.Pipe()
	if err != nil {
		cancel()
		return NewRuntimeError("error creating stdout pipe: %w", err)
	}
	cmd.Stdout = w

	if err = cmd.Start(); err != nil {
		cancel()
		_ = stdout.Close()
		_ = w.Close()
		return NewRuntimeError("error starting %s: %w", p.tool.Runtime(), err)
	}
	_ = w.Close() // the child holds its own copy

	p.streamCtx = ctx
	p.cancel = cancel
	p.stdout = stdout
	p.exited = make(chan struct{})
	p.exitErr = nil
	p.pending = 0
	p.seenOverflows = p.overflows.Load()

	p.wg.Add(1)
	go p.handleCmdWait(cmd, p.exited)

	p.logger.Info("stream started", slog.String("args", strings.Join(args, " ")))
	return nil
}

// handleCmdWait waits for the command to exit and records the exit error
func (p *Process) handleCmdWait(cmd *exec.Cmd, exited chan<- struct{}) {
	defer p.wg.Done()

	err := cmd.Wait()
	if err != nil && cmd.ProcessState != nil && !cmd.ProcessState.Exited() {
		err = nil // killed on stop
	}
	if err != nil {
		p.exitErr = fmt.Errorf("%s exited with error: %w", p.tool.Runtime(), err)
	}

	close(exited)
}

func (p *Process) StopStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stopLocked()
}

func (p *Process) stopLocked() error {
	if p.stdout == nil {
		return nil
	}

	p.cancel()
	p.wg.Wait()

	err := p.stdout.Close()
	p.stdout = nil

	if err != nil && !errors.Is(err, fs.ErrClosed) {
		return NewRuntimeError("error closing stdout: %w", err)
	}

	p.logger.Info("stream stopped")
	return nil
}

// Read decodes the samples available within timeout. Partial samples are kept for
// the next call. A block read after the tool reported an overflow is flagged
// RecvOverflow.
func (p *Process) Read(buf []complex64, timeout time.Duration) (int, RecvCode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdout == nil {
		return 0, RecvError, ErrNotStreaming
	}
	if len(buf) == 0 {
		return 0, RecvOK, nil
	}

	format := p.tool.Format()
	size := format.Size()
	need := len(buf) * size
	if cap(p.raw) < need {
		raw := make([]byte, need)
		copy(raw, p.raw[:p.pending])
		p.raw = raw
	}
	p.raw = p.raw[:need]

	if err := p.stdout.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, RecvError, NewRuntimeError("error setting read deadline: %w", err)
	}

	n, err := p.stdout.Read(p.raw[p.pending:])
	total := p.pending + n
	count := format.Decode(buf, p.raw[:total])
	p.pending = copy(p.raw, p.raw[count*size:total])

	switch {
	case err == nil:
	case errors.Is(err, os.ErrDeadlineExceeded):
		if count == 0 {
			return 0, RecvTimeout, nil
		}
	case errors.Is(err, io.EOF), errors.Is(err, fs.ErrClosed):
		if count == 0 {
			return 0, RecvError, p.exitError(timeout)
		}
	default:
		return count, RecvError, NewRuntimeError("error reading stdout: %w", err)
	}

	if overflows := p.overflows.Load(); overflows != p.seenOverflows {
		p.seenOverflows = overflows
		return count, RecvOverflow, nil
	}
	return count, RecvOK, nil
}

func (p *Process) exitError(timeout time.Duration) error {
	select {
	case <-p.exited:
	case <-time.After(timeout):
	}

	select {
	case <-p.exited:
		if p.exitErr != nil {
			return NewRuntimeError("%w: %w", ErrStreamEnded, p.exitErr)
		}
	default:
	}
	return ErrStreamEnded
}

// Overflows returns the number of overflow markers seen on stderr.
func (p *Process) Overflows() uint64 {
	return p.overflows.Load()
}

// handleStderrLine counts overflow markers and logs everything else.
func (p *Process) handleStderrLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if p.tool.IsOverflow(line) {
		p.overflows.Add(1)
		return
	}

	p.logger.Warn(fmt.Sprintf("%s >> %s", p.tool.Runtime(), line)) // simple logging here
}

// stderrWriter splits tool stderr into lines. A pending partial line is checked for
// overflow markers right away since some tools print them without a newline.
type stderrWriter struct {
	p   *Process
	buf []byte
}

func (w *stderrWriter) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.p.handleStderrLine(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}

	if len(w.buf) > 0 && (w.p.tool.IsOverflow(strings.TrimSpace(string(w.buf))) || len(w.buf) >= maxStderrLine) {
		w.p.handleStderrLine(string(w.buf))
		w.buf = w.buf[:0]
	}

	return len(b), nil
}
