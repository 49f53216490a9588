//go:build linux

package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type scriptTool struct {
	script  func(s Settings) string
	argsErr error
}

func (t *scriptTool) Name() string         { return "script" }
func (t *scriptTool) Runtime() string      { return "sh" }
func (t *scriptTool) Format() SampleFormat { return FormatCU8 }

func (t *scriptTool) Args(_ string, s Settings) ([]string, error) {
	if t.argsErr != nil {
		return nil, t.argsErr
	}
	return []string{"-c", t.script(s)}, nil
}

func (t *scriptTool) IsOverflow(line string) bool {
	return line != "" && strings.Trim(line, "O") == ""
}

func openProcess(t *testing.T, tool Tool) *Process {
	t.Helper()

	p := NewProcess(tool)
	if err := p.Open(""); err != nil {
		t.Fatalf("Failed to open driver: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func readAll(t *testing.T, p *Process) ([]complex64, error) {
	t.Helper()

	var out []complex64
	buf := make([]complex64, 3)
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		n, code, err := p.Read(buf, time.Second)
		out = append(out, buf[:n]...)

		switch code {
		case RecvError:
			return out, err
		case RecvTimeout:
			continue
		}
	}

	t.Fatal("Timed out reading stream")
	return nil, nil
}

func TestProcess_Lifecycle(t *testing.T) {
	tool := &scriptTool{script: func(Settings) string { return "exit 0" }}

	p := NewProcess(tool)
	if err := p.SetFrequency(100e6, 0); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}
	if err := p.StartStream(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}

	if err := p.Open("abc"); err != nil {
		t.Fatalf("Failed to open driver: %v", err)
	}
	defer p.Close()

	if err := p.Open("abc"); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}

	if _, code, err := p.Read(make([]complex64, 4), time.Millisecond); code != RecvError || !errors.Is(err, ErrNotStreaming) {
		t.Errorf("Expected ErrNotStreaming, got %s %v", code, err)
	}

	if info := p.Info(); info.Serial != "abc" || info.Driver != "script" || info.Runtime == "" {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestProcess_DecodesStream(t *testing.T) {
	tool := &scriptTool{script: func(Settings) string {
		return `printf '\377\000\377\000\000\377\377'`
	}}
	p := openProcess(t, tool)

	if err := p.StartStream(context.Background()); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	samples, err := readAll(t, p)
	if !errors.Is(err, ErrStreamEnded) {
		t.Errorf("Expected ErrStreamEnded, got %v", err)
	}

	want := []complex64{complex(1, -1), complex(1, -1), complex(-1, 1)}
	if len(samples) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, want[i], samples[i])
		}
	}
}

func TestProcess_ExitError(t *testing.T) {
	tool := &scriptTool{script: func(Settings) string { return "echo 'usb_claim_interface error -6' >&2; exit 3" }}
	p := openProcess(t, tool)

	if err := p.StartStream(context.Background()); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	_, err := readAll(t, p)

	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) || !errors.Is(err, ErrStreamEnded) {
		t.Errorf("Expected RuntimeError wrapping ErrStreamEnded, got %v", err)
	}
}

func TestProcess_TimeoutAndOverflow(t *testing.T) {
	tool := &scriptTool{script: func(Settings) string {
		return `sleep 0.3; printf 'OOO' >&2; sleep 0.3; printf '\200\200'; exec sleep 10`
	}}
	p := openProcess(t, tool)

	if err := p.StartStream(context.Background()); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	buf := make([]complex64, 4)
	if _, code, err := p.Read(buf, 50*time.Millisecond); code != RecvTimeout || err != nil {
		t.Fatalf("Expected timeout, got %s %v", code, err)
	}

	var (
		n    int
		code RecvCode
		err  error
	)
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		if n, code, err = p.Read(buf, 200*time.Millisecond); code != RecvTimeout {
			break
		}
	}

	if err != nil || code != RecvOverflow || n != 1 {
		t.Errorf("Expected one sample flagged overflow, got n=%d %s %v", n, code, err)
	}
	if p.Overflows() != 1 {
		t.Errorf("Expected 1 overflow marker, got %d", p.Overflows())
	}

	start := time.Now()
	if err = p.StopStream(); err != nil {
		t.Errorf("Failed to stop stream: %v", err)
	}
	if elapsed := time.Since(start); elapsed > WaitDelay+time.Second {
		t.Errorf("StopStream took %s", elapsed)
	}
}

func TestProcess_SettingsRestartStream(t *testing.T) {
	tool := &scriptTool{script: func(s Settings) string {
		return fmt.Sprintf("echo freq=%.0f >&2; exec sleep 10", s.Frequency)
	}}
	p := openProcess(t, tool)

	if err := p.SetFrequency(100e6, 0); err != nil {
		t.Fatalf("Failed to set frequency: %v", err)
	}
	if err := p.StartStream(context.Background()); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}
	if err := p.SetFrequency(433e6, 0); err != nil {
		t.Fatalf("Failed to retune running stream: %v", err)
	}

	if p.Frequency(0) != 433e6 {
		t.Errorf("Expected 433 MHz, got %g", p.Frequency(0))
	}
	if info := p.Info(); !strings.Contains(info.Args, "freq=433000000") {
		t.Errorf("Expected restarted stream to use new settings, got %q", info.Args)
	}
	if err := p.StopStream(); err != nil {
		t.Errorf("Failed to stop stream: %v", err)
	}
}

func TestProcess_ArgsError(t *testing.T) {
	p := openProcess(t, &scriptTool{argsErr: errors.New("gain must be a multiple of 2 dB")})

	var configErr *ConfigError
	if err := p.StartStream(context.Background()); !errors.As(err, &configErr) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
}
