package sdr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// StreamErrorsThreshold defines the number of consecutive stream errors allowed
	StreamErrorsThreshold = 5
)

// ReadFunc fills buf with the next batch and returns the number of samples written.
// It returns ErrTimeout to be retried, ErrOverflow when samples were lost before the
// batch, and any other error for a failed read.
type ReadFunc func(ctx context.Context, buf []complex64) (int, error)

// WithLogger sets the logger for the receiver
func WithLogger(logger *slog.Logger) func(r *Receiver) {
	return func(r *Receiver) {
		r.logger = logger.With(slog.String("device", r.name))
	}
}

// WithStreamErrorsThreshold sets the threshold for consecutive stream errors
func WithStreamErrorsThreshold(threshold int) func(r *Receiver) {
	return func(r *Receiver) {
		r.streamErrorsThreshold = threshold
	}
}

// Receiver runs the acquisition goroutine shared by all backends: it pulls batches
// from a ReadFunc and hands them to a SampleCallback until stopped.
type Receiver struct {
	name string
	errs *ErrorState

	mu           sync.Mutex // serializes Start and Stop
	isReceiving  atomic.Bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	startedNanos atomic.Int64

	samples      atomic.Uint64
	overflows    atomic.Uint64
	streamErrors atomic.Uint64

	streamErrorsThreshold int
	logger                *slog.Logger
}

// NewReceiver creates a receiver with a discard logger. Stream errors are recorded in errs.
func NewReceiver(name string, errs *ErrorState, options ...func(r *Receiver)) *Receiver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	r := Receiver{
		name:                  name,
		errs:                  errs,
		logger:                logger,
		streamErrorsThreshold: StreamErrorsThreshold,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Start resets the counters and spawns the acquisition goroutine. The returned channel
// receives the error that ended reception, if any, and is closed when the goroutine exits.
func (r *Receiver) Start(ctx context.Context, read ReadFunc, cb SampleCallback, bufferSize int) (<-chan error, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, bufferSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isReceiving.CompareAndSwap(false, true) {
		return nil, ErrAlreadyReceiving
	}

	r.samples.Store(0)
	r.overflows.Store(0)
	r.streamErrors.Store(0)
	r.startedNanos.Store(time.Now().UnixNano())

	ctx, r.cancel = context.WithCancel(ctx)
	stopped := make(chan error, 1)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(stopped)

		r.logger.Info("starting reception...", slog.Int("bufferSize", bufferSize))

		err := r.run(ctx, read, cb, make([]complex64, bufferSize))
		if err != nil {
			r.errs.Fail(err)
			r.logger.Error(err.Error())
			stopped <- err
		}
		r.isReceiving.Store(false)

		r.logger.Info("reception stopped",
			slog.Uint64("samples", r.samples.Load()),
			slog.Uint64("overflows", r.overflows.Load()))
	}()

	return stopped, nil
}

func (r *Receiver) run(ctx context.Context, read ReadFunc, cb SampleCallback, buf []complex64) error {
	var consecutive int

	for ctx.Err() == nil {
		n, err := read(ctx, buf)

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrTimeout):
			continue
		case errors.Is(err, ErrOverflow):
			r.overflows.Add(1)
		default:
			r.streamErrors.Add(1)
			r.errs.Fail(err)
			r.logger.Warn(fmt.Sprintf("stream error: %s", err.Error()))

			consecutive++
			if consecutive > r.streamErrorsThreshold {
				return fmt.Errorf("%w: %w", ErrTooManyStreamErrors, err)
			}
			continue
		}

		consecutive = 0 // reset counter

		if n > 0 && ctx.Err() == nil {
			r.samples.Add(uint64(n))
			cb(buf[:n])
		}
	}

	return nil
}

// Stop cancels the acquisition goroutine and waits for it to exit.
func (r *Receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return // never started
	}

	r.cancel()
	r.wg.Wait()
	r.isReceiving.Store(false)
}

// IsReceiving returns true while the acquisition goroutine runs
func (r *Receiver) IsReceiving() bool {
	return r.isReceiving.Load()
}

func (r *Receiver) SamplesReceived() uint64 {
	return r.samples.Load()
}

func (r *Receiver) Overflows() uint64 {
	return r.overflows.Load()
}

func (r *Receiver) StreamErrors() uint64 {
	return r.streamErrors.Load()
}

// ReceptionRate returns received samples as a percentage of sampleRate times the
// elapsed reception time; 0 when not receiving.
func (r *Receiver) ReceptionRate(sampleRate float64) float64 {
	if !r.IsReceiving() || sampleRate <= 0 {
		return 0
	}

	elapsed := time.Since(time.Unix(0, r.startedNanos.Load())).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.samples.Load()) / (sampleRate * elapsed) * 100
}
