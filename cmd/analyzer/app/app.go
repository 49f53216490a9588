package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/render"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/hackrf"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/rtl"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/sim"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/usrp"
	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
	"github.com/roman-kulish/spectrum-analyzer/internal/storage"
)

const (
	waterfallFile = "waterfall.png"
	slabFile      = "spectrogram.png"
)

var ErrReceptionStopped = errors.New("reception stopped")

// NewRegistry registers every backend with its vendor configuration.
func NewRegistry(config *Config, logger *slog.Logger) (*sdr.Registry, error) {
	r := sdr.NewRegistry(sdr.WithRegistryLogger(logger))

	err := errors.Join(
		sim.Register(r, sim.WithLogger(logger)),
		rtl.Register(r, config.RTL, logger),
		hackrf.Register(r, config.HackRF, logger),
		usrp.Register(r, config.USRP, logger),
	)
	if err != nil {
		return nil, fmt.Errorf("registering devices: %w", err)
	}
	return r, nil
}

// ListDevices prints the supported device types followed by the detected devices.
func ListDevices(r *sdr.Registry, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Supported device types: %s\n\n", strings.Join(r.Supported(), ", "))
	fmt.Fprintln(tw, "TYPE\tSERIAL\tFREQUENCY\tSAMPLE RATE")

	for _, cfg := range r.Detect() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			cfg.DeviceType, cfg.Serial, cfg.Frequency, sdr.FormatRate(float64(cfg.SampleRate)))
	}
	return tw.Flush()
}

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	registry, err := NewRegistry(config, logger)
	if err != nil {
		return err
	}

	device, err := registry.CreateAndInitialize(config.Device)
	var partial *sdr.PartialConfigError
	switch {
	case errors.As(err, &partial):
		logger.Warn(partial.Error()) // device is usable with its defaults
	case err != nil:
		return err
	}
	defer device.Shutdown()

	logger.Info("device ready", slog.String("info", strings.ReplaceAll(device.DeviceInfo(), "\n", "; ")))

	var store storage.Store
	var sessionID int64
	if config.Storage.DBPath != "" {
		sqliteStore := storage.NewSqliteStore(config.Storage.DBPath)
		defer func() {
			if err := sqliteStore.Close(); err != nil {
				logger.Error(fmt.Sprintf("failed to close storage: %s", err.Error()))
			}
		}()

		if sessionID, err = sqliteStore.CreateSession(ctx, device.DeviceType(), device.SerialNumber(), config.Device); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		store = sqliteStore

		logger.Info("storing averaged spectra", slog.String("db", config.Storage.DBPath), slog.Int64("session", sessionID))
	}

	c := consumer{
		config:    config,
		store:     store,
		sessionID: sessionID,
		logger:    logger,
	}

	if config.Display.OutputDir != "" {
		if err = os.MkdirAll(config.Display.OutputDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}

		theme, _ := render.ParseColorTheme(config.Display.Theme) // validated with the config
		c.waterfall = render.NewRenderer(render.RenderConfig{ColorTheme: theme, Smoothing: 0.3})
		c.slab = render.NewRenderer(render.RenderConfig{ColorTheme: theme, TimeFormat: "15:04:05.000"})
	}

	if c.pipeline, err = NewPipeline(device, config, WithPipelineLogger(logger)); err != nil {
		return err
	}

	if d := config.Settings.Duration.Duration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if err = c.pipeline.Start(); err != nil {
		return err
	}
	defer c.pipeline.Stop()

	return c.run(ctx)
}

// consumer is the display side loop driving the pipeline.
type consumer struct {
	config    *Config
	pipeline  *Pipeline
	waterfall *render.Renderer
	slab      *render.Renderer
	store     storage.Store
	sessionID int64
	batch     []*spectrum.Snapshot
	logger    *slog.Logger
}

func (c *consumer) run(ctx context.Context) error {
	ticker := time.NewTicker(c.config.Settings.UpdateInterval.Duration())
	defer ticker.Stop()

	stftTicker := time.NewTicker(c.config.Display.STFT.Interval.Duration())
	defer stftTicker.Stop()

	renderC, stopRender := tickerC(c.waterfall != nil, c.config.Display.RenderInterval.Duration())
	defer stopRender()

	statusC, stopStatus := tickerC(true, c.config.Settings.StatusInterval.Duration())
	defer stopStatus()

	// queued spectra are stored on shutdown too
	storeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return c.flush(storeCtx)

		case <-ticker.C:
			c.pipeline.Tick()
			if err := c.collect(storeCtx); err != nil {
				return err
			}
			if err := c.checkDevice(); err != nil {
				_ = c.flush(storeCtx)
				return err
			}

		case <-stftTicker.C:
			slab, ok := c.pipeline.ComputeSlab()
			if ok && c.slab != nil {
				_, start, _ := c.pipeline.Slab()
				c.writeImage(c.slab, slabFile, render.FromSpectrogram(slab, c.pipeline.CenterFrequency(), start))
			}

		case <-renderC:
			c.writeImage(c.waterfall, waterfallFile, c.pipeline.Waterfall())

		case <-statusC:
			c.logger.Info(c.pipeline.DeviceStatus().String())
		}
	}
}

// tickerC returns the channel of a ticker with period d, or a nil channel when the
// ticker is disabled.
func tickerC(enabled bool, d time.Duration) (<-chan time.Time, func()) {
	if !enabled || d <= 0 {
		return nil, func() {}
	}

	ticker := time.NewTicker(d)
	return ticker.C, ticker.Stop
}

// collect queues the averaged spectrum, if one is ready, and stores full batches.
func (c *consumer) collect(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	snapshot, ok := c.pipeline.Averaged()
	if !ok {
		return nil
	}

	c.batch = append(c.batch, snapshot)
	if len(c.batch) < c.config.Storage.BatchSize {
		return nil
	}
	return c.flush(ctx)
}

func (c *consumer) flush(ctx context.Context) error {
	if c.store == nil || len(c.batch) == 0 {
		return nil
	}

	if err := c.store.StoreSpectra(ctx, c.sessionID, c.batch); err != nil {
		return fmt.Errorf("storing spectra: %w", err)
	}

	c.logger.Debug("stored spectra", slog.Int("count", len(c.batch)))
	c.batch = c.batch[:0]
	return nil
}

// checkDevice fails when acquisition stopped on its own, e.g. on too many stream errors.
func (c *consumer) checkDevice() error {
	status := c.pipeline.DeviceStatus()
	if status.Receiving {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrReceptionStopped, c.pipeline.device.LastError())
}

func (c *consumer) writeImage(r *render.Renderer, name string, w *render.Waterfall) {
	if w.Height == 0 {
		return
	}

	path := filepath.Join(c.config.Display.OutputDir, name)
	if err := r.WriteFile(path, w, render.ImagePNG); err != nil {
		c.logger.Error(fmt.Sprintf("failed to render %s: %s", name, err.Error()))
	}
}
