package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/render"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/storage"
)

var ErrNoSpectra = errors.New("no spectra matched")

func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.ListSessions {
		return listSessions(ctx, store, out)
	}

	w, err := readSpectra(ctx, store, config, logger)
	if err != nil {
		return err
	}
	return renderWaterfall(w, config, logger)
}

func listSessions(ctx context.Context, store storage.Store, out io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tTYPE\tSERIAL")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.StartTime.Local().Format(time.DateTime), s.DeviceType, s.Serial)
	}
	return tw.Flush()
}

func readSpectra(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) (*render.Waterfall, error) {
	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.StartTime != nil && config.EndTime != nil:
		opts = append(opts, storage.WithTimeRange(config.StartTime.UTC(), config.EndTime.UTC()))

		filters = append(filters,
			slog.String("startTime", config.StartTime.UTC().Format(time.DateTime)),
			slog.String("endTime", config.EndTime.UTC().Format(time.DateTime)))

	case config.StartTime != nil:
		opts = append(opts, storage.WithStartTime(config.StartTime.UTC()))
		filters = append(filters, slog.String("startTime", config.StartTime.UTC().Format(time.DateTime)))

	case config.EndTime != nil:
		opts = append(opts, storage.WithEndTime(config.EndTime.UTC()))
		filters = append(filters, slog.String("endTime", config.EndTime.UTC().Format(time.DateTime)))
	}

	logger.Debug("reader configuration", append(filters, slog.Int64("session", config.SessionID))...)

	iter, err := store.ReadSpectra(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	if s := iter.Session(); s != nil {
		logger.Info("reading spectra",
			slog.String("device", s.DeviceType),
			slog.String("serial", s.Serial),
			slog.String("started", s.StartTime.Local().Format(time.DateTime)))
	}

	w := render.NewWaterfall()
	for iter.Next(ctx) {
		s := iter.Current()

		row := s.PSD
		if config.Field == FieldMagnitude {
			row = s.Magnitude
		}
		if len(row) == 0 || len(s.Frequencies) == 0 {
			continue
		}

		w.AppendRow(row, s.Frequencies[0], s.Frequencies[len(s.Frequencies)-1], s.Timestamp)
	}
	if err = iter.Err(); err != nil {
		return nil, err
	}

	if w.Height == 0 {
		return nil, fmt.Errorf("%w: session %d", ErrNoSpectra, config.SessionID)
	}
	return w, nil
}

func renderWaterfall(w *render.Waterfall, config *Config, logger *slog.Logger) error {
	renderer := render.NewRenderer(render.RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		MinPower:      config.MinPower,
		MaxPower:      config.MaxPower,
		NoAnnotations: config.NoAnnotations,
	})

	bounds := renderer.Bounds(w)

	logger.Info("finished reading spectra",
		slog.Group("stats",
			slog.String("startTime", w.TimeStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("endTime", w.TimeEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("minFreq", sdr.FormatHertz(w.FrequencyMin)),
			slog.String("maxFreq", sdr.FormatHertz(w.FrequencyMax)),
			slog.String("minPower", fmt.Sprintf("%0.2fdB", bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.2fdB", bounds.Max)),
		))

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.String("field", string(config.Field)),
			slog.Int("width", w.Width),
			slog.Int("height", w.Height),
		))

	if err := renderer.WriteFile(config.OutputFile, w, config.Format); err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}
	return nil
}
