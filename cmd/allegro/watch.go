package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/allegro-webapi/internal/client"
	"github.com/and161185/allegro-webapi/internal/events"
	"github.com/and161185/allegro-webapi/internal/journal"
	"github.com/and161185/allegro-webapi/internal/metrics"
	"github.com/and161185/allegro-webapi/internal/migrate"
	"github.com/and161185/allegro-webapi/internal/model"
	"github.com/and161185/allegro-webapi/internal/repository"
	"github.com/and161185/allegro-webapi/internal/repository/postgres"
)

type watchFlags struct {
	kinds        []string
	once         bool
	interval     time.Duration
	infoType     int
	dedup        bool
	dsn          string
	consumer     string
	kafkaBrokers []string
	kafkaTopic   string
	metricsAddr  string
}

func newWatchCmd(a *app) *cobra.Command {
	var f watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream site journal events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.applyConfig(cmd, a)
			return a.watch(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVar(&f.kinds, "kinds", []string{string(model.EventBuyNow)}, "event kinds: buynow, bid, start, end, change")
	fl.BoolVar(&f.once, "once", false, "poll once and exit")
	fl.DurationVar(&f.interval, "interval", 0, "poll interval (overrides config)")
	fl.IntVar(&f.infoType, "info-type", 0, "journal infoType (overrides config)")
	fl.BoolVar(&f.dedup, "dedup", false, "skip rows already delivered")
	fl.StringVar(&f.dsn, "dsn", "", "PostgreSQL DSN for a persistent watermark (implies --dedup)")
	fl.StringVar(&f.consumer, "consumer", "", "watermark consumer name")
	fl.StringSliceVar(&f.kafkaBrokers, "kafka-brokers", nil, "publish events to these Kafka brokers")
	fl.StringVar(&f.kafkaTopic, "kafka-topic", "", "Kafka topic")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address")
	return cmd
}

// applyConfig fills flags the user did not set from the loaded config.
func (f *watchFlags) applyConfig(cmd *cobra.Command, a *app) {
	changed := cmd.Flags().Changed
	if !changed("interval") {
		f.interval = a.cfg.PollInterval
	}
	if !changed("info-type") {
		f.infoType = a.cfg.InfoType
	}
	if !changed("dedup") {
		f.dedup = a.cfg.Dedup
	}
	if !changed("dsn") {
		f.dsn = a.cfg.DatabaseURL
	}
	if !changed("consumer") {
		f.consumer = a.cfg.Consumer
	}
	if !changed("kafka-brokers") {
		f.kafkaBrokers = a.cfg.KafkaBrokers
	}
	if !changed("kafka-topic") {
		f.kafkaTopic = a.cfg.KafkaTopic
	}
	if !changed("metrics-addr") {
		f.metricsAddr = a.cfg.MetricsAddr
	}
}

func (f watchFlags) eventKinds() ([]model.EventKind, error) {
	valid := map[model.EventKind]bool{
		model.EventBuyNow: true, model.EventBid: true, model.EventStart: true,
		model.EventEnd: true, model.EventChange: true,
	}
	out := make([]model.EventKind, 0, len(f.kinds))
	for _, k := range f.kinds {
		kind := model.EventKind(k)
		if !valid[kind] {
			return nil, fmt.Errorf("unknown event kind %q", k)
		}
		out = append(out, kind)
	}
	return out, nil
}

func (a *app) watch(cmd *cobra.Command, f watchFlags) error {
	kinds, err := f.eventKinds()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	if f.metricsAddr != "" {
		srv := &http.Server{Addr: f.metricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	opts := []client.Option{
		client.WithPollInterval(f.interval),
		client.WithInfoType(f.infoType),
	}
	if f.once {
		opts = append(opts, client.WithoutPolling())
	}
	store, closeStore, err := a.watermarkStore(ctx, f)
	if err != nil {
		return err
	}
	defer closeStore()
	if store != nil {
		opts = append(opts, client.WithWatermarkStore(store))
	}

	c, closeClient, err := a.connect(opts...)
	if err != nil {
		return err
	}
	defer closeClient()

	out := &lineWriter{w: cmd.OutOrStdout()}
	var pub *events.KafkaPublisher
	if len(f.kafkaBrokers) > 0 {
		pub, err = events.NewKafkaPublisher(f.kafkaBrokers, f.kafkaTopic, a.log.Named("kafka"))
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
	}
	for _, k := range kinds {
		c.Subscribe(k, out.Handle)
		if pub != nil {
			c.Subscribe(k, pub.Handle)
		}
	}

	if f.once {
		_, err := c.PollOnce(ctx)
		return err
	}
	a.log.Info("watching journal", zap.Duration("interval", f.interval), zap.Strings("kinds", f.kinds))
	<-ctx.Done()
	return nil
}

func (a *app) watermarkStore(ctx context.Context, f watchFlags) (repository.WatermarkRepository, func(), error) {
	switch {
	case f.dsn != "":
		if err := migrate.Up(ctx, f.dsn, a.log.Named("migrate")); err != nil {
			return nil, nil, err
		}
		db, err := postgres.New(ctx, f.dsn)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewWatermarkRepo(db, f.consumer), db.Close, nil
	case f.dedup:
		return &journal.MemoryWatermark{}, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// lineWriter prints one JSON event per line.
type lineWriter struct {
	w io.Writer
}

func (l *lineWriter) Handle(ev model.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = l.w.Write(append(b, '\n'))
}
