// Command sender reads PCM from a WAV file, normalizes it to 16kHz mono
// 20ms frames, encodes each to Opus, and transmits it as RTP on a steady
// cadence.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/andrijaa/opusrtp-streamer/internal/config"
	"github.com/andrijaa/opusrtp-streamer/internal/metrics"
	"github.com/andrijaa/opusrtp-streamer/internal/obs"
	"github.com/andrijaa/opusrtp-streamer/internal/pipeline"
	"github.com/andrijaa/opusrtp-streamer/internal/transport"
	"github.com/andrijaa/opusrtp-streamer/pkg/pcmio/wav"
)

func main() {
	log := obs.NewConsoleLogger(false)
	defer log.Sync()

	if err := run(log); err != nil {
		log.Error("sender exited with error", zap.Error(err), zap.String("kind", obs.KindOf(err).String()))
		os.Exit(1)
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.ParseSenderFlags(os.Args[1:])
	if err != nil {
		return err
	}

	src, err := wav.NewFileSource(cfg.Input)
	if err != nil {
		return err
	}
	defer src.Close()

	udp, err := transport.NewSender(cfg.Remote)
	if err != nil {
		return err
	}
	defer udp.Close()

	var msink metrics.Sink = metrics.Noop{}
	var promSink *metrics.Prometheus
	if cfg.MetricsBind != "" {
		promSink = metrics.NewPrometheus()
		msink = promSink
	}

	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	snd, err := pipeline.NewSender(src, udp, interval, log, msink)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if promSink != nil {
		srv := &http.Server{
			Addr:    cfg.MetricsBind,
			Handler: promhttp.HandlerFor(promSink.Registry(), promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	log.Info("sender starting",
		zap.String("input", cfg.Input),
		zap.String("remote", cfg.Remote),
		zap.Int("interval_ms", cfg.IntervalMs),
		zap.String("metrics_bind", cfg.MetricsBind),
	)

	if err := snd.Run(ctx); err != nil {
		return err
	}

	stats := snd.Stats()
	log.Info("sender stopped",
		zap.Uint64("packets_sent", stats.PacketsSent),
		zap.Uint64("bytes_sent", stats.BytesSent),
		zap.Uint64("encode_errors", stats.EncodeErrors),
		zap.Uint64("send_errors", stats.SendErrors),
		zap.Uint64("pacing_skew", stats.PacingSkew),
	)
	return nil
}
