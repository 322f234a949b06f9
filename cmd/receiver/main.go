// Command receiver listens on a UDP port, reorders inbound packets
// through a jitter buffer, decodes (or conceals) them on a steady 20ms
// tick, and writes the result to an audio output device.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/andrijaa/opusrtp-streamer/internal/config"
	"github.com/andrijaa/opusrtp-streamer/internal/jitter"
	"github.com/andrijaa/opusrtp-streamer/internal/metrics"
	"github.com/andrijaa/opusrtp-streamer/internal/obs"
	"github.com/andrijaa/opusrtp-streamer/internal/pipeline"
	"github.com/andrijaa/opusrtp-streamer/internal/transport"
	"github.com/andrijaa/opusrtp-streamer/pkg/pcmio/device"
)

func main() {
	log := obs.NewConsoleLogger(false)
	defer log.Sync()

	if err := run(log); err != nil {
		log.Error("receiver exited with error", zap.Error(err), zap.String("kind", obs.KindOf(err).String()))
		os.Exit(1)
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.ParseReceiverFlags(os.Args[1:])
	if err != nil {
		return err
	}

	udp, err := transport.NewReceiver(cfg.Port)
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

	buf := jitter.New(cfg.BufferDepth, msink)

	sink, err := device.NewSink(16000, audioFramesPerBuffer)
	if err != nil {
		return err
	}
	defer sink.Close()

	recv, err := pipeline.NewReceiver(udp, buf, sink, 20*time.Millisecond, log, msink)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if promSink != nil {
		go serveHTTP(cfg.MetricsBind, promhttp.HandlerFor(promSink.Registry(), promhttp.HandlerOpts{}), log, "metrics")
	}

	var status *statusServer
	if cfg.StatusBind != "" {
		status = newStatusServer(recv, buf, log)
		mux := http.NewServeMux()
		mux.HandleFunc("/status", status.handleWebSocket)
		go serveHTTP(cfg.StatusBind, mux, log, "status")

		stop := make(chan struct{})
		go status.run(stop)
		defer close(stop)
	}

	log.Info("receiver starting",
		zap.Int("port", cfg.Port),
		zap.Int("buffer_depth_ms", cfg.BufferDepth),
		zap.String("metrics_bind", cfg.MetricsBind),
		zap.String("status_bind", cfg.StatusBind),
	)

	if err := recv.Run(ctx); err != nil {
		return err
	}

	stats := recv.Stats()
	jstats := buf.Stats()
	log.Info("receiver stopped",
		zap.Uint64("packets_received", stats.PacketsReceived),
		zap.Uint64("packets_lost", jstats.PacketsLost),
		zap.Uint64("packets_late", jstats.PacketsLate),
		zap.Uint64("resyncs", jstats.Resyncs),
		zap.Uint64("plc_frames_emitted", stats.PLCFramesEmitted),
	)
	return nil
}

// audioFramesPerBuffer matches the core's fixed 20ms/16kHz frame size so
// every sink Write() maps to exactly one device callback.
const audioFramesPerBuffer = 320

func serveHTTP(addr string, handler http.Handler, log *zap.Logger, name string) {
	srv := &http.Server{Addr: addr, Handler: handler}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(fmt.Sprintf("%s server failed", name), zap.Error(err))
	}
}
