package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultRemoteWriteInterval = 30 * time.Second
	remoteWriteTimeout         = 5 * time.Second
)

// RemoteWriteConfig enables pushing the /metrics registry to a Prometheus
// remote_write endpoint. An empty URL disables it.
type RemoteWriteConfig struct {
	URL      string
	Token    string
	Interval time.Duration
}

// RemoteWriter periodically pushes counters, gauges and histogram totals
// from a gatherer.
type RemoteWriter struct {
	endpoint string
	token    string
	interval time.Duration
	gatherer prometheus.Gatherer
	client   *http.Client
	log      *zap.Logger
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
}

func NewRemoteWriter(cfg RemoteWriteConfig, gatherer prometheus.Gatherer, log *zap.Logger) (*RemoteWriter, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid remote write url: %w", err)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultRemoteWriteInterval
	}
	return &RemoteWriter{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Token),
		interval: interval,
		gatherer: gatherer,
		client:   &http.Client{Timeout: remoteWriteTimeout},
		log:      log.Named("metrics.remote_write"),
		now:      time.Now,
	}, nil
}

// RegisterRemoteWrite starts a RemoteWriter with the app when a URL is set.
func RegisterRemoteWrite(lc fx.Lifecycle, cfg RemoteWriteConfig, log *zap.Logger) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	w, err := NewRemoteWriter(cfg, prometheus.DefaultGatherer, log)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: w.Stop,
	})
	return nil
}

// Push sends one snapshot of the gatherer.
func (w *RemoteWriter) Push(ctx context.Context) error {
	families, err := w.gatherer.Gather()
	if err != nil {
		return err
	}
	series := toTimeSeries(families, w.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	wr := prompb.WriteRequest{Timeseries: series}
	payload, err := wr.Marshal()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(snappy.Encode(nil, payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

func (w *RemoteWriter) Start() {
	if w.stop != nil {
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		failing := false
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
				err := w.Push(ctx)
				cancel()
				switch {
				case err != nil && !failing:
					w.log.Warn("metrics push failed", zap.String("endpoint", w.endpoint), zap.Error(err))
					failing = true
				case err == nil && failing:
					w.log.Info("metrics push recovered", zap.String("endpoint", w.endpoint))
					failing = false
				}
			}
		}
	}()
}

func (w *RemoteWriter) Stop(ctx context.Context) error {
	if w.stop == nil {
		return nil
	}
	close(w.stop)
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.stop = nil
	// flush the final counts so short-lived processes are not lost
	flushCtx, cancel := context.WithTimeout(ctx, remoteWriteTimeout)
	defer cancel()
	if err := w.Push(flushCtx); err != nil && !errors.Is(err, context.Canceled) {
		w.log.Warn("final metrics push failed", zap.Error(err))
	}
	return nil
}

// toTimeSeries flattens metric families into one sample per series.
// Histograms contribute their _count and _sum series.
func toTimeSeries(families []*dto.MetricFamily, ts int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	add := func(name string, labels []*dto.LabelPair, value float64) {
		if math.IsNaN(value) {
			return
		}
		pairs := make([]prompb.Label, 0, len(labels)+1)
		pairs = append(pairs, prompb.Label{Name: "__name__", Value: name})
		for _, l := range labels {
			pairs = append(pairs, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
		out = append(out, prompb.TimeSeries{
			Labels:  pairs,
			Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
		})
	}

	for _, family := range families {
		name := family.GetName()
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				add(name, m.GetLabel(), m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				add(name, m.GetLabel(), m.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				add(name+"_count", m.GetLabel(), float64(h.GetSampleCount()))
				add(name+"_sum", m.GetLabel(), h.GetSampleSum())
			}
		}
	}
	return out
}
