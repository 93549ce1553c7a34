package global

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"
)

// MetricHistogram describes a histogram metric which will be registered with
// Caddy's prometheus registry.
type MetricHistogram struct {
	Name    string    `json:"name"`
	Help    string    `json:"help"`
	Buckets []float64 `json:"buckets"`
	Labels  []string  `json:"labels"`
}

func (mh *MetricHistogram) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	if !d.Args(&mh.Name) {
		return d.ArgErr()
	}

	for nesting := d.Nesting(); d.NextBlock(nesting); {
		switch d.Val() {
		case "help":
			if !d.Args(&mh.Help) {
				return d.ArgErr()
			}

		case "buckets":
			buckets, err := parseBuckets(d.RemainingArgs())
			if err != nil {
				return err
			} else if len(buckets) == 0 {
				return d.ArgErr()
			}
			mh.Buckets = buckets

		case "labels":
			mh.Labels = d.RemainingArgs()

		default:
			return d.ArgErr()
		}
	}
	return nil
}

func parseBuckets(bucketsStrs []string) ([]float64, error) {
	buckets := make([]float64, 0, len(bucketsStrs))
	for _, bucketStr := range bucketsStrs {
		bucketStr = strings.TrimSpace(bucketStr)
		bucket, err := strconv.ParseFloat(bucketStr, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing bucket %q: %w", bucketStr, err)
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

// Metrics describe all global metrics used within a running Caddy instance.
type Metrics struct {
	Histograms []MetricHistogram `json:"histograms"`
	histograms map[string]*prometheus.HistogramVec
}

// HistogramByName returns the prometheus histogram object configured with the
// given name.
func (m Metrics) HistogramByName(name string) (*prometheus.HistogramVec, bool) {
	h, ok := m.histograms[name]
	return h, ok
}

func (m *Metrics) provision(ctx caddy.Context) error {
	return m.register(ctx.GetMetricsRegistry())
}

func (m *Metrics) register(reg prometheus.Registerer) error {
	m.histograms = make(map[string]*prometheus.HistogramVec, len(m.Histograms))
	for _, hCfg := range m.Histograms {
		if _, ok := m.histograms[hCfg.Name]; ok {
			return fmt.Errorf("name already used: %q", hCfg.Name)
		}

		histogram := prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    hCfg.Name,
				Help:    hCfg.Help,
				Buckets: hCfg.Buckets,
			},
			hCfg.Labels,
		)

		if err := reg.Register(histogram); err != nil {
			return fmt.Errorf("registering histogram %q: %w", hCfg.Name, err)
		}

		m.histograms[hCfg.Name] = histogram
	}

	return nil
}

func (m *Metrics) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	for nesting := d.Nesting(); d.NextBlock(nesting); {
		switch d.Val() {
		case "histogram":
			var mh MetricHistogram
			if err := mh.UnmarshalCaddyfile(d); err != nil {
				return fmt.Errorf("unmarshaling histogram: %w", err)
			}
			m.Histograms = append(m.Histograms, mh)

		default:
			return d.ArgErr()
		}
	}
	return nil
}

// HistogramRef refers to one of the histograms configured in Metrics, along
// with the label values which observations into it will be made with.
type HistogramRef struct {
	// Name of the global histogram.
	Name string `json:"name"`

	// Labels must have exactly the keys which the histogram was configured
	// with. The label values may have placeholders in them.
	Labels map[string]string `json:"labels,omitempty"`

	histogram       *prometheus.HistogramVec
	hasPlaceholders bool
}

// Provision looks up the referenced histogram within the given Metrics.
func (r *HistogramRef) Provision(m Metrics) error {
	histogram, ok := m.HistogramByName(r.Name)
	if !ok {
		return fmt.Errorf("no histogram named %q configured", r.Name)
	}

	var labelNames []string
	for _, hCfg := range m.Histograms {
		if hCfg.Name == r.Name {
			labelNames = slices.Clone(hCfg.Labels)
		}
	}

	keys := maps.Keys(r.Labels)
	slices.Sort(keys)
	slices.Sort(labelNames)
	if !slices.Equal(keys, labelNames) {
		return fmt.Errorf(
			"histogram %q has labels %v, but labels %v were given",
			r.Name, labelNames, keys,
		)
	}

	for _, v := range r.Labels {
		if strings.Contains(v, "{") && strings.Contains(v, "}") {
			r.hasPlaceholders = true
			break
		}
	}

	r.histogram = histogram
	return nil
}

// Observe records the value into the histogram. If any label values have
// placeholders then they are replaced using the Replacer found in the
// Context, if any.
func (r *HistogramRef) Observe(ctx context.Context, val float64) {
	labels := r.Labels
	if labels == nil {
		labels = map[string]string{}
	}

	if repl, ok := ctx.Value(caddy.ReplacerCtxKey).(*caddy.Replacer); ok && r.hasPlaceholders {
		labels = maps.Clone(labels)
		for k, v := range labels {
			labels[k] = repl.ReplaceAll(v, "malformed_placeholder")
		}
	}

	r.histogram.With(prometheus.Labels(labels)).Observe(val)
}

// UnmarshalCaddyfile sets up the HistogramRef from Caddyfile tokens. Syntax:
//
//	metric <name> {
//		// label can be specified multiple times, its value can have
//		// placeholders.
//		label <name> <value>
//	}
func (r *HistogramRef) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	if !d.Args(&r.Name) {
		return d.ArgErr()
	}

	for nesting := d.Nesting(); d.NextBlock(nesting); {
		switch d.Val() {
		case "label":
			var k, v string
			if !d.Args(&k, &v) {
				return d.ArgErr()
			}

			if r.Labels == nil {
				r.Labels = map[string]string{}
			}
			r.Labels[k] = v

		default:
			return fmt.Errorf("unknown field: %q", d.Val())
		}
	}

	return nil
}
