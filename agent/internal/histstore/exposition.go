package histstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/detqc/agent/internal/config"
	"github.com/obsidianstack/detqc/pkg/types"
)

const defaultFetchTimeout = 10 * time.Second

// Source loads one cycle's worth of aggregates from wherever the histogram
// producer publishes them.
type Source interface {
	Load(ctx context.Context) (map[string]types.Aggregate, error)
}

// NewSource returns the Source for the given store configuration.
func NewSource(cfg config.StoreConfig) (Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		return &fileSource{path: cfg.Path}, nil
	case config.SourceHTTP:
		client, err := buildHTTPClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("histstore: build http client: %w", err)
		}
		return &httpSource{endpoint: cfg.Endpoint, client: client}, nil
	default:
		return nil, fmt.Errorf("histstore: unsupported source %q", cfg.Source)
	}
}

type fileSource struct {
	path string
}

// Load reads a text exposition file from disk.
func (s *fileSource) Load(_ context.Context) (map[string]types.Aggregate, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("histstore: open %q: %w", s.path, err)
	}
	defer f.Close()
	return ParseExposition(f)
}

type httpSource struct {
	endpoint string
	client   *http.Client
}

// Load fetches the exposition from the configured endpoint.
func (s *httpSource) Load(ctx context.Context) (map[string]types.Aggregate, error) {
	return Fetch(ctx, s.client, s.endpoint)
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the store's auth and TLS settings.
func buildHTTPClient(cfg config.StoreConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if cfg.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(cfg.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
		Timeout: defaultFetchTimeout,
	}, nil
}

// Fetch performs an HTTP GET to url and decodes the histogram families in
// the returned text exposition.
func Fetch(ctx context.Context, client *http.Client, url string) (map[string]types.Aggregate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("histstore: build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("histstore: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("histstore: unexpected status %d", resp.StatusCode)
	}
	return ParseExposition(resp.Body)
}

// ParseExposition decodes every histogram family in a Prometheus text
// exposition into an Aggregate. A family with a single series is keyed by
// the family name; a family with several series is keyed per series as
// name{label="value",...} with labels sorted by name.
//
// Non-histogram families are skipped. Any parse error rejects the whole
// exposition: the parser creates families before it validates them, so a
// partial result cannot be told apart from a corrupt source.
func ParseExposition(r io.Reader) (map[string]types.Aggregate, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("histstore: parse exposition: %w", err)
	}

	out := make(map[string]types.Aggregate, len(mfs))
	for name, mf := range mfs {
		if mf.GetType() != dto.MetricType_HISTOGRAM {
			slog.Debug("histstore: skipping non-histogram family", "family", name, "type", mf.GetType().String())
			continue
		}
		metrics := mf.GetMetric()
		for _, m := range metrics {
			key := name
			if len(metrics) > 1 {
				key = seriesKey(name, m.GetLabel())
			}
			out[key] = fromHistogram(m.GetHistogram())
		}
	}
	return out, nil
}

// fromHistogram de-cumulates the bucket counts into bins. The last bin is
// always the overflow above the highest finite bound: either the explicit
// +Inf bucket or the remainder of the sample count.
func fromHistogram(h *dto.Histogram) *Hist1D {
	buckets := h.GetBucket()
	bins := make([]uint64, 0, len(buckets)+1)

	var prev uint64
	hasInf := false
	for _, b := range buckets {
		c := b.GetCumulativeCount()
		if c < prev {
			c = prev // non-monotonic exposition; treat the bin as empty
		}
		bins = append(bins, c-prev)
		prev = c
		if math.IsInf(b.GetUpperBound(), +1) {
			hasInf = true
		}
	}

	count := h.GetSampleCount()
	if !hasInf {
		var rest uint64
		if count > prev {
			rest = count - prev
		}
		bins = append(bins, rest)
	}
	return FromBins(bins, count, h.GetSampleSum())
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for _, lp := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// ToFamily encodes agg as a histogram family. Bin i becomes the bucket with
// upper bound i; the last bin becomes the +Inf bucket.
func ToFamily(name, help string, agg types.Aggregate) *dto.MetricFamily {
	n := agg.BinCount()
	buckets := make([]*dto.Bucket, 0, n)

	var cum uint64
	for i := 0; i < n; i++ {
		cum += agg.BinContent(i)
		bound := float64(i)
		if i == n-1 {
			bound = math.Inf(+1)
		}
		buckets = append(buckets, &dto.Bucket{
			CumulativeCount: proto.Uint64(cum),
			UpperBound:      proto.Float64(bound),
		})
	}

	entries := agg.EntryCount()
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_HISTOGRAM.Enum(),
		Metric: []*dto.Metric{{
			Histogram: &dto.Histogram{
				SampleCount: proto.Uint64(entries),
				SampleSum:   proto.Float64(agg.Mean() * float64(entries)),
				Bucket:      buckets,
			},
		}},
	}
}

// WriteExposition writes aggs as text exposition in name order.
func WriteExposition(w io.Writer, aggs map[string]types.Aggregate) error {
	names := make([]string, 0, len(aggs))
	for name := range aggs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mf := ToFamily(name, "detqc aggregate "+name, aggs[name])
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("histstore: write %q: %w", name, err)
		}
	}
	return nil
}
