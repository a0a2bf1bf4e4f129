package metrics

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
)

const (
	defaultInfluxTimeout = 10 * time.Second
	// cap on the response body drained for connection reuse
	maxDrain = 4 << 10
)

var (
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `)
	tagEscaper         = strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)
)

// Influx posts samples to an InfluxDB v1 style /write endpoint.
type Influx struct {
	url      string
	username string
	password string
	client   *http.Client
}

func NewInflux(cfg InfluxConfig) *Influx {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultInfluxTimeout
	}

	return &Influx{
		url:      cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
	}
}

// Encode renders a sample as a single line of line protocol:
//
//	name,k1=v1,k2=v2 metric=value
//
// Tags are sorted by key. The timestamp is left to the server.
func Encode(s Sample) (string, error) {
	if s.Name == "" {
		return "", errors.New().WithMessage(ErrInvalidSample, "metric name is empty")
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return "", errors.New().WithData(errors.ErrPublishEncode, struct {
			Name  string
			Value float64
		}{
			Name:  s.Name,
			Value: s.Value,
		})
	}

	var b strings.Builder
	b.WriteString(measurementEscaper.Replace(s.Name))
	for _, k := range sortedKeys(s.Tags) {
		b.WriteByte(',')
		b.WriteString(tagEscaper.Replace(k))
		b.WriteByte('=')
		b.WriteString(tagEscaper.Replace(s.Tags[k]))
	}
	b.WriteString(" metric=")
	b.WriteString(strconv.FormatFloat(s.Value, 'f', -1, 64))

	return b.String(), nil
}

func (p *Influx) Publish(ctx context.Context, s Sample) error {
	errFactory := errors.New()

	line, err := Encode(s)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBufferString(line))
	if err != nil {
		return errFactory.Wrap(errors.ErrPublishNetwork, err)
	}
	req.SetBasicAuth(p.username, p.password)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return errFactory.Wrap(errors.ErrPublishNetwork, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errFactory.WithData(errors.ErrPublishStatus, struct {
			Metric string
			Status int
			Body   string
		}{
			Metric: s.Name,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		})
	}

	return nil
}

func sortedKeys(tags Tags) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
