// Package noaa reads the NOAA Climate Prediction Center daily teleconnection
// index files (AO, NAO, PNA).
package noaa

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/upstream"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
)

// DefaultBaseURL is the CPC directory holding the daily index files.
const DefaultBaseURL = "https://ftp.cpc.ncep.noaa.gov/cwlinks"

// staleAfter is how old the latest row may be before a reading is flagged.
const staleAfter = 72 * time.Hour

var files = map[domain.Indicator]string{
	domain.IndicatorAO:  "norm.daily.ao.cdas.z1000.19500101_current.csv",
	domain.IndicatorNAO: "norm.daily.nao.cdas.z500.19500101_current.csv",
	domain.IndicatorPNA: "norm.daily.pna.cdas.z500.19500101_current.csv",
}

// Client implements domain.IndexProvider for the CPC daily indices.
type Client struct {
	baseURL  string
	upstream *upstream.Client
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewClient creates a CPC index client.
func NewClient(baseURL string, timeout time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		upstream: upstream.NewClient("noaa-cpc", timeout),
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// Supported reports whether the client has a file for indicator.
func Supported(indicator domain.Indicator) bool {
	_, ok := files[indicator]
	return ok
}

// Index fetches the latest reading for indicator.
func (c *Client) Index(ctx context.Context, indicator domain.Indicator) (domain.IndexReading, error) {
	file, ok := files[indicator]
	if !ok {
		return domain.IndexReading{}, fmt.Errorf("%w: %s", domain.ErrUnknownIndicator, indicator)
	}

	body, err := c.upstream.Get(ctx, c.baseURL+"/"+file)
	if err != nil {
		c.metrics.IndexRequests.WithLabelValues(string(indicator), "error").Inc()
		return domain.IndexReading{}, fmt.Errorf("index %s: %w", indicator, err)
	}

	reading, err := parseIndex(body)
	if err != nil {
		c.metrics.IndexRequests.WithLabelValues(string(indicator), "error").Inc()
		return domain.IndexReading{}, fmt.Errorf("index %s: %w", indicator, err)
	}
	reading.Indicator = indicator
	reading.Stale = !reading.AsOf.IsZero() && c.clock.Now().Sub(reading.AsOf) > staleAfter

	c.metrics.IndexRequests.WithLabelValues(string(indicator), "success").Inc()
	c.logger.Debug("index fetched", "indicator", indicator, "latest", reading.Latest, "as_of", reading.AsOf)
	return reading, nil
}

type row struct {
	date  time.Time
	value float64
}

// parseIndex reads a year,month,day,value CSV. The value is the last column;
// rows whose value does not parse (headers, gaps) are skipped. WeekChange is
// taken against the row seven entries before the latest.
func parseIndex(body []byte) (domain.IndexReading, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows []row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.IndexReading{}, fmt.Errorf("%w: parse csv: %v", domain.ErrProviderUnavailable, err)
		}
		if len(rec) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[len(rec)-1]), 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		rows = append(rows, row{date: rowDate(rec), value: v})
	}

	if len(rows) < 8 {
		return domain.IndexReading{}, fmt.Errorf("%w: need at least 8 rows, got %d", domain.ErrProviderUnavailable, len(rows))
	}

	latest := rows[len(rows)-1]
	return domain.IndexReading{
		AsOf:       latest.date,
		Latest:     latest.value,
		DayChange:  latest.value - rows[len(rows)-2].value,
		WeekChange: latest.value - rows[len(rows)-8].value,
	}, nil
}

func rowDate(rec []string) time.Time {
	if len(rec) < 4 {
		return time.Time{}
	}
	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(rec[i]))
		if err != nil {
			return time.Time{}
		}
		parts[i] = n
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], 0, 0, 0, 0, time.UTC)
}
