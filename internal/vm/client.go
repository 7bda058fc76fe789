// Package vm pushes archive records into VictoriaMetrics.
package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rtm0/agage/internal/ncio"
)

// Client is a Victoria Metrics client capable of inserting the variables of
// an archive file via various protocols.
type Client struct {
	logger       *zap.Logger
	httpCli      *http.Client
	insertURL    string
	metricPrefix string
	names        []string
	labels       []label
	recToText    recToTextFunc
}

type label struct {
	name, value string
}

const metricPrefixRE = "^[a-zA-Z0-9]+$"

// NewClient creates a new VM client. names are the metrics of each record,
// in the order of ncio.Record.Values; labels are attached to every sample.
func NewClient(logger *zap.Logger, insertURL string, maxConns int, metricPrefix string, names []string, labels map[string]string) (*Client, error) {
	url, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	matches, err := regexp.MatchString(metricPrefixRE, metricPrefix)
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}

	var ls []label
	for k, v := range labels {
		ls = append(ls, label{k, v})
	}
	slices.SortFunc(ls, func(a, b label) int { return strings.Compare(a.name, b.name) })

	apiParams := apiParamsFuncs[url.Path]
	if apiParams == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}
	q := url.Query()
	for name, values := range apiParams(metricPrefix, names, ls) {
		for _, v := range values {
			q.Add(name, v)
		}
	}
	url.RawQuery = q.Encode()

	recToText := recToTextFuncs[url.Path]
	if recToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}

	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
			},
		},
		insertURL:    url.String(),
		metricPrefix: metricPrefix,
		names:        names,
		labels:       ls,
		recToText:    recToText,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpCli.CloseIdleConnections()
}

// Metrics returns the number of metrics in each record.
func (c *Client) Metrics() int {
	return len(c.names)
}

// Insert inserts records into Victoria Metrics.
func (c *Client) Insert(ctx context.Context, recs []ncio.Record) error {
	body := recsToText(recs, c)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.insertURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	res, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("could not post data: %w", err)
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Error("Failed to drain response body", zap.Error(err))
	}
	if res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d from %s", res.StatusCode, c.insertURL)
	}
	return nil
}

type apiParamsFunc func(metricPrefix string, names []string, labels []label) url.Values

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

func influxDBAPIParams(string, []string, []label) url.Values {
	return url.Values{"precision": {"ms"}}
}

func csvAPIParams(metricPrefix string, names []string, labels []label) url.Values {
	cols := []string{"1:time:unix_ms"}
	for i, n := range names {
		cols = append(cols, fmt.Sprintf("%d:metric:%s_%s", i+2, metricPrefix, n))
	}
	v := url.Values{"format": {strings.Join(cols, ",")}}
	for _, l := range labels {
		v.Add("extra_label", l.name+"="+l.value)
	}
	return v
}

type recToTextFunc func(*strings.Builder, *ncio.Record, *Client) bool

// recsToText converts multiple records to text.
func recsToText(recs []ncio.Record, c *Client) io.Reader {
	var sb strings.Builder
	for _, r := range recs {
		if c.recToText(&sb, &r, c) {
			sb.WriteString("\n")
		}
	}
	return strings.NewReader(sb.String())
}

var recToTextFuncs = map[string]recToTextFunc{
	"/influx/write":        recToInfluxDB,
	"/influx/api/v2/write": recToInfluxDB,
	"/write":               recToInfluxDB,
	"/api/v2/write":        recToInfluxDB,
	"/api/v1/import/csv":   recToCSV,
}

var tagEscaper = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)

// recToInfluxDB converts a record into InfluxDB line protocol and appends it
// to the string builder. Missing values are left out; a record without any
// value is skipped.
func recToInfluxDB(sb *strings.Builder, r *ncio.Record, c *Client) bool {
	var fields []string
	for i, v := range r.Values {
		if math.IsNaN(v) {
			continue
		}
		fields = append(fields, c.names[i]+"="+strconv.FormatFloat(v, 'g', -1, 64))
	}
	if len(fields) == 0 {
		return false
	}
	sb.WriteString(c.metricPrefix)
	for _, l := range c.labels {
		sb.WriteString("," + tagEscaper.Replace(l.name) + "=" + tagEscaper.Replace(l.value))
	}
	sb.WriteString(" " + strings.Join(fields, ",") + " " + strconv.FormatInt(r.Timestamp, 10))
	return true
}

// recToCSV converts a record into a CSV record and appends it to the string
// builder. Missing values are empty fields.
func recToCSV(sb *strings.Builder, r *ncio.Record, _ *Client) bool {
	sb.WriteString(strconv.FormatInt(r.Timestamp, 10))
	for _, v := range r.Values {
		sb.WriteString(",")
		if !math.IsNaN(v) {
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	return true
}
