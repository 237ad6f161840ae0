// Package datagokr fetches Korean public holidays from the data.go.kr
// SpcdeInfoService API.
package datagokr

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"routined/internal/routine"
	logx "routined/pkg/logx"
)

const (
	DefaultBaseURL   = "https://apis.data.go.kr/B090041/openapi/service/SpcdeInfoService"
	DefaultOperation = "getRestDeInfo"

	resultOK  = "00"
	maxBody   = 1 << 20
	numOfRows = 100
	userAgent = "routined"
)

var ErrNoServiceKey = errors.New("holiday api service key is empty")

type Config struct {
	BaseURL    string
	Operation  string
	ServiceKey string
	// RatePerSec limits outgoing requests; 0 disables limiting.
	RatePerSec float64
	Timeout    time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, ErrNoServiceKey
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Operation) == "" {
		cfg.Operation = DefaultOperation
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return c, nil
}

// WithHTTPClient swaps the transport (tests).
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

type envelope struct {
	XMLName xml.Name `xml:"response"`
	Header  struct {
		ResultCode string `xml:"resultCode"`
		ResultMsg  string `xml:"resultMsg"`
	} `xml:"header"`
	Body struct {
		Items struct {
			Item []item `xml:"item"`
		} `xml:"items"`
		NumOfRows  int `xml:"numOfRows"`
		PageNo     int `xml:"pageNo"`
		TotalCount int `xml:"totalCount"`
	} `xml:"body"`
}

type item struct {
	DateKind  string `xml:"dateKind"`
	DateName  string `xml:"dateName"`
	IsHoliday string `xml:"isHoliday"`
	Locdate   int    `xml:"locdate"`
	Seq       int    `xml:"seq"`
}

// Fetch returns the month's entries. Every entry is returned, holiday or not;
// IsHoliday carries the upstream flag.
func (c *Client) Fetch(ctx context.Context, year int, month time.Month) ([]routine.HolidayRecord, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u, err := c.requestURL(year, month)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, fmt.Errorf("holiday api: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	recs, err := Decode(body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("holiday api fetched",
		logx.Int("year", year), logx.Int("month", int(month)),
		logx.Int("items", len(recs)), logx.Duration("took", time.Since(start)))
	return recs, nil
}

func (c *Client) requestURL(year int, month time.Month) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.Operation)
	if err != nil {
		return "", fmt.Errorf("holiday api base url: %w", err)
	}
	q := base.Query()
	q.Set("solYear", strconv.Itoa(year))
	q.Set("solMonth", fmt.Sprintf("%02d", int(month)))
	q.Set("numOfRows", strconv.Itoa(numOfRows))
	q.Set("pageNo", "1")
	// Service keys are issued pre-encoded; url.Values would double-encode them.
	return base.String() + "?serviceKey=" + c.cfg.ServiceKey + "&" + q.Encode(), nil
}

// Decode parses one SpcdeInfoService XML response.
func Decode(body []byte) ([]routine.HolidayRecord, error) {
	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("holiday api: malformed response: %w", err)
	}
	if code := strings.TrimSpace(env.Header.ResultCode); code != resultOK {
		return nil, fmt.Errorf("holiday api: result %s: %s", code, strings.TrimSpace(env.Header.ResultMsg))
	}
	out := make([]routine.HolidayRecord, 0, len(env.Body.Items.Item))
	for _, it := range env.Body.Items.Item {
		d, err := routine.FromYYYYMMDD(it.Locdate)
		if err != nil {
			return nil, fmt.Errorf("holiday api: %w", err)
		}
		out = append(out, routine.HolidayRecord{
			Date:      d,
			IsHoliday: strings.EqualFold(strings.TrimSpace(it.IsHoliday), "Y"),
			Name:      strings.TrimSpace(it.DateName),
		})
	}
	return out, nil
}
