package cbr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finance-tracker/internal/config"
)

const (
	// BankMargin is added on top of the key rate to suggest a consumer loan rate
	BankMargin = 5.0
	cacheTTL   = time.Hour
)

// CBRClient fetches the Central Bank of Russia key rate
type CBRClient struct {
	url    string
	client *http.Client
	log    *logrus.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    float64
	fetchedAt time.Time
}

// NewCBRClient initializes a new CBR client
func NewCBRClient(cfg *config.Config, log *logrus.Logger) *CBRClient {
	return &CBRClient{
		url: cfg.CBRURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
		now: time.Now,
	}
}

func (c *CBRClient) buildSOAPRequest() string {
	toDate := c.now().Format("2006-01-02")
	fromDate := c.now().AddDate(0, 0, -30).Format("2006-01-02")
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<KeyRate xmlns="http://web.cbr.ru/">
					<fromDate>%s</fromDate>
					<ToDate>%s</ToDate>
				</KeyRate>
			</soap12:Body>
		</soap12:Envelope>`, fromDate, toDate)
}

func (c *CBRClient) sendRequest(ctx context.Context, soapRequest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(soapRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://web.cbr.ru/KeyRate")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("CBR XML response: %s", string(body))
	return body, nil
}

// parseKeyRate extracts the most recent rate. Rows are not guaranteed to be
// ordered, so the one with the latest DT wins.
func parseKeyRate(rawBody []byte) (float64, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return 0, fmt.Errorf("failed to parse XML: %w", err)
	}

	rows := doc.FindElements("//diffgram/KeyRate/KR")
	if len(rows) == 0 {
		return 0, fmt.Errorf("no key rate data found in XML")
	}

	var (
		latest   string
		rateText string
	)
	for _, row := range rows {
		dt, rate := row.SelectElement("DT"), row.SelectElement("Rate")
		if rate == nil {
			continue
		}
		day := ""
		if dt != nil {
			day = dt.Text()
		}
		if rateText == "" || day > latest {
			latest, rateText = day, rate.Text()
		}
	}
	if rateText == "" {
		return 0, fmt.Errorf("rate element not found in XML")
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(rateText), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate %q: %w", rateText, err)
	}
	return rate, nil
}

// GetKeyRate returns the current key rate plus the bank margin. Results are cached
// for an hour.
func (c *CBRClient) GetKeyRate(ctx context.Context) (float64, error) {
	if rate, ok := c.cachedRate(); ok {
		return rate, nil
	}

	// The lock is not held across the request; concurrent misses may both fetch.
	body, err := c.sendRequest(ctx, c.buildSOAPRequest())
	if err != nil {
		return 0, err
	}
	rate, err := parseKeyRate(body)
	if err != nil {
		return 0, err
	}

	rate += BankMargin
	c.mu.Lock()
	c.cached, c.fetchedAt = rate, c.now()
	c.mu.Unlock()
	c.log.Infof("Retrieved key rate: %.2f%% (including %.2f%% bank margin)", rate, BankMargin)
	return rate, nil
}

func (c *CBRClient) cachedRate() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < cacheTTL {
		return c.cached, true
	}
	return 0, false
}
