package captcha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

const (
	notReady = "CAPCHA_NOT_READY"

	defaultTwoCaptchaEndpoint = "https://2captcha.com"
	defaultPollInterval       = 5 * time.Second
	defaultSolveTimeout       = 3 * time.Minute
)

// rejections are 2Captcha answers that no amount of retrying will change.
var rejections = map[string]bool{
	"ERROR_WRONG_USER_KEY":     true,
	"ERROR_KEY_DOES_NOT_EXIST": true,
	"ERROR_ZERO_BALANCE":       true,
	"ERROR_IP_NOT_ALLOWED":     true,
	"IP_BANNED":                true,
	"ERROR_GOOGLEKEY":          true,
	"ERROR_PAGEURL":            true,
	"ERROR_BAD_PARAMETERS":     true,
	"ERROR_WRONG_CAPTCHA_ID":   true,
	"ERROR_SITEKEY":            true,
}

// twoCaptchaResponse is the json=1 envelope of both in.php and res.php.
// request is a string for ids and tokens but may be a number for balances.
type twoCaptchaResponse struct {
	Status  int         `json:"status"`
	Request interface{} `json:"request"`
}

func (r twoCaptchaResponse) text() string {
	switch v := r.Request.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// TwoCaptchaClient implements schemas.CaptchaSolver against the 2Captcha
// HTTP API: a task is submitted to in.php and res.php is polled until the
// token is ready or the solve timeout passes.
type TwoCaptchaClient struct {
	apiKey       string
	endpoint     string
	httpClient   *http.Client
	pollInterval time.Duration
	solveTimeout time.Duration
	logger       *zap.Logger

	mu           sync.Mutex
	lastSolution string
}

var _ schemas.CaptchaSolver = (*TwoCaptchaClient)(nil)

// NewTwoCaptchaClient initializes the client.
func NewTwoCaptchaClient(cfg config.CaptchaConfig, logger *zap.Logger) (*TwoCaptchaClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("2Captcha API key is required")
	}
	c := &TwoCaptchaClient{
		apiKey:       cfg.APIKey,
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		httpClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		pollInterval: cfg.PollInterval,
		solveTimeout: cfg.SolveTimeout,
		logger:       logger.Named("captcha.2captcha"),
	}
	if c.endpoint == "" {
		c.endpoint = defaultTwoCaptchaEndpoint
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.solveTimeout <= 0 {
		c.solveTimeout = defaultSolveTimeout
	}
	return c, nil
}

// SolveRecaptcha solves a reCAPTCHA v2 challenge.
func (c *TwoCaptchaClient) SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	return c.solve(ctx, url.Values{
		"method":    {"userrecaptcha"},
		"googlekey": {siteKey},
		"pageurl":   {pageURL},
	})
}

// SolveHCaptcha solves an hCaptcha challenge.
func (c *TwoCaptchaClient) SolveHCaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	return c.solve(ctx, url.Values{
		"method":  {"hcaptcha"},
		"sitekey": {siteKey},
		"pageurl": {pageURL},
	})
}

// Balance returns the account balance.
func (c *TwoCaptchaClient) Balance(ctx context.Context) (float64, error) {
	resp, err := c.call(ctx, "res.php", url.Values{"action": {"getbalance"}})
	if err != nil {
		return 0, err
	}
	if resp.Status != 1 {
		return 0, c.answerError(resp.text())
	}
	balance, err := strconv.ParseFloat(resp.text(), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected balance %q: %w", resp.text(), err)
	}
	return balance, nil
}

// LastSolution returns the most recent token this client produced.
func (c *TwoCaptchaClient) LastSolution() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSolution
}

func (c *TwoCaptchaClient) solve(ctx context.Context, task url.Values) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.solveTimeout)
	defer cancel()

	id, err := c.submit(ctx, task)
	if err != nil {
		return "", err
	}
	c.logger.Debug("Captcha task submitted.", zap.String("task_id", id), zap.String("method", task.Get("method")))

	// The submit spent the only burst token, so the first poll waits a full interval.
	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	limiter.Allow()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return "", c.solveTimedOut(ctx, id, err)
		}
		resp, err := c.call(ctx, "res.php", url.Values{"action": {"get"}, "id": {id}})
		if err != nil {
			if ctx.Err() != nil {
				return "", c.solveTimedOut(ctx, id, err)
			}
			c.logger.Debug("Poll failed, trying again.", zap.String("task_id", id), zap.Error(err))
			continue
		}
		answer := resp.text()
		if resp.Status == 1 {
			c.mu.Lock()
			c.lastSolution = answer
			c.mu.Unlock()
			return answer, nil
		}
		if answer == notReady {
			continue
		}
		return "", c.answerError(answer)
	}
}

func (c *TwoCaptchaClient) solveTimedOut(ctx context.Context, id string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("captcha task %s not solved within %s: %w", id, c.solveTimeout, ctx.Err())
	}
	return err
}

// submit posts the task, retrying transient failures briefly.
func (c *TwoCaptchaClient) submit(ctx context.Context, task url.Values) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	var id string
	operation := func() error {
		resp, err := c.call(ctx, "in.php", task)
		if err != nil {
			return err
		}
		if resp.Status != 1 {
			err := c.answerError(resp.text())
			if errors.Is(err, ErrSolverRejected) || errors.Is(err, schemas.ErrCaptchaUnsolvable) {
				return backoff.Permanent(err)
			}
			return err
		}
		id = resp.text()
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return id, nil
}

// call performs one GET against the API and decodes the json=1 envelope.
func (c *TwoCaptchaClient) call(ctx context.Context, path string, params url.Values) (twoCaptchaResponse, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", c.apiKey)
	q.Set("json", "1")

	var out twoCaptchaResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+path+"?"+q.Encode(), nil)
	if err != nil {
		return out, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("2captcha request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("2captcha error: status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("failed to decode 2captcha response: %w", err)
	}
	return out, nil
}

func (c *TwoCaptchaClient) answerError(answer string) error {
	switch {
	case answer == "ERROR_CAPTCHA_UNSOLVABLE":
		return fmt.Errorf("%w: %s", schemas.ErrCaptchaUnsolvable, answer)
	case rejections[answer]:
		c.logger.Error("2Captcha rejected the request.", zap.String("answer", answer))
		return fmt.Errorf("%w: %s", ErrSolverRejected, answer)
	default:
		return fmt.Errorf("2captcha answered %s", answer)
	}
}
