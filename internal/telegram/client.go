// Package telegram is a minimal Telegram Bot API client built around long
// polling.
//
// A Client serves one supervisor generation: Poll loops over getUpdates and
// hands each update to the registered Handler until RequestStop is called.
// The update offset lives only in the Client, so updates fetched but not yet
// dispatched when RequestStop arrives are dropped and redelivered to the next
// generation's Client by the server.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrStopped is returned by API calls interrupted by RequestStop.
var ErrStopped = errors.New("telegram client stopped")

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// maxResponseBytes bounds the body read from any Bot API response.
const maxResponseBytes = 16 << 20

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// Handler receives updates in the order the server delivered them.
type Handler interface {
	HandleUpdate(ctx context.Context, u Update)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, u Update)

// HandleUpdate calls f(ctx, u).
func (f HandlerFunc) HandleUpdate(ctx context.Context, u Update) { f(ctx, u) }

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Options configures a [Client].
type Options struct {
	// Token is the bot token. Required.
	Token string
	// APIURL is the Bot API base URL. Defaults to DefaultAPIURL.
	APIURL string
	// RequestTimeout is the client-side allowance added to the long-poll hold
	// for getUpdates, and the whole budget for other methods. Defaults to 10s.
	RequestTimeout time.Duration
	// SkipPending drops the server-side backlog before the first poll.
	SkipPending bool
	// RetryMax is the number of transport-level retries per request.
	RetryMax int
	// Logger receives client records. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client talks to the Bot API. It implements the long-poll contract used by
// the polling worker: Poll, RequestStop and Stopping.
type Client struct {
	token   string
	baseURL string
	timeout time.Duration
	skip    bool
	log     *slog.Logger
	http    *retryablehttp.Client

	handler Handler

	// offset is the next update_id to request; touched only by Poll.
	offset int64

	ctx      context.Context
	cancel   context.CancelFunc
	stopping chan struct{}
	stopOnce sync.Once
}

// New creates a Client. The handler is registered separately with Handle.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	base := strings.TrimRight(opts.APIURL, "/")
	if base == "" {
		base = DefaultAPIURL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = opts.RetryMax
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second
	hc.Logger = nil // suppress retryablehttp's default logging; URLs carry the token
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		token:    opts.Token,
		baseURL:  base,
		timeout:  timeout,
		skip:     opts.SkipPending,
		log:      log,
		http:     hc,
		ctx:      ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
	}, nil
}

// Handle registers h. It must be called before Poll.
func (c *Client) Handle(h Handler) { c.handler = h }

// RequestStop makes a pending or future Poll return nil and aborts every
// in-flight request. Safe to call more than once and from any goroutine.
func (c *Client) RequestStop() {
	c.stopOnce.Do(func() {
		close(c.stopping)
		c.cancel()
	})
}

// Stopping is closed once RequestStop has been called.
func (c *Client) Stopping() <-chan struct{} { return c.stopping }

func (c *Client) stopped() bool {
	select {
	case <-c.stopping:
		return true
	default:
		return false
	}
}

// ///////////////////////////////////////////////
// Long polling
// ///////////////////////////////////////////////

// Poll fetches updates with getUpdates, holding each request up to timeout on
// the server, and dispatches them to the handler. It returns nil once
// RequestStop has been called and the first transport or API error otherwise.
func (c *Client) Poll(timeout time.Duration, allowedUpdates []string) error {
	if c.skip {
		if err := c.dropPending(); err != nil {
			if c.stopped() {
				return nil
			}
			return err
		}
		c.skip = false
	}

	for {
		if c.stopped() {
			return nil
		}
		updates, err := c.getUpdates(c.offset, timeout, allowedUpdates)
		if err != nil {
			if c.stopped() {
				return nil
			}
			return err
		}
		for _, u := range updates {
			if c.stopped() {
				c.log.Debug("dropping fetched updates on stop", "from_update", u.UpdateID)
				return nil
			}
			c.offset = u.UpdateID + 1
			c.dispatch(u)
		}
	}
}

// dropPending confirms everything queued on the server so the first real
// poll starts with fresh updates.
func (c *Client) dropPending() error {
	updates, err := c.getUpdates(-1, 0, nil)
	if err != nil {
		return fmt.Errorf("skip pending updates: %w", err)
	}
	if n := len(updates); n > 0 {
		c.offset = updates[n-1].UpdateID + 1
		c.log.Info("skipped pending updates", "next_offset", c.offset)
	}
	return nil
}

// dispatch hands u to the handler. A handler panic is logged and does not
// end the poll loop.
func (c *Client) dispatch(u Update) {
	if c.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("update handler panicked", "update_id", u.UpdateID, "kind", u.Kind(), "panic", r)
		}
	}()
	c.handler.HandleUpdate(c.ctx, u)
}

func (c *Client) getUpdates(offset int64, timeout time.Duration, allowed []string) ([]Update, error) {
	params := map[string]any{
		"offset":  offset,
		"timeout": int(timeout / time.Second),
	}
	if allowed != nil {
		params["allowed_updates"] = allowed
	}
	var updates []Update
	if err := c.call(c.ctx, "getUpdates", params, timeout+c.timeout, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// ///////////////////////////////////////////////
// Methods
// ///////////////////////////////////////////////

// GetMe returns the bot's own user record.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, c.timeout, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SendMessage sends text to chatID and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	var m Message
	params := map[string]any{"chat_id": chatID, "text": text}
	if err := c.call(ctx, "sendMessage", params, c.timeout, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// AnswerCallbackQuery acknowledges a callback query, optionally showing text
// to the user.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	params := map[string]any{"callback_query_id": queryID}
	if text != "" {
		params["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", params, c.timeout, nil)
}

// ///////////////////////////////////////////////
// Transport
// ///////////////////////////////////////////////

// call posts params as JSON to method and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params map[string]any, timeout time.Duration, out any) error {
	if c.stopped() {
		return ErrStopped
	}

	body := []byte("{}")
	if params != nil {
		var err error
		if body, err = json.Marshal(params); err != nil {
			return fmt.Errorf("encode %s params: %w", method, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// Requests made with a caller context still end on RequestStop.
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, body)
	if err != nil {
		return c.redact(fmt.Errorf("build %s request: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if c.stopped() {
			return ErrStopped
		}
		return c.redact(fmt.Errorf("telegram %s: %w", method, err))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if c.stopped() {
			return ErrStopped
		}
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var env response
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("telegram %s: unexpected %s response: %w", method, resp.Status, err)
	}
	if !env.OK {
		apiErr := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// redact strips the bot token from err's message. Transport errors quote the
// request URL, which embeds the token.
func (c *Client) redact(err error) error {
	if err == nil || !strings.Contains(err.Error(), c.token) {
		return err
	}
	return &redactedError{err: err, token: c.token}
}

type redactedError struct {
	err   error
	token string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.token, "<token>")
}

func (e *redactedError) Unwrap() error { return e.err }
