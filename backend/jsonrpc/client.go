package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"
)

var (
	// ErrNetwork wraps transport-level failures (refused, timeout, DNS).
	ErrNetwork = errors.New("network failure")
	// ErrResponseUnsuccessful indicates a non-2xx HTTP status from the server.
	ErrResponseUnsuccessful = errors.New("response unsuccessful")
	// ErrInvalidData indicates an empty or unparseable response envelope.
	ErrInvalidData = errors.New("invalid response data")
	// ErrDecode indicates a result that doesn't match the expected shape.
	ErrDecode = errors.New("unexpected result shape")
)

// RPCError is an error object returned inside a JSON-RPC response envelope.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type ClientOptions struct {
	// RequestTimeout bounds a whole control call. Generous by default since
	// some library calls on large collections are effectively long-polls.
	RequestTimeout time.Duration
	DialTimeout    time.Duration
}

func (o *ClientOptions) fillDefaults() {
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 300 * time.Second
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 60 * time.Second
	}
}

// Client posts JSON-RPC request envelopes to a media-center server over HTTP.
// It performs no retries; retry policy belongs to callers (the offline
// reconnect probe in particular).
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewClient(host string, port int, username, password string, opts ClientOptions) *Client {
	opts.fillDefaults()
	return &Client{
		baseURL:  fmt.Sprintf("http://%s/jsonrpc", net.JoinHostPort(host, fmt.Sprintf("%d", port))),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: opts.DialTimeout}).DialContext,
			},
		},
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Post sends a raw request body and returns the raw response bytes.
func (c *Client) Post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrResponseUnsuccessful, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return raw, nil
}

// Send encodes method+params into a request envelope, posts it, and decodes
// the result field into T. The envelope ID is the method name itself, which
// is all the correlation a strictly request/response HTTP channel needs.
func Send[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var zero T
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: method})
	if err != nil {
		return zero, err
	}
	raw, err := c.Post(ctx, body)
	if err != nil {
		return zero, err
	}
	if len(raw) == 0 {
		return zero, fmt.Errorf("%w: empty body for %s", ErrInvalidData, method)
	}
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if resp.Error != nil {
		return zero, resp.Error
	}
	if resp.Result == nil {
		return zero, fmt.Errorf("%w: missing result for %s", ErrInvalidData, method)
	}
	var result T
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return result, nil
}

// Notify posts a request without waiting for or parsing the response.
// Errors are logged and swallowed.
func (c *Client) Notify(method string, params any) {
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: method})
	if err != nil {
		log.Printf("failed to encode %s notification: %v", method, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.Post(ctx, body); err != nil {
			log.Printf("fire-and-forget %s failed: %v", method, err)
		}
	}()
}

// Ping proves liveness of the control channel.
func (c *Client) Ping(ctx context.Context) error {
	res, err := Send[string](ctx, c, MethodPing, nil)
	if err != nil {
		return err
	}
	if res != "pong" {
		return fmt.Errorf("%w: ping returned %q", ErrDecode, res)
	}
	return nil
}
