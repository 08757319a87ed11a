package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// BotAPI defines the interface for the Telegram Bot API methods we use.
// This allows for easier mocking in tests.
type BotAPI interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error)
	EditMessageText(ctx context.Context, req EditMessageTextRequest) error
	SendDocument(ctx context.Context, req SendDocumentRequest) (*Message, error)
	SendChatAction(ctx context.Context, req SendChatActionRequest) error
	SetMyCommands(ctx context.Context, req SetMyCommandsRequest) error
	SetWebhook(ctx context.Context, req SetWebhookRequest) error
	GetFile(ctx context.Context, req GetFileRequest) (*File, error)
	GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error)
	GetToken() string
}

// DefaultAPIBaseURL is the base URL of the hosted Bot API.
const DefaultAPIBaseURL = "https://api.telegram.org"

// Client is a client for the Telegram Bot API.
//
// Two separate HTTP clients are used. Long polling (getUpdates with a 25s
// timeout) holds connections open for a long time; sharing a connection pool
// with short calls like sendMessage caused sporadic "Client.Timeout exceeded
// while awaiting headers" errors under load. Short calls get a 30s timeout,
// retry logic, and no keep-alive; getUpdates gets its own isolated pool with
// no client timeout (the deadline is controlled through the context).
type Client struct {
	token             string
	httpClient        *http.Client // short API calls, with retry
	longPollingClient *http.Client // getUpdates only
	apiURL            string
}

// NewClient creates a new Telegram API client.
func NewClient(token, proxyURL string) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 0,
		}).DialContext,
		// HTTP/2 multiplexes requests over one connection, which made short
		// and long requests compete for it. Keep it off for both transports.
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		DisableKeepAlives:     true,
	}

	// Keep-alive stays on here so the polling connection is not re-established
	// every 25 seconds.
	longPollingTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          2,
		IdleConnTimeout:       120 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 0,
		MaxIdleConnsPerHost:   1,
		DisableKeepAlives:     false,
	}

	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
		longPollingTransport.Proxy = http.ProxyURL(proxy)
	}

	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		longPollingClient: &http.Client{
			Timeout:   0,
			Transport: longPollingTransport,
		},
		apiURL: fmt.Sprintf("%s/bot%s", DefaultAPIBaseURL, token),
	}, nil
}

// GetToken returns the bot token.
func (c *Client) GetToken() string {
	return c.token
}

// makeRequest performs a request to the Telegram API with retry logic.
//
// Up to 2 attempts with a 2 second delay. Retry happens only for network
// errors, never for Telegram API errors like "Bad Request".
func (c *Client) makeRequest(ctx context.Context, method string, params interface{}) (*APIResponse, error) {
	startTime := time.Now()

	jsonParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s", c.apiURL, method)

	var lastErr error
	maxRetries := 2
	retryDelay := 2 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			recordRetry(method)

			select {
			case <-ctx.Done():
				duration := time.Since(startTime).Seconds()
				recordRequestDuration(method, statusTimeout, duration)
				recordError(method, errorTypeTimeout)
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(jsonParams))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to perform request: %w", err)
			// Only retry on network errors, not on context cancellation
			if ctx.Err() != nil {
				duration := time.Since(startTime).Seconds()
				recordRequestDuration(method, statusTimeout, duration)
				recordError(method, errorTypeTimeout)
				return nil, lastErr
			}
			if isTimeoutError(err) {
				recordError(method, errorTypeTimeout)
			} else {
				recordError(method, errorTypeNetwork)
			}
			continue
		}

		apiResp, err := decodeAPIResponse(resp)
		if err != nil {
			lastErr = err
			recordError(method, errorTypeDecode)
			continue
		}

		if !apiResp.Ok {
			duration := time.Since(startTime).Seconds()
			recordRequestDuration(method, statusError, duration)
			recordError(method, errorTypeAPI)
			return nil, fmt.Errorf("telegram api error: %s", apiResp.Description)
		}

		duration := time.Since(startTime).Seconds()
		recordRequestDuration(method, statusSuccess, duration)
		return apiResp, nil
	}

	duration := time.Since(startTime).Seconds()
	recordRequestDuration(method, statusError, duration)
	return nil, lastErr
}

func decodeAPIResponse(resp *http.Response) (*APIResponse, error) {
	defer resp.Body.Close()
	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &apiResp, nil
}

// isTimeoutError reports whether the error looks like a timeout.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled")
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	resp, err := c.makeRequest(ctx, "sendMessage", req)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// EditMessageText edits the text of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	_, err := c.makeRequest(ctx, "editMessageText", req)
	return err
}

// SendDocument uploads a document as multipart/form-data.
//
// The other methods JSON-encode their parameters, but sendDocument carries
// raw file bytes, so it builds a multipart body instead. No retry: re-posting
// a large upload after a mid-transfer failure risks a duplicate document.
func (c *Client) SendDocument(ctx context.Context, req SendDocumentRequest) (*Message, error) {
	const method = "sendDocument"
	startTime := time.Now()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("chat_id", strconv.FormatInt(req.ChatID, 10)); err != nil {
		return nil, fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if req.Caption != "" {
		if err := w.WriteField("caption", req.Caption); err != nil {
			return nil, fmt.Errorf("failed to write caption field: %w", err)
		}
	}
	part, err := w.CreateFormFile("document", req.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, fmt.Errorf("failed to write document data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s", c.apiURL, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		duration := time.Since(startTime).Seconds()
		if isTimeoutError(err) {
			recordRequestDuration(method, statusTimeout, duration)
			recordError(method, errorTypeTimeout)
		} else {
			recordRequestDuration(method, statusError, duration)
			recordError(method, errorTypeNetwork)
		}
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}

	apiResp, err := decodeAPIResponse(resp)
	if err != nil {
		duration := time.Since(startTime).Seconds()
		recordRequestDuration(method, statusError, duration)
		recordError(method, errorTypeDecode)
		return nil, err
	}

	if !apiResp.Ok {
		duration := time.Since(startTime).Seconds()
		recordRequestDuration(method, statusError, duration)
		recordError(method, errorTypeAPI)
		return nil, fmt.Errorf("telegram api error: %s", apiResp.Description)
	}

	var msg Message
	if err := json.Unmarshal(apiResp.Result, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	duration := time.Since(startTime).Seconds()
	recordRequestDuration(method, statusSuccess, duration)
	return &msg, nil
}

// SendChatAction tells the user that something is happening on the bot's side.
func (c *Client) SendChatAction(ctx context.Context, req SendChatActionRequest) error {
	_, err := c.makeRequest(ctx, "sendChatAction", req)
	return err
}

// SetMyCommands changes the list of the bot's commands.
func (c *Client) SetMyCommands(ctx context.Context, req SetMyCommandsRequest) error {
	_, err := c.makeRequest(ctx, "setMyCommands", req)
	return err
}

// SetWebhook specifies a URL for incoming updates. An empty URL clears the
// webhook so that long polling can take over.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := c.makeRequest(ctx, "setWebhook", req)
	return err
}

// GetFile returns a File object with a file_path that can be used to download the file.
func (c *Client) GetFile(ctx context.Context, req GetFileRequest) (*File, error) {
	resp, err := c.makeRequest(ctx, "getFile", req)
	if err != nil {
		return nil, err
	}

	var file File
	if err := json.Unmarshal(resp.Result, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file: %w", err)
	}

	return &file, nil
}

// GetUpdates receives incoming updates using long polling.
//
// Uses the dedicated longPollingClient with no client timeout; the real
// deadline is req.Timeout plus a 10 second allowance for network delays,
// enforced through the context.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	const method = "getUpdates"
	startTime := time.Now()

	setLongPollingActive(true)
	defer setLongPollingActive(false)

	jsonParams, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s", c.apiURL, method)

	timeout := time.Duration(req.Timeout+10) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, apiURL, bytes.NewBuffer(jsonParams))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.longPollingClient.Do(httpReq)
	if err != nil {
		duration := time.Since(startTime).Seconds()
		if isTimeoutError(err) {
			recordRequestDuration(method, statusTimeout, duration)
			recordError(method, errorTypeTimeout)
		} else {
			recordRequestDuration(method, statusError, duration)
			recordError(method, errorTypeNetwork)
		}
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		duration := time.Since(startTime).Seconds()
		recordRequestDuration(method, statusError, duration)
		recordError(method, errorTypeDecode)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !apiResp.Ok {
		duration := time.Since(startTime).Seconds()
		recordRequestDuration(method, statusError, duration)
		recordError(method, errorTypeAPI)
		return nil, fmt.Errorf("telegram api error: %s", apiResp.Description)
	}

	var updates []Update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		duration := time.Since(startTime).Seconds()
		recordRequestDuration(method, statusError, duration)
		recordError(method, errorTypeDecode)
		return nil, fmt.Errorf("failed to unmarshal updates: %w", err)
	}

	duration := time.Since(startTime).Seconds()
	recordRequestDuration(method, statusSuccess, duration)

	if len(updates) > 0 {
		recordLongPollingUpdates(len(updates))
	}

	return updates, nil
}

var _ BotAPI = (*Client)(nil)
