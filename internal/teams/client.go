package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ronappleton/teams-approval-bot/internal/config"
)

const (
	botFrameworkScope    = "https://api.botframework.com/.default"
	botFrameworkTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
)

// StatusError is returned when the connector answers with a non 2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client is a thin Bot Connector REST client.
type Client struct {
	http     *http.Client
	pageSize int
	logger   *zap.Logger
}

func NewClient(httpClient *http.Client, pageSize int, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpClient, pageSize: pageSize, logger: logger}
}

// NewHTTPClient returns the client used for connector calls. With an app id
// configured, requests carry a client-credentials bearer token.
func NewHTTPClient(cfg config.BotConfig) *http.Client {
	timeout := config.ParseDuration(cfg.RequestTimeout, 10*time.Second)
	if cfg.AppID == "" {
		return &http.Client{Timeout: timeout}
	}
	tokenURL := botFrameworkTokenURL
	if cfg.TenantID != "" {
		tokenURL = "https://login.microsoftonline.com/" + url.PathEscape(cfg.TenantID) + "/oauth2/v2.0/token"
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppPassword,
		TokenURL:     tokenURL,
		Scopes:       []string{botFrameworkScope},
	}
	client := cc.Client(context.Background())
	client.Timeout = timeout
	return client
}

type pagedMembers struct {
	Members           []Member `json:"members"`
	ContinuationToken string   `json:"continuationToken"`
}

// Members enumerates the roster of conversationID, following continuation
// tokens until the last page or until a token comes back a second time.
func (c *Client) Members(ctx context.Context, serviceURL, conversationID string) ([]Member, error) {
	var out []Member
	token := ""
	seen := map[string]struct{}{}
	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(c.pageSize))
		if token != "" {
			q.Set("continuationToken", token)
		}
		endpoint := conversationURL(serviceURL, conversationID, "pagedmembers") + "?" + q.Encode()
		var page pagedMembers
		if err := c.do(ctx, "list members", http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Members...)
		if page.ContinuationToken == "" {
			return out, nil
		}
		if _, repeated := seen[page.ContinuationToken]; repeated {
			c.logger.Warn("roster paging stopped on a repeated continuation token",
				zap.String("conversation_id", conversationID),
				zap.Int("members", len(out)))
			return out, nil
		}
		seen[page.ContinuationToken] = struct{}{}
		token = page.ContinuationToken
	}
}

// Send posts a new activity into conversationID and returns its id.
func (c *Client) Send(ctx context.Context, serviceURL, conversationID string, activity Activity) (string, error) {
	if activity.Type == "" {
		activity.Type = ActivityMessage
	}
	var res ResourceResponse
	endpoint := conversationURL(serviceURL, conversationID, "activities")
	if err := c.do(ctx, "send activity", http.MethodPost, endpoint, activity, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// Update replaces activityID in conversationID with activity.
func (c *Client) Update(ctx context.Context, serviceURL, conversationID, activityID string, activity Activity) error {
	if activity.Type == "" {
		activity.Type = ActivityMessage
	}
	activity.ID = activityID
	endpoint := conversationURL(serviceURL, conversationID, "activities") + "/" + url.PathEscape(activityID)
	return c.do(ctx, "update activity", http.MethodPut, endpoint, activity, nil)
}

// CreateConversation opens a conversation, typically a 1:1 chat with a user.
func (c *Client) CreateConversation(ctx context.Context, serviceURL string, params ConversationParameters) (ConversationResource, error) {
	var res ConversationResource
	endpoint := strings.TrimRight(serviceURL, "/") + "/v3/conversations"
	if err := c.do(ctx, "create conversation", http.MethodPost, endpoint, params, &res); err != nil {
		return ConversationResource{}, err
	}
	return res, nil
}

func conversationURL(serviceURL, conversationID, resource string) string {
	return strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/" + resource
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Debug("connector call failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
