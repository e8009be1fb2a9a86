// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseBytes caps how much of a platform response is read.
// Nothing the bot requests is legitimately larger.
const maxResponseBytes = 4 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the platform API base (e.g. "https://api.example.chat/v1").
	BaseURL string
	// Token is the bot's authentication token.
	Token string
	// BotUserID is the bot's own user id, as issued with the token.
	BotUserID UserID
	// HTTPClient is used for all requests. If nil, http.DefaultClient.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, discarded.
	Logger *slog.Logger
}

// Client implements [API] over the platform's REST surface. Request
// URLs are built by string concatenation against the validated base
// URL; all ids are path-escaped.
type Client struct {
	baseURL    string
	token      string
	selfID     UserID
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a REST client. BaseURL, Token, and BotUserID are
// required.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("platform: BaseURL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("platform: Token is required")
	}
	if config.BotUserID == "" {
		return nil, fmt.Errorf("platform: BotUserID is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("platform: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		selfID:     config.BotUserID,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// SelfID returns the bot's own user id.
func (c *Client) SelfID() UserID { return c.selfID }

// Community fetches one community's metadata.
func (c *Client) Community(ctx context.Context, id CommunityID) (*Community, error) {
	var community Community
	if err := c.doJSON(ctx, http.MethodGet, "/communities/"+escape(id), nil, nil, &community); err != nil {
		return nil, err
	}
	return &community, nil
}

// Communities lists every community the bot is in.
func (c *Client) Communities(ctx context.Context) ([]Community, error) {
	var communities []Community
	if err := c.doJSON(ctx, http.MethodGet, "/users/@me/communities", nil, nil, &communities); err != nil {
		return nil, err
	}
	return communities, nil
}

// Roles lists a community's roles.
func (c *Client) Roles(ctx context.Context, community CommunityID) ([]Role, error) {
	var roles []Role
	if err := c.doJSON(ctx, http.MethodGet, "/communities/"+escape(community)+"/roles", nil, nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// Member fetches one member of a community.
func (c *Client) Member(ctx context.Context, community CommunityID, user UserID) (*Member, error) {
	var member Member
	path := "/communities/" + escape(community) + "/members/" + escape(user)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// TextChannels lists the community's text channels.
func (c *Client) TextChannels(ctx context.Context, community CommunityID) ([]Channel, error) {
	var channels []Channel
	path := "/communities/" + escape(community) + "/channels"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &channels); err != nil {
		return nil, err
	}
	text := channels[:0]
	for _, channel := range channels {
		if channel.Text {
			text = append(text, channel)
		}
	}
	return text, nil
}

// AddRole grants a role to a member.
func (c *Client) AddRole(ctx context.Context, community CommunityID, user UserID, role RoleID) error {
	path := "/communities/" + escape(community) + "/members/" + escape(user) + "/roles/" + escape(role)
	return c.doJSON(ctx, http.MethodPut, path, nil, nil, nil)
}

// RemoveRole revokes a role from a member.
func (c *Client) RemoveRole(ctx context.Context, community CommunityID, user UserID, role RoleID) error {
	path := "/communities/" + escape(community) + "/members/" + escape(user) + "/roles/" + escape(role)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

// SendDirect sends a direct message to a user.
func (c *Client) SendDirect(ctx context.Context, user UserID, text string) error {
	body := map[string]string{"content": text}
	return c.doJSON(ctx, http.MethodPost, "/users/"+escape(user)+"/messages", nil, body, nil)
}

// SendChannel posts a message to a channel.
func (c *Client) SendChannel(ctx context.Context, channel ChannelID, text string) error {
	body := map[string]string{"content": text}
	return c.doJSON(ctx, http.MethodPost, "/channels/"+escape(channel)+"/messages", nil, body, nil)
}

// LatestRoleAudit returns the most recent member-role-update audit
// entry targeting the user, or nil if none exists.
func (c *Client) LatestRoleAudit(ctx context.Context, community CommunityID, target UserID) (*AuditEntry, error) {
	query := url.Values{}
	query.Set("action", "member_role_update")
	query.Set("target_id", string(target))
	query.Set("limit", "1")

	var entries []AuditEntry
	path := "/communities/" + escape(community) + "/audit-log"
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Leave removes the bot from the community.
func (c *Client) Leave(ctx context.Context, community CommunityID) error {
	return c.doJSON(ctx, http.MethodDelete, "/users/@me/communities/"+escape(community), nil, nil, nil)
}

// doJSON performs a request and decodes a JSON response into result
// (which may be nil for operations with empty responses). On 4xx/5xx
// the platform's error body is returned as *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, requestBody, result any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("platform: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("platform: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", "Bot "+c.token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("platform: reading response from %s %s: %w", method, path, err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var apiErr APIError
		if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil || apiErr.Code == "" {
			// Non-JSON error body. Fail loud with the raw text.
			return fmt.Errorf("platform: unexpected %d response from %s %s: %s",
				response.StatusCode, method, path, string(responseBody))
		}
		apiErr.StatusCode = response.StatusCode
		return &apiErr
	}

	if result == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, result); err != nil {
		return fmt.Errorf("platform: decoding response from %s %s: %w", method, path, err)
	}
	return nil
}

func escape[T ~string](id T) string {
	return url.PathEscape(string(id))
}
