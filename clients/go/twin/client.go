// Package twin provides a client for the twin chat API.
package twin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a twin API client authenticated with a session token.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twin error %d: %s", e.Status, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON answer into out.
func (c *Client) doRequest(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Profile is the caller's local identity.
type Profile struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Member joins a profile to a server.
type Member struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	ProfileID string   `json:"profileId"`
	Profile   *Profile `json:"profile,omitempty"`
}

// Channel is a server channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Server is a community workspace.
type Server struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"inviteCode"`
	Channels   []Channel `json:"channels"`
	Members    []Member  `json:"members"`
}

// Conversation is a 1:1 thread between two members.
type Conversation struct {
	ID          string `json:"id"`
	MemberOneID string `json:"memberOneId"`
	MemberTwoID string `json:"memberTwoId"`
}

// DirectMessage is a message in a conversation.
type DirectMessage struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	FileURL        *string   `json:"fileUrl"`
	MemberID       string    `json:"memberId"`
	ConversationID string    `json:"conversationId"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"createdAt"`
	Member         *Member   `json:"member,omitempty"`
}

// DirectMessagePage is one batch of conversation history, newest first.
type DirectMessagePage struct {
	Items      []DirectMessage `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// Profile returns the caller's profile, creating it on first use.
func (c *Client) Profile() (*Profile, error) {
	var p Profile
	if err := c.doRequest(http.MethodGet, "/api/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateServer creates a server owned by the caller.
func (c *Client) CreateServer(name, imageURL string) (*Server, error) {
	var s Server
	in := map[string]string{"name": name, "imageUrl": imageURL}
	if err := c.doRequest(http.MethodPost, "/api/servers", in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// JoinServer joins the server owning inviteCode.
func (c *Client) JoinServer(inviteCode string) (*Server, error) {
	var s Server
	if err := c.doRequest(http.MethodPost, "/api/invite/"+url.PathEscape(inviteCode), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// OpenConversation returns the conversation with another member of serverID.
func (c *Client) OpenConversation(serverID, memberID string) (*Conversation, error) {
	var conv Conversation
	in := map[string]string{"serverId": serverID, "memberId": memberID}
	if err := c.doRequest(http.MethodPost, "/api/conversations", in, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// SendDirectMessage posts content to a conversation.
func (c *Client) SendDirectMessage(conversationID, content string) (*DirectMessage, error) {
	var msg DirectMessage
	path := "/api/socket/direct-messages?conversationId=" + url.QueryEscape(conversationID)
	if err := c.doRequest(http.MethodPost, path, map[string]string{"content": content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditDirectMessage replaces the content of one of the caller's messages.
func (c *Client) EditDirectMessage(conversationID, messageID, content string) (*DirectMessage, error) {
	var msg DirectMessage
	path := fmt.Sprintf("/api/socket/direct-messages/%s?conversationId=%s",
		url.PathEscape(messageID), url.QueryEscape(conversationID))
	if err := c.doRequest(http.MethodPatch, path, map[string]string{"content": content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteDirectMessage soft-deletes a message.
func (c *Client) DeleteDirectMessage(conversationID, messageID string) (*DirectMessage, error) {
	var msg DirectMessage
	path := fmt.Sprintf("/api/socket/direct-messages/%s?conversationId=%s",
		url.PathEscape(messageID), url.QueryEscape(conversationID))
	if err := c.doRequest(http.MethodDelete, path, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListDirectMessages fetches one batch older than cursor; an empty cursor
// starts from the newest message.
func (c *Client) ListDirectMessages(conversationID, cursor string) (*DirectMessagePage, error) {
	q := url.Values{"conversationId": {conversationID}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page DirectMessagePage
	if err := c.doRequest(http.MethodGet, "/api/direct-messages?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
