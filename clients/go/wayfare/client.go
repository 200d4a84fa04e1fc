// Package wayfare provides a client for the Wayfare travel diary and
// chat API.
package wayfare

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/wayfarelabs/wayfare/internal/models"
)

// AuthError reports a sign-in or session failure the caller can act on,
// such as a cancelled provider flow, a missing token, or a revoked
// session.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// Client is a Wayfare API client. Credentials persist in the sealed
// keystore under ConfigDir between runs.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	UserID     string
	HTTPClient *http.Client

	keystore *Keystore
}

// NewClient creates a new Wayfare client and loads any stored session.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("WAYFARE_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".wayfare")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		keystore:   NewKeystore(configDir),
	}

	_ = c.loadSession()
	return c
}

func (c *Client) loadSession() error {
	values, err := c.keystore.Load()
	if err != nil {
		return err
	}
	c.Token = values[KeyAuthToken]
	c.UserID = values[KeyUserID]
	return nil
}

// saveSession seals the current credentials to disk.
func (c *Client) saveSession(user *models.User) error {
	return c.keystore.Store(map[string]string{
		KeyAuthToken: c.Token,
		KeyUserID:    user.ID,
		KeyUserName:  user.Name,
		KeyUserEmail: user.Email,
		KeyUserImg:   user.PhotoURL,
	})
}

// Profile returns the locally cached identity fields.
func (c *Client) Profile() (map[string]string, error) {
	return c.keystore.Load()
}

// doRequest performs an HTTP request, attaching the bearer token when one
// is held.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{Reason: errResp.Error}
		}
		return nil, fmt.Errorf("wayfare error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// SignInRequest is the request body for the sign-in exchange.
type SignInRequest struct {
	IDToken string `json:"idToken"`
	User    struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Photo string `json:"photo"`
	} `json:"user"`
}

// SignInResponse is the response from sign-in.
type SignInResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// SignIn exchanges a provider identity for a session and persists it.
func (c *Client) SignIn(idToken, userID, name, email, photo string) (*SignInResponse, error) {
	if idToken == "" {
		return nil, &AuthError{Reason: "missing id token"}
	}
	req := SignInRequest{IDToken: idToken}
	req.User.ID = userID
	req.User.Name = name
	req.User.Email = email
	req.User.Photo = photo

	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("POST", "/auth/google", body)
	if err != nil {
		return nil, err
	}

	var resp SignInResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	c.UserID = resp.User.ID
	if err := c.saveSession(resp.User); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignOut revokes the session server-side and clears the local keystore.
func (c *Client) SignOut() error {
	if c.Token != "" {
		_, _ = c.doRequest("POST", "/auth/logout", nil)
	}
	c.Token = ""
	c.UserID = ""
	return c.keystore.Clear()
}

// UserListResponse is the response from listing users.
type UserListResponse struct {
	Users []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		PhotoURL string `json:"photoUrl"`
		Online   bool   `json:"online"`
		LastSeen int64  `json:"lastSeen"`
	} `json:"users"`
}

// ListUsers lists every other registered user.
func (c *Client) ListUsers() (*UserListResponse, error) {
	respBody, err := c.doRequest("GET", "/users", nil)
	if err != nil {
		return nil, err
	}

	var resp UserListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConversationListResponse is the response from listing conversations.
type ConversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
}

// ListConversations lists the caller's conversations, newest first.
func (c *Client) ListConversations() ([]models.Conversation, error) {
	respBody, err := c.doRequest("GET", "/conversations", nil)
	if err != nil {
		return nil, err
	}

	var resp ConversationListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// OpenConversation reuses or creates the conversation with participantID.
func (c *Client) OpenConversation(participantID string) (*models.Conversation, error) {
	body, _ := json.Marshal(map[string]string{"participantId": participantID})
	respBody, err := c.doRequest("POST", "/conversations", body)
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	if err := json.Unmarshal(respBody, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// MessageListResponse is the response from listing messages.
type MessageListResponse struct {
	Messages []models.Message `json:"messages"`
}

// ListMessages lists a conversation's messages, oldest first.
func (c *Client) ListMessages(conversationID string) ([]models.Message, error) {
	respBody, err := c.doRequest("GET", "/conversations/"+conversationID+"/messages", nil)
	if err != nil {
		return nil, err
	}

	var resp MessageListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage sends a message to a conversation.
func (c *Client) SendMessage(conversationID, text string) (*models.Message, error) {
	body, _ := json.Marshal(map[string]string{"text": text})
	respBody, err := c.doRequest("POST", "/conversations/"+conversationID+"/messages", body)
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead flags the counterpart's messages as read.
func (c *Client) MarkRead(conversationID string) ([]string, error) {
	respBody, err := c.doRequest("POST", "/conversations/"+conversationID+"/read", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		MessageIDs []string `json:"messageIds"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.MessageIDs, nil
}

// TravelLogListResponse is the response from listing travel logs.
type TravelLogListResponse struct {
	Logs []models.TravelLog `json:"logs"`
}

// ListTravelLogs lists the caller's diary entries.
func (c *Client) ListTravelLogs() ([]models.TravelLog, error) {
	respBody, err := c.doRequest("GET", "/logs", nil)
	if err != nil {
		return nil, err
	}

	var resp TravelLogListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// AddTravelLog creates a diary entry.
func (c *Client) AddTravelLog(imageURL, location string, dateTime int64, details string) (*models.TravelLog, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"imageUrl": imageURL,
		"location": location,
		"dateTime": dateTime,
		"details":  details,
	})
	respBody, err := c.doRequest("POST", "/logs", body)
	if err != nil {
		return nil, err
	}

	var log models.TravelLog
	if err := json.Unmarshal(respBody, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// SearchTravelLogs searches the caller's diary entries.
func (c *Client) SearchTravelLogs(query string, limit int) ([]models.TravelLog, error) {
	path := "/logs/search?q=" + url.QueryEscape(query)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp TravelLogListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}
