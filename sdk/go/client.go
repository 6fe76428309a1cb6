package agorasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Agora HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
	// Retries bounds how often a registration call is repeated after a
	// conflicting_versions answer.
	Retries int
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  10 * time.Second,
		Retries:  3,
	}
}

// Resource is one capacity pool of an activity.
type Resource struct {
	Name             string `json:"name"`
	Limit            *int   `json:"limit,omitempty"`
	FreeSlots        *int   `json:"free_slots,omitempty"`
	RegistrationOpen bool   `json:"registration_open"`
	WithWaitinglist  bool   `json:"with_waitinglist"`
	Registered       []struct {
		MemberID     string    `json:"member_id"`
		RegisteredAt time.Time `json:"registered_at"`
	} `json:"registered,omitempty"`
	Waitinglist []struct {
		MemberID      string     `json:"member_id"`
		WaitinglistAt time.Time  `json:"waitinglist_at"`
		ValidUntil    *time.Time `json:"valid_until,omitempty"`
	} `json:"waitinglist,omitempty"`
}

// Activity represents the API activity model.
type Activity struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Location      string     `json:"location,omitempty"`
	AssignedGroup string     `json:"assigned_group,omitempty"`
	Owner         string     `json:"owner,omitempty"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Version       int        `json:"version"`
	Resources     []Resource `json:"resources"`
}

// ActivityInput is the payload of CreateActivity and UpdateActivity.
type ActivityInput struct {
	URL           string          `json:"url,omitempty"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Location      string          `json:"location,omitempty"`
	AssignedGroup string          `json:"assigned_group,omitempty"`
	Owner         string          `json:"owner,omitempty"`
	StartDate     string          `json:"start_date"`
	StartTime     string          `json:"start_time,omitempty"`
	EndDate       string          `json:"end_date"`
	EndTime       string          `json:"end_time,omitempty"`
	Resources     []ResourceInput `json:"resources,omitempty"`
}

// ResourceInput describes one resource row of ActivityInput. PreviousName
// renames an existing resource and keeps its registrations.
type ResourceInput struct {
	Name             string `json:"name"`
	PreviousName     string `json:"previous_name,omitempty"`
	Limit            *int   `json:"limit,omitempty"`
	RegistrationOpen bool   `json:"registration_open,omitempty"`
	WithWaitinglist  bool   `json:"with_waitinglist,omitempty"`
}

// Registration is the outcome of a registration or waitinglist call.
type Registration struct {
	URL      string `json:"url"`
	Resource string `json:"resource"`
	MemberID string `json:"memberId"`
	State    string `json:"state"`
	Version  int    `json:"version"`
}

// Member represents the API member model.
type Member struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// SocratesEvent is the event a SoCraTes command appended.
type SocratesEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RoomType  string    `json:"room_type"`
	SessionID string    `json:"session_id"`
	MemberID  string    `json:"member_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// IsConflict reports whether err is a conflicting_versions answer.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict && apiErr.Code == "conflicting_versions"
}

// CreateMember creates a member.
func (c *Client) CreateMember(ctx context.Context, nickname, firstName, lastName, email string) (Member, error) {
	body := map[string]any{
		"nickname":   nickname,
		"first_name": firstName,
		"last_name":  lastName,
		"email":      email,
	}
	var resp Member
	err := c.do(ctx, http.MethodPost, "members", body, &resp)
	return resp, err
}

// CreateActivity creates an activity.
func (c *Client) CreateActivity(ctx context.Context, in ActivityInput) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPost, "activities", in, &resp)
	return resp, err
}

// UpdateActivity replaces the descriptive fields and resources of an activity.
func (c *Client) UpdateActivity(ctx context.Context, activityURL string, in ActivityInput) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPut, "activities/"+url.PathEscape(activityURL), in, &resp)
	return resp, err
}

// Activity fetches an activity by url.
func (c *Client) Activity(ctx context.Context, activityURL string) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodGet, "activities/"+url.PathEscape(activityURL), nil, &resp)
	return resp, err
}

// Activities lists activities; filter is upcoming, past or all.
func (c *Client) Activities(ctx context.Context, filter string) ([]Activity, error) {
	endpoint := "activities"
	if filter != "" {
		endpoint += "?filter=" + url.QueryEscape(filter)
	}
	var resp []Activity
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// State returns the registration state of memberID for a resource.
func (c *Client) State(ctx context.Context, activityURL, resource, memberID string) (string, error) {
	var resp struct {
		State string `json:"state"`
	}
	endpoint := resourcePath(activityURL, resource, "state") + "?member_id=" + url.QueryEscape(memberID)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.State, err
}

// Register adds memberID to the resource.
func (c *Client) Register(ctx context.Context, activityURL, resource, memberID string) (Registration, error) {
	return c.registration(ctx, http.MethodPost, resourcePath(activityURL, resource, "registrations"), map[string]any{"member_id": memberID})
}

// Unregister removes memberID from the resource.
func (c *Client) Unregister(ctx context.Context, activityURL, resource, memberID string) (Registration, error) {
	return c.registration(ctx, http.MethodDelete, resourcePath(activityURL, resource, "registrations/"+url.PathEscape(memberID)), nil)
}

// Wait puts memberID on the waitinglist of the resource.
func (c *Client) Wait(ctx context.Context, activityURL, resource, memberID string) (Registration, error) {
	return c.registration(ctx, http.MethodPost, resourcePath(activityURL, resource, "waitinglist"), map[string]any{"member_id": memberID})
}

// Unwait takes memberID off the waitinglist of the resource.
func (c *Client) Unwait(ctx context.Context, activityURL, resource, memberID string) (Registration, error) {
	return c.registration(ctx, http.MethodDelete, resourcePath(activityURL, resource, "waitinglist/"+url.PathEscape(memberID)), nil)
}

// Promote gives a waiting member hours to register. Empty hours closes the
// window.
func (c *Client) Promote(ctx context.Context, activityURL, resource, memberID, hours string) (Registration, error) {
	endpoint := resourcePath(activityURL, resource, "waitinglist/"+url.PathEscape(memberID)+"/validity")
	return c.registration(ctx, http.MethodPut, endpoint, map[string]any{"hours": hours})
}

// Reserve issues a SoCraTes reservation. Rejections are returned as events.
func (c *Client) Reserve(ctx context.Context, roomType, sessionID, memberID string) (SocratesEvent, error) {
	var resp SocratesEvent
	body := map[string]any{"room_type": roomType, "session_id": sessionID, "member_id": memberID}
	err := c.do(ctx, http.MethodPost, "socrates/reservations", body, &resp)
	return resp, err
}

// RegisterParticipant registers a SoCraTes participant.
func (c *Client) RegisterParticipant(ctx context.Context, roomType, sessionID, memberID string) (SocratesEvent, error) {
	var resp SocratesEvent
	body := map[string]any{"room_type": roomType, "session_id": sessionID, "member_id": memberID}
	err := c.do(ctx, http.MethodPost, "socrates/registrations", body, &resp)
	return resp, err
}

func (c *Client) registration(ctx context.Context, method, endpoint string, body any) (Registration, error) {
	var resp Registration
	var err error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		err = c.do(ctx, method, endpoint, body, &resp)
		if !IsConflict(err) {
			return resp, err
		}
	}
	return resp, err
}

func resourcePath(activityURL, resource, rest string) string {
	return fmt.Sprintf("activities/%s/resources/%s/%s", url.PathEscape(activityURL), url.PathEscape(resource), rest)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
