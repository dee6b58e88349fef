package tidelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Tideline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Resource represents the API resource model (partial).
type Resource struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Capacity int    `json:"capacity"`
	Status   string `json:"status"`
}

// Booking represents the API booking model (partial).
type Booking struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	ResourceID  string  `json:"resource_id"`
	Day         string  `json:"day"`
	StartAt     string  `json:"start_at"`
	EndAt       string  `json:"end_at"`
	Guests      int     `json:"guests"`
	GuestAges   []int   `json:"guest_ages,omitempty"`
	Status      string  `json:"status"`
	Price       float64 `json:"price,omitempty"`
	Eligibility string  `json:"eligibility,omitempty"`
}

// Event represents a ledger delta.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ResourceID string         `json:"resource_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// SlotAvailability is one bookable slot instance on a day.
type SlotAvailability struct {
	SlotID          string  `json:"slot_id"`
	TemplateID      string  `json:"template_id"`
	StartAt         string  `json:"start_at"`
	EndAt           string  `json:"end_at"`
	Capacity        int     `json:"capacity"`
	BookedCount     int     `json:"booked_count"`
	Remaining       int     `json:"remaining"`
	PriceMultiplier float64 `json:"price_multiplier"`
}

// SyncStatus mirrors the server's sync coordinator snapshot.
type SyncStatus struct {
	State      string `json:"state"`
	Cursor     int64  `json:"cursor"`
	LastSyncAt string `json:"last_sync_at,omitempty"`
	Staleness  int64  `json:"staleness_ns"`
	LastError  string `json:"last_error,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// BookingRequest is the create-booking payload.
type BookingRequest struct {
	Title         string   `json:"title"`
	ResourceID    string   `json:"resource_id"`
	StartAt       string   `json:"start_at"`
	EndAt         string   `json:"end_at"`
	SlotID        string   `json:"slot_id,omitempty"`
	Guests        int      `json:"guests"`
	GuestAges     []int    `json:"guest_ages,omitempty"`
	ClientName    string   `json:"client_name,omitempty"`
	ClientContact string   `json:"client_contact,omitempty"`
	Crew          []string `json:"crew,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// CreateBooking creates a booking.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	var resp Booking
	err := c.do(ctx, http.MethodPost, "v0/bookings", req, &resp)
	return resp, err
}

// GetBooking fetches a booking by id.
func (c *Client) GetBooking(ctx context.Context, id string) (Booking, error) {
	var resp Booking
	err := c.do(ctx, http.MethodGet, "v0/bookings/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetBookingStatus moves a booking through its status machine.
func (c *Client) SetBookingStatus(ctx context.Context, id, status string) (Booking, error) {
	var resp Booking
	err := c.do(ctx, http.MethodPatch, "v0/bookings/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// Availability returns bookable slots for a resource on a day (YYYY-MM-DD).
func (c *Client) Availability(ctx context.Context, resourceID, day string) ([]SlotAvailability, error) {
	var resp struct {
		Items []SlotAvailability `json:"items"`
	}
	endpoint := fmt.Sprintf("v0/resources/%s/availability?day=%s", url.PathEscape(resourceID), url.QueryEscape(day))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// EventsAfter returns ledger events with IDs greater than the cursor,
// ascending. This is the sync delta feed.
func (c *Client) EventsAfter(ctx context.Context, after int64, limit int, resourceID string) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/events?after=%d", after)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s&limit=%d", endpoint, limit)
	}
	if resourceID != "" {
		endpoint = fmt.Sprintf("%s&resource=%s", endpoint, url.QueryEscape(resourceID))
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Sync returns the server's sync coordinator status.
func (c *Client) Sync(ctx context.Context) (SyncStatus, error) {
	var resp SyncStatus
	err := c.do(ctx, http.MethodGet, "v0/sync", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
