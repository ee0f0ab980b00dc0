// internal/clients/memberstore_client.go
package clients

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

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gymdesk/internal/membership"
)

// APIError is an error body returned by a PostgREST-style backend.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("member store: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("member store: %d: %s", e.Status, e.Message)
}

// MemberStoreClient reads and writes members and gym profiles through a
// hosted PostgREST endpoint. It satisfies membership.Store.
type MemberStoreClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewMemberStoreClient creates a client for the REST API rooted at baseURL
// (for example https://project.example.co/rest/v1). apiKey is sent both as
// the apikey header and as the bearer token.
func NewMemberStoreClient(baseURL, apiKey string, timeout time.Duration) *MemberStoreClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MemberStoreClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// ListMembers returns the owner's members ordered by end date, latest first.
func (c *MemberStoreClient) ListMembers(ctx context.Context, owner uuid.UUID, fields []string) ([]membership.Member, error) {
	if err := membership.ValidateFields(fields); err != nil {
		return nil, err
	}
	selectCols := "*"
	if fields != nil {
		selectCols = strings.Join(fields, ",")
	}
	q := url.Values{}
	q.Set("select", selectCols)
	q.Set("user_id", "eq."+owner.String())
	q.Set("order", "end_date.desc,id.asc")

	members := make([]membership.Member, 0)
	if err := c.do(ctx, http.MethodGet, "members", q, nil, "", &members); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// GetMember returns one of the owner's members.
func (c *MemberStoreClient) GetMember(ctx context.Context, owner, id uuid.UUID) (*membership.Member, error) {
	q := ownedBy(owner, id)
	q.Set("select", "*")

	var rows []membership.Member
	if err := c.do(ctx, http.MethodGet, "members", q, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if len(rows) == 0 {
		return nil, membership.ErrNotFound
	}
	return &rows[0], nil
}

// InsertMember stores m.
func (c *MemberStoreClient) InsertMember(ctx context.Context, m *membership.Member) error {
	if err := c.do(ctx, http.MethodPost, "members", nil, m, "return=minimal", nil); err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// UpdateMember applies patch to one of the owner's members and returns the
// stored result.
func (c *MemberStoreClient) UpdateMember(ctx context.Context, owner, id uuid.UUID, patch membership.MemberPatch) (*membership.Member, error) {
	body := make(map[string]interface{})
	for _, f := range patch.Fields() {
		body[f.Column] = f.Value
	}

	var rows []membership.Member
	if err := c.do(ctx, http.MethodPatch, "members", ownedBy(owner, id), body, "return=representation", &rows); err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	if len(rows) == 0 {
		return nil, membership.ErrNotFound
	}
	return &rows[0], nil
}

// DeleteMember removes one of the owner's members.
func (c *MemberStoreClient) DeleteMember(ctx context.Context, owner, id uuid.UUID) error {
	var rows []struct {
		ID uuid.UUID `json:"id"`
	}
	q := ownedBy(owner, id)
	q.Set("select", "id")
	if err := c.do(ctx, http.MethodDelete, "members", q, nil, "return=representation", &rows); err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if len(rows) == 0 {
		return membership.ErrNotFound
	}
	return nil
}

// GetGymProfile returns the owner's gym profile.
func (c *MemberStoreClient) GetGymProfile(ctx context.Context, owner uuid.UUID) (*membership.GymProfile, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+owner.String())

	var rows []membership.GymProfile
	if err := c.do(ctx, http.MethodGet, "gym_profiles", q, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("failed to get gym profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, membership.ErrNotFound
	}
	return &rows[0], nil
}

// SaveGymProfile creates or replaces the profile of p.UserID.
func (c *MemberStoreClient) SaveGymProfile(ctx context.Context, p *membership.GymProfile) error {
	q := url.Values{}
	q.Set("on_conflict", "user_id")
	if err := c.do(ctx, http.MethodPost, "gym_profiles", q, p, "resolution=merge-duplicates,return=minimal", nil); err != nil {
		return fmt.Errorf("failed to save gym profile: %w", err)
	}
	return nil
}

func ownedBy(owner, id uuid.UUID) url.Values {
	q := url.Values{}
	q.Set("id", "eq."+id.String())
	q.Set("user_id", "eq."+owner.String())
	return q
}

func (c *MemberStoreClient) do(ctx context.Context, method, table string, query url.Values, body interface{}, prefer string, out interface{}) error {
	u := c.baseURL + "/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
