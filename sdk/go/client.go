package openlmssdk

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
)

// Client is a minimal openlms HTTP API client.
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

// Resource is the generic catalog resource body. Schema-specific fields live
// in the map alongside the common ones below.
type Resource map[string]any

// ID returns the numeric id of a resource body.
func (r Resource) ID() int64 {
	switch v := r["id"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

// Enrollment is the derived latest-state record for a (student, course) pair.
type Enrollment struct {
	StudentID   int64  `json:"student_id"`
	PostID      int64  `json:"post_id"`
	Status      string `json:"status"`
	DateCreated string `json:"date_created"`
	DateUpdated string `json:"date_updated"`
}

// Student is a lightweight enrollment subject.
type Student struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"date_created"`
}

// Page carries the pagination headers of a list response.
type Page struct {
	Total      int
	TotalPages int
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListOptions are the collection query knobs shared by all resource lists.
type ListOptions struct {
	Page    int
	PerPage int
	Order   string
	OrderBy string
	Status  string
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if o.Order != "" {
		q.Set("order", o.Order)
	}
	if o.OrderBy != "" {
		q.Set("orderby", o.OrderBy)
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	return q
}

// ListCourses returns one page of courses plus the pagination totals.
func (c *Client) ListCourses(ctx context.Context, opts ListOptions) ([]Resource, Page, error) {
	return c.listResources(ctx, "courses", opts)
}

// ListMemberships returns one page of memberships.
func (c *Client) ListMemberships(ctx context.Context, opts ListOptions) ([]Resource, Page, error) {
	return c.listResources(ctx, "memberships", opts)
}

func (c *Client) listResources(ctx context.Context, route string, opts ListOptions) ([]Resource, Page, error) {
	endpoint := "lms/v1/" + route
	if q := opts.values().Encode(); q != "" {
		endpoint += "?" + q
	}
	var items []Resource
	page, err := c.doPaged(ctx, http.MethodGet, endpoint, nil, &items)
	return items, page, err
}

// CreateCourse creates a course from a free-form field map.
func (c *Client) CreateCourse(ctx context.Context, fields Resource) (Resource, error) {
	var out Resource
	err := c.do(ctx, http.MethodPost, "lms/v1/courses", fields, &out)
	return out, err
}

// GetCourse fetches one course.
func (c *Client) GetCourse(ctx context.Context, id int64) (Resource, error) {
	var out Resource
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("lms/v1/courses/%d", id), nil, &out)
	return out, err
}

// DeleteCourse trashes a course, or removes it permanently when force is set.
func (c *Client) DeleteCourse(ctx context.Context, id int64, force bool) error {
	endpoint := fmt.Sprintf("lms/v1/courses/%d", id)
	if force {
		endpoint += "?force=true"
	}
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// CreateStudent registers an enrollment subject.
func (c *Client) CreateStudent(ctx context.Context, email, name string) (Student, error) {
	var out Student
	err := c.do(ctx, http.MethodPost, "lms/v1/students", map[string]any{"email": email, "name": name}, &out)
	return out, err
}

// Enroll enrolls a student into a course or membership.
func (c *Client) Enroll(ctx context.Context, studentID, postID int64) (Enrollment, error) {
	var out Enrollment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("lms/v1/students/%d/enrollments/%d", studentID, postID), nil, &out)
	return out, err
}

// SetEnrollmentStatus appends a new status for the pair.
func (c *Client) SetEnrollmentStatus(ctx context.Context, studentID, postID int64, status string) (Enrollment, error) {
	var out Enrollment
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("lms/v1/students/%d/enrollments/%d", studentID, postID), map[string]any{"status": status}, &out)
	return out, err
}

// ListEnrollments returns one page of a student's current enrollments.
func (c *Client) ListEnrollments(ctx context.Context, studentID int64, opts ListOptions) ([]Enrollment, Page, error) {
	endpoint := fmt.Sprintf("lms/v1/students/%d/enrollments", studentID)
	if q := opts.values().Encode(); q != "" {
		endpoint += "?" + q
	}
	var items []Enrollment
	page, err := c.doPaged(ctx, http.MethodGet, endpoint, nil, &items)
	return items, page, err
}

// Unenroll removes the pair's enrollment records.
func (c *Client) Unenroll(ctx context.Context, studentID, postID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("lms/v1/students/%d/enrollments/%d", studentID, postID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	_, err := c.doPaged(ctx, method, endpoint, body, out)
	return err
}

func (c *Client) doPaged(ctx context.Context, method, endpoint string, body, out any) (Page, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return Page{}, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return Page{}, err
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
		return Page{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Page{}, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	page := Page{}
	page.Total, _ = strconv.Atoi(resp.Header.Get("X-WP-Total"))
	page.TotalPages, _ = strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return page, json.NewDecoder(resp.Body).Decode(out)
	}
	return page, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
