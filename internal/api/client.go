package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ndquang/portfolio-rtc/internal/signaling"
	"github.com/ndquang/portfolio-rtc/internal/util"
)

const (
	requestTimeout = 15 * time.Second

	// placeholderImage stands in for portfolio entries with no image at all.
	placeholderImage = "https://placehold.co/600x400?text=No+Image"
)

// Client talks to the backend's REST surface. Zero-value is not usable;
// construct with NewClient.
type Client struct {
	baseURL string // scheme://host[:port], no trailing slash
	apiURL  string // baseURL + /api/v1
	httpc   *http.Client
}

func NewClient(baseURL string) *Client {
	base := util.NormalizeBaseURL(baseURL)
	return &Client{
		baseURL: base,
		apiURL:  base + "/api/v1",
		httpc:   &http.Client{Timeout: requestTimeout},
	}
}

// GetPortfolio fetches and normalizes the portfolio document: relative image
// paths are resolved against the backend host, missing images get a
// placeholder, and projects whose image landed in the source-code field are
// repaired.
func (c *Client) GetPortfolio(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, "/portfolio", &p); err != nil {
		return nil, err
	}
	c.normalize(&p)
	return &p, nil
}

// ChatHistory replays messages the backend stored from /topic/public.
func (c *Client) ChatHistory(ctx context.Context) ([]signaling.ChatMessage, error) {
	var history []signaling.ChatMessage
	if err := c.getJSON(ctx, "/chat/history", &history); err != nil {
		return nil, err
	}
	return history, nil
}

// UpdateProfile replaces the profile document.
func (c *Client) UpdateProfile(ctx context.Context, p ProfileUpdate) error {
	return c.sendJSON(ctx, http.MethodPut, "/admin/profile", p, nil)
}

// CreateProject adds a new project and returns its created form.
func (c *Client) CreateProject(ctx context.Context, p ProjectUpdate) (*Project, error) {
	var created Project
	if err := c.sendJSON(ctx, http.MethodPost, "/admin/projects", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProject replaces the project with the given id.
func (c *Client) UpdateProject(ctx context.Context, id int, p ProjectUpdate) error {
	return c.sendJSON(ctx, http.MethodPut, "/admin/projects/"+strconv.Itoa(id), p, nil)
}

// DeleteProject removes the project with the given id.
func (c *Client) DeleteProject(ctx context.Context, id int) error {
	return c.sendJSON(ctx, http.MethodDelete, "/admin/projects/"+strconv.Itoa(id), nil, nil)
}

// UploadImage streams one file to POST /upload and returns the URL the
// backend assigned (usually a /uploads/... path, resolved to absolute here).
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read upload %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload %s: %s: %s", filename, resp.Status, strings.TrimSpace(string(body)))
	}

	// The backend answers with the bare URL string, sometimes JSON-quoted.
	url := strings.TrimSpace(string(body))
	if unquoted, err := strconv.Unquote(url); err == nil {
		url = unquoted
	}
	return c.resolveImageURL(url), nil
}

// ExportCVURL is the direct download link for the generated CV. The caller
// opens it in a browser rather than fetching it here.
func (c *Client) ExportCVURL() string {
	return c.apiURL + "/export/cv-data"
}

// BaseURL returns the backend host this client points at.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) normalize(p *Profile) {
	p.AvatarURL = c.resolveImageURL(p.AvatarURL)
	if p.Strengths == "" {
		p.Strengths = "Problem Solving, System Design"
	}
	if p.WorkStyle == "" {
		p.WorkStyle = "Agile, Detail-oriented"
	}

	for i := range p.Projects {
		proj := &p.Projects[i]
		// Repair entries where an image URL was saved into the source-code
		// field: an empty image next to a cloudinary "repo" link means the
		// two got swapped at entry time.
		if proj.ImageURL == "" && strings.Contains(proj.SourceCodeURL, "cloudinary") {
			log.Printf("API: repaired image url for project %q", proj.Name)
			proj.ImageURL = proj.SourceCodeURL
			proj.SourceCodeURL = ""
		}
		proj.ImageURL = c.resolveImageURL(proj.ImageURL)
		if len(proj.Gallery) == 0 {
			proj.Gallery = []string{proj.ImageURL}
		} else {
			for j := range proj.Gallery {
				proj.Gallery[j] = c.resolveImageURL(proj.Gallery[j])
			}
		}
	}
}

// resolveImageURL makes a displayable URL: empty becomes the placeholder,
// absolute URLs pass through, backend-relative paths get the host prefixed.
func (c *Client) resolveImageURL(url string) string {
	switch {
	case url == "":
		return placeholderImage
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return url
	case strings.HasPrefix(url, "/"):
		return c.baseURL + url
	default:
		return c.baseURL + "/" + url
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}
