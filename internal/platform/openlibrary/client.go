package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when Open Library has no edition for an ISBN.
var ErrNotFound = errors.New("openlibrary: no edition found")

type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

func NewClient(userAgent string, rps int, maxRetries int) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		userAgent:  userAgent,
		baseURL:    "https://openlibrary.org",
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), 1),
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

type Publisher struct {
	Name string `json:"name"`
}

// BookDetails matches api/books?jscmd=data
type BookDetails struct {
	Title      string      `json:"title"`
	Publishers []Publisher `json:"publishers"`
	Cover      struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
	} `json:"cover"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// Edition is the metadata a catalog entry can be prefilled with.
type Edition struct {
	Title             string   `json:"title"`
	Publisher         string   `json:"publisher,omitempty"`
	Authors           []string `json:"authors"`
	CoverThumbnailURL string   `json:"cover_thumbnail_url,omitempty"`
}

// LookupISBN fetches the edition registered under a canonical ISBN.
func (c *Client) LookupISBN(ctx context.Context, isbn string) (*Edition, error) {
	bibkey := "ISBN:" + isbn
	u := fmt.Sprintf("%s/api/books?bibkeys=%s&jscmd=data&format=json",
		c.baseURL, url.QueryEscape(bibkey))

	var res map[string]BookDetails
	if err := c.get(ctx, u, &res); err != nil {
		return nil, err
	}

	details, ok := res[bibkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, isbn)
	}
	return toEdition(details), nil
}

func toEdition(d BookDetails) *Edition {
	authors := make([]string, 0, len(d.Authors))
	for _, a := range d.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	thumbnail := d.Cover.Medium
	if thumbnail == "" {
		thumbnail = d.Cover.Small
	}

	return &Edition{
		Title:             d.Title,
		Publisher:         formatPublishers(d.Publishers),
		Authors:           authors,
		CoverThumbnailURL: thumbnail,
	}
}

func formatPublishers(p []Publisher) string {
	if len(p) == 0 {
		return ""
	}
	names := make([]string, len(p))
	for i, pub := range p {
		names[i] = pub.Name
	}
	return strings.Join(names, ", ")
}

func (c *Client) get(ctx context.Context, url string, target interface{}) error {
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			// Backoff: 1s, 2s, 4s...
			backoff := time.Duration(1<<uint(i-1)) * c.backoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retry, err := c.do(ctx, url, target)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, url string, target interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, err
	}

	return false, json.NewDecoder(resp.Body).Decode(target)
}
