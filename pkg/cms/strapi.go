// Package cms fetches course content from a Strapi instance and caches it.
package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sanukhandev/lms-be-core/pkg/cache"
	"go.uber.org/zap"
)

// CourseContent is the CMS-managed part of a course page
type CourseContent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Body        string    `json:"body,omitempty"`
	VideoURL    string    `json:"video_url,omitempty"`
	CoverImage  string    `json:"cover_image,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	FetchedFrom string    `json:"-"`
}

type strapiEnvelope struct {
	Data *struct {
		ID         json.Number `json:"id"`
		Attributes struct {
			Title            string    `json:"title"`
			ShortDescription string    `json:"shortDescription"`
			Description      string    `json:"description"`
			VideoURL         string    `json:"videoUrl"`
			FeaturedImage    string    `json:"featuredImage"`
			UpdatedAt        time.Time `json:"updatedAt"`
		} `json:"attributes"`
	} `json:"data"`
	Error *struct {
		Status  int    `json:"status"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Strapi REST API
type Client struct {
	http   *resty.Client
	cache  cache.Store
	ttl    time.Duration
	logger *zap.Logger
	hits   func(hit bool)
}

// Options configures NewClient
type Options struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	CacheTTL time.Duration
	// OnLookup is called with true on a cache hit and false on a miss
	OnLookup func(hit bool)
}

// NewClient creates a Strapi client caching responses in store
func NewClient(opts Options, store cache.Store, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		httpClient.SetAuthToken(opts.Token)
	}

	hits := opts.OnLookup
	if hits == nil {
		hits = func(bool) {}
	}

	return &Client{
		http:   httpClient,
		cache:  store,
		ttl:    opts.CacheTTL,
		logger: logger,
		hits:   hits,
	}
}

func cacheKey(tenant, courseID string) string {
	return fmt.Sprintf("cms:%s:course:%s", tenant, courseID)
}

// CourseContent returns the CMS entry for courseID, served from cache when fresh
func (c *Client) CourseContent(ctx context.Context, tenant, courseID string) (*CourseContent, error) {
	key := cacheKey(tenant, courseID)

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("CMS cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var content CourseContent
		if err := json.Unmarshal(raw, &content); err == nil {
			c.hits(true)
			return &content, nil
		}
	}
	c.hits(false)

	var envelope strapiEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", courseID).
		SetQueryParam("populate", "*").
		SetResult(&envelope).
		SetError(&envelope).
		Get("/api/courses/{id}")
	if err != nil {
		c.logger.Error("Strapi API call failed", zap.String("course_id", courseID), zap.Error(err))
		return nil, fmt.Errorf("failed to call Strapi: %w", err)
	}
	if resp.IsError() || envelope.Data == nil {
		msg := resp.Status()
		if envelope.Error != nil {
			msg = envelope.Error.Message
		}
		c.logger.Warn("Strapi API returned error",
			zap.String("course_id", courseID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", msg))
		return nil, fmt.Errorf("strapi error: %s (status: %d)", msg, resp.StatusCode())
	}

	attrs := envelope.Data.Attributes
	content := &CourseContent{
		ID:         envelope.Data.ID.String(),
		Title:      attrs.Title,
		Summary:    attrs.ShortDescription,
		Body:       attrs.Description,
		VideoURL:   attrs.VideoURL,
		CoverImage: attrs.FeaturedImage,
		UpdatedAt:  attrs.UpdatedAt,
	}

	if raw, err := json.Marshal(content); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("CMS cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return content, nil
}

// Invalidate drops the cached entry, e.g. after a CMS webhook
func (c *Client) Invalidate(ctx context.Context, tenant, courseID string) error {
	return c.cache.Delete(ctx, cacheKey(tenant, courseID))
}
