package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/logger"
)

// Page Confluence页面原始数据（HTML正文 + 元数据），不做任何解析
type Page struct {
	ID          string
	Title       string
	Version     int
	SpaceKey    string
	URL         string
	LastUpdated string
	HTMLBody    string
	Ancestors   []string
	Labels      []string
}

// PageRef 页面引用（树遍历阶段只拿id和标题，正文延后抓取）
type PageRef struct {
	ID    string
	Title string
}

// Client Confluence REST API客户端
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	email      string
	apiToken   string
	pageLimit  int
}

// NewClient 创建Confluence客户端，带限流防止触发源系统限制
func NewClient(cfg config.ConfluenceConfig) *Client {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	limit := cfg.PageLimit
	if limit <= 0 {
		limit = 1000
	}
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		email:      cfg.Email,
		apiToken:   cfg.APIToken,
		pageLimit:  limit,
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("confluence request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("confluence request %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("confluence response decode failed: %w", err)
	}
	return nil
}

// SpaceHomepageID 获取空间首页的页面id
func (c *Client) SpaceHomepageID(ctx context.Context, spaceKey string) (string, error) {
	var data struct {
		Expandable struct {
			Homepage string `json:"homepage"`
		} `json:"_expandable"`
	}
	if err := c.get(ctx, "/rest/api/space/"+spaceKey, nil, &data); err != nil {
		return "", err
	}
	// _expandable.homepage 形如 "/rest/api/content/12345"
	ref := data.Expandable.Homepage
	if ref == "" {
		return "", fmt.Errorf("space %s has no homepage", spaceKey)
	}
	parts := strings.Split(ref, "/")
	return parts[len(parts)-1], nil
}

// GetChildren 获取父页面下的直接子页面引用
func (c *Client) GetChildren(ctx context.Context, parentID string) ([]PageRef, error) {
	var data struct {
		Results []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"results"`
	}
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", c.pageLimit))
	if err := c.get(ctx, "/rest/api/content/"+parentID+"/child/page", params, &data); err != nil {
		return nil, err
	}
	refs := make([]PageRef, 0, len(data.Results))
	for _, r := range data.Results {
		refs = append(refs, PageRef{ID: r.ID, Title: r.Title})
	}
	return refs, nil
}

// GetPage 抓取单个页面（storage格式HTML + 版本/时间戳/祖先/标签）
func (c *Client) GetPage(ctx context.Context, pageID, spaceKey string) (*Page, error) {
	var data struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Body  struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
		Version struct {
			Number int    `json:"number"`
			When   string `json:"when"`
		} `json:"version"`
		Ancestors []struct {
			Title string `json:"title"`
		} `json:"ancestors"`
		Metadata struct {
			Labels struct {
				Results []struct {
					Name string `json:"name"`
				} `json:"results"`
			} `json:"labels"`
		} `json:"metadata"`
	}

	params := url.Values{}
	params.Set("expand", "body.storage,version,ancestors,metadata.labels")
	if err := c.get(ctx, "/rest/api/content/"+pageID, params, &data); err != nil {
		return nil, err
	}

	ancestors := make([]string, 0, len(data.Ancestors))
	for _, a := range data.Ancestors {
		ancestors = append(ancestors, a.Title)
	}
	labels := make([]string, 0, len(data.Metadata.Labels.Results))
	for _, l := range data.Metadata.Labels.Results {
		labels = append(labels, l.Name)
	}

	id := data.ID
	if id == "" {
		id = pageID
	}
	return &Page{
		ID:          id,
		Title:       data.Title,
		Version:     data.Version.Number,
		SpaceKey:    spaceKey,
		URL:         fmt.Sprintf("%s/pages/viewpage.action?pageId=%s", c.baseURL, id),
		LastUpdated: data.Version.When,
		HTMLBody:    data.Body.Storage.Value,
		Ancestors:   ancestors,
		Labels:      labels,
	}, nil
}

// ListPageRefs 从空间首页开始递归收集所有页面引用
func (c *Client) ListPageRefs(ctx context.Context, spaceKey string) ([]PageRef, error) {
	rootID, err := c.SpaceHomepageID(ctx, spaceKey)
	if err != nil {
		return nil, fmt.Errorf("resolve space %s homepage: %w", spaceKey, err)
	}

	var refs []PageRef
	var walk func(ref PageRef) error
	walk = func(ref PageRef) error {
		refs = append(refs, ref)
		children, err := c.GetChildren(ctx, ref.ID)
		if err != nil {
			// 子树遍历失败不终止整个遍历，该分支下的页面在下次运行补齐
			logger.Warn("failed to list children, skipping subtree",
				zap.String("page_id", ref.ID), zap.Error(err))
			return nil
		}
		for _, child := range children {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(PageRef{ID: rootID}); err != nil {
		return nil, err
	}
	logger.Info("listed pages in space", zap.String("space_key", spaceKey), zap.Int("count", len(refs)))
	return refs, nil
}
