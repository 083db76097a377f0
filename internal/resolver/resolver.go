// Package resolver exchanges a media page URL for a concrete downloadable asset
// URL. The upstream service guards its API with a token embedded in its landing
// page, so every resolution scrapes the token first and then posts the page URL
// to the API with that token as a bearer credential.
package resolver

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

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/media-relay/media-relay/internal/apperr"
)

// 默认值与解析服务的公开接口一致。
const (
	DefaultAPIPath        = "/wp-json/aio-dl/video-data/"
	DefaultTokenElementID = "token"
	DefaultTimeout        = 30 * time.Second

	maxPageBytes = 4 << 20
)

var (
	// ErrNoMedia 表示解析服务成功响应但没有可下载的媒体地址。
	ErrNoMedia = apperr.ErrNoMedia
	// ErrTokenMissing 表示落地页中找不到 token。
	ErrTokenMissing = errors.New("token not found or empty")
)

// Options 描述解析服务的位置与协议细节。
type Options struct {
	ServiceURL     string
	APIPath        string
	TokenElementID string
	Timeout        time.Duration
	Logger         *logrus.Logger
}

// Client 是解析服务的 HTTP 客户端，可在多个请求间并发复用。
type Client struct {
	http    *http.Client
	base    *url.URL
	apiURL  string
	tokenID string
	timeout time.Duration
	logger  *logrus.Logger
}

// New 校验 ServiceURL 并构造 Client。
func New(client *http.Client, opts Options) (*Client, error) {
	if client == nil {
		client = http.DefaultClient
	}
	base, err := url.Parse(strings.TrimSpace(opts.ServiceURL))
	if err != nil {
		return nil, fmt.Errorf("invalid service url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("invalid service url: %q", opts.ServiceURL)
	}
	apiPath := opts.APIPath
	if apiPath == "" {
		apiPath = DefaultAPIPath
	}
	tokenID := opts.TokenElementID
	if tokenID == "" {
		tokenID = DefaultTokenElementID
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if !strings.HasPrefix(apiPath, "/") {
		apiPath = "/" + apiPath
	}
	return &Client{
		http:    client,
		base:    base,
		apiURL:  strings.TrimRight(base.String(), "/") + apiPath,
		tokenID: tokenID,
		timeout: timeout,
		logger:  logger,
	}, nil
}

type videoData struct {
	Medias []struct {
		URL string `json:"url"`
	} `json:"medias"`
}

// Resolve 抓取 token 后调用解析 API，返回第一个媒体地址。
func (c *Client) Resolve(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.fetchToken(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.KindResolution, "token", err)
	}

	form := url.Values{"url": {pageURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.Wrap(apperr.KindResolution, "resolve", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindResolution, "resolve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", apperr.Wrap(apperr.KindResolution, "resolve", fmt.Errorf(
			"API error: status=%d body=%s",
			resp.StatusCode,
			strings.TrimSpace(string(body)),
		))
	}

	var data videoData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", apperr.Wrap(apperr.KindResolution, "resolve", fmt.Errorf("decode video data: %w", err))
	}
	if len(data.Medias) == 0 || strings.TrimSpace(data.Medias[0].URL) == "" {
		return "", apperr.Wrap(apperr.KindResolution, "resolve", ErrNoMedia)
	}

	mediaURL := strings.TrimSpace(data.Medias[0].URL)
	c.logger.WithFields(logrus.Fields{
		"action":   "resolve",
		"page_url": pageURL,
		"medias":   len(data.Medias),
	}).Debug("resolve_complete")
	return mediaURL, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token page status=%d", resp.StatusCode)
	}
	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return extractToken(page, c.tokenID)
}

// extractToken 在 HTML 中查找 id=elementID 的节点并返回其 value 属性。
func extractToken(page []byte, elementID string) (string, error) {
	node, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse token page: %w", err)
	}
	if token := findValueByID(node, elementID); token != "" {
		return token, nil
	}
	return "", ErrTokenMissing
}

func findValueByID(n *html.Node, elementID string) string {
	if n.Type == html.ElementNode {
		var id, value string
		for _, attr := range n.Attr {
			switch strings.ToLower(attr.Key) {
			case "id":
				id = attr.Val
			case "value":
				value = attr.Val
			}
		}
		if id == elementID {
			return strings.TrimSpace(value)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findValueByID(child, elementID); found != "" {
			return found
		}
	}
	return ""
}
