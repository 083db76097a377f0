// Package relay orchestrates a single retrieval: extract the page URL from free
// text, resolve it to a media URL, probe its size, and either hand the origin
// link back directly or mirror the asset into the cache store and return a
// short-lived local URL.
package relay

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/media-relay/media-relay/internal/apperr"
	"github.com/media-relay/media-relay/internal/cache"
)

// UploadsPrefix 是本地资源对外暴露的路由前缀。
const UploadsPrefix = "/uploads/"

var candidatePattern = regexp.MustCompile(`https://\S+`)

// Resolver 将页面地址解析为可下载的媒体地址。
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// Fetcher 负责探测体积并打开源站资源流。
type Fetcher interface {
	ProbeSize(ctx context.Context, rawURL string) int64
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// SweepTrigger 允许在请求路径上非阻塞地唤醒一次回收。
type SweepTrigger interface {
	Trigger()
}

// Options 汇总 Service 的依赖。Sweeper 可为空。
type Options struct {
	Resolver Resolver
	Fetcher  Fetcher
	Store    cache.Store
	Policy   cache.Policy
	Sweeper  SweepTrigger
	Logger   *logrus.Logger
}

// Service 是检索流程的编排器，无请求级共享状态，可并发调用。
type Service struct {
	resolver Resolver
	fetcher  Fetcher
	store    cache.Store
	policy   cache.Policy
	sweeper  SweepTrigger
	logger   *logrus.Logger
}

// Request 描述一次检索：用户原始输入与调用方可见的基础地址（scheme://host）。
type Request struct {
	Input   string
	BaseURL string
}

// Result 是检索结果。IsDirectLink 为 true 时 VideoURL 即源站地址，本地不落盘。
type Result struct {
	VideoURL     string `json:"videoUrl"`
	OriginalURL  string `json:"originalUrl"`
	FileName     string `json:"fileName,omitempty"`
	ExpiresIn    string `json:"expiresIn,omitempty"`
	FileSize     string `json:"fileSize"`
	IsDirectLink bool   `json:"isDirectLink,omitempty"`
	SizeBytes    int64  `json:"-"`
}

// NewService 校验依赖并构造 Service。
func NewService(opts Options) (*Service, error) {
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Policy.TTL <= 0 || opts.Policy.SizeThreshold <= 0 {
		return nil, errors.New("cache policy requires positive ttl and size threshold")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		resolver: opts.Resolver,
		fetcher:  opts.Fetcher,
		store:    opts.Store,
		policy:   opts.Policy,
		sweeper:  opts.Sweeper,
		logger:   logger,
	}, nil
}

// Retrieve 执行“回收唤醒 → 提取 → 解析 → 探测 → 直链或缓存”全流程。
// 任何失败都以 *apperr.Error 返回，且不会留下部分写入的文件。
func (s *Service) Retrieve(ctx context.Context, req Request) (*Result, error) {
	if s.sweeper != nil {
		s.sweeper.Trigger()
	}

	pageURL, ok := ExtractURL(req.Input)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidInput, "extract", "no https url in input")
	}

	mediaURL, err := s.resolver.Resolve(ctx, pageURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResolution, "resolve", err)
	}
	if strings.TrimSpace(mediaURL) == "" {
		return nil, apperr.Wrap(apperr.KindResolution, "resolve", apperr.ErrNoMedia)
	}

	size := s.fetcher.ProbeSize(ctx, mediaURL)
	if !s.policy.ShouldCache(size) {
		s.logger.WithFields(logrus.Fields{
			"action":     "retrieve",
			"upstream":   mediaURL,
			"size_bytes": size,
		}).Debug("direct_link")
		return &Result{
			VideoURL:     mediaURL,
			OriginalURL:  mediaURL,
			FileSize:     FormatSize(size),
			IsDirectLink: true,
			SizeBytes:    size,
		}, nil
	}

	asset, err := s.mirror(ctx, mediaURL)
	if errors.Is(err, errOverThreshold) {
		// 源站未声明体积且实际超过阈值：放弃本地副本，退回直链。
		s.logger.WithFields(logrus.Fields{
			"action":   "retrieve",
			"upstream": mediaURL,
		}).Debug("direct_link_over_threshold")
		return &Result{
			VideoURL:     mediaURL,
			OriginalURL:  mediaURL,
			FileSize:     FormatSize(0),
			IsDirectLink: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"action":     "retrieve",
		"upstream":   mediaURL,
		"file_name":  asset.FileName(),
		"size_bytes": asset.SizeBytes,
	}).Debug("asset_cached")

	return &Result{
		VideoURL:    localURL(req.BaseURL, asset.FileName()),
		OriginalURL: mediaURL,
		FileName:    asset.FileName(),
		ExpiresIn:   FormatTTL(s.policy.TTL),
		FileSize:    FormatSize(asset.SizeBytes),
		SizeBytes:   asset.SizeBytes,
	}, nil
}

func (s *Service) mirror(ctx context.Context, mediaURL string) (*cache.Asset, error) {
	id, ext := cache.Allocate(mediaURL)

	body, err := s.fetcher.Open(ctx, mediaURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "fetch", err)
	}
	defer body.Close()

	asset, err := s.store.Put(ctx, id, ext, &thresholdReader{r: body, remaining: s.policy.SizeThreshold})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "store", err)
	}
	return asset, nil
}

var errOverThreshold = errors.New("asset exceeds size threshold")

// thresholdReader 在读出的字节数超过阈值时报错，使 Put 放弃临时文件。
type thresholdReader struct {
	r         io.Reader
	remaining int64
}

func (t *thresholdReader) Read(p []byte) (int, error) {
	if t.remaining < 0 {
		return 0, apperr.Wrap(apperr.KindUpstream, "fetch", errOverThreshold)
	}
	// 多读一个字节以区分“恰好等于阈值”与“超过阈值”。
	if int64(len(p)) > t.remaining+1 {
		p = p[:t.remaining+1]
	}
	n, err := t.r.Read(p)
	t.remaining -= int64(n)
	if t.remaining < 0 {
		return n, apperr.Wrap(apperr.KindUpstream, "fetch", errOverThreshold)
	}
	return n, err
}

// ExtractURL 返回输入中第一个以 https:// 开头的片段。
func ExtractURL(input string) (string, bool) {
	match := candidatePattern.FindString(input)
	if match == "" {
		return "", false
	}
	return match, true
}

func localURL(baseURL, fileName string) string {
	return strings.TrimRight(baseURL, "/") + UploadsPrefix + fileName
}
