// Package fetcher talks to the origin that hosts a resolved media asset: a
// bounded HEAD probe for the reported size and a bounded streaming GET whose
// failures are tagged as upstream errors.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/media-relay/media-relay/internal/apperr"
)

// 默认超时：探测失败可降级，完整下载需要更宽松的上限。
const (
	DefaultProbeTimeout = 10 * time.Second
	DefaultFetchTimeout = 2 * time.Minute
)

// Options 控制探测与下载的超时。
type Options struct {
	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	Logger       *logrus.Logger
}

// Fetcher 复用共享 http.Client 访问源站。
type Fetcher struct {
	client       *http.Client
	probeTimeout time.Duration
	fetchTimeout time.Duration
	logger       *logrus.Logger
}

// New 构造 Fetcher，未设置的超时回退到默认值。
func New(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Fetcher{
		client:       client,
		probeTimeout: opts.ProbeTimeout,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger,
	}
}

// ProbeSize 通过 HEAD 获取源站声明的体积。源站未声明、返回非 2xx、超时或网络错误时
// 均返回 0，调用方应将 0 视为“未知/较小”并继续走缓存路径。
func (f *Fetcher) ProbeSize(ctx context.Context, rawURL string) int64 {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		f.logProbeFailure(rawURL, 0, err)
		return 0
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.logProbeFailure(rawURL, 0, err)
		return 0
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		f.logProbeFailure(rawURL, resp.StatusCode, nil)
		return 0
	}
	if resp.ContentLength <= 0 {
		return 0
	}
	return resp.ContentLength
}

// Open 以流式 GET 打开源站资源。返回的 ReadCloser 在整个读取过程中受 FetchTimeout
// 约束，读取失败同样标记为 upstream 错误；调用方必须 Close。
func (f *Fetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.KindUpstream, "fetch", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.KindUpstream, "fetch", err)
	}
	if !isSuccess(resp.StatusCode) {
		resp.Body.Close()
		cancel()
		return nil, apperr.New(apperr.KindUpstream, "fetch", fmt.Sprintf("failed to download: HTTP %d", resp.StatusCode))
	}
	return &body{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (f *Fetcher) logProbeFailure(rawURL string, status int, err error) {
	fields := logrus.Fields{
		"action":          "probe",
		"upstream":        rawURL,
		"upstream_status": status,
	}
	entry := f.logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("probe_size_unknown")
}

// body 将读取错误标记为 upstream，并在关闭时释放超时上下文。
type body struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = apperr.Wrap(apperr.KindUpstream, "fetch", err)
	}
	return n, err
}

func (b *body) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
