package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理临时资源的落盘、读取与过期回收。磁盘布局遵循：
//
//	<StoragePath>/<id><ext>          # 已发布的资源
//	<StoragePath>/.partial-*         # 写入中的临时文件，对外不可见
//
// 资源的创建时间即文件 ModTime，由 Put 在写入完成时设置。
type Store interface {
	// Put 将 body 流式写入缓存，完成后才以 id+ext 发布。失败时不会残留任何文件；
	// id 冲突返回 KindConflict。
	Put(ctx context.Context, id, ext string, body io.Reader) (*Asset, error)

	// Open 按文件名（<id><ext>）打开资源，不存在或已回收时返回 ErrNotFound。
	Open(ctx context.Context, name string) (*ReadResult, error)

	// Sweep 删除所有 now-CreatedAt > ttl 的资源并返回回收数量。单个文件删除失败
	// 不会中断扫描，失败原因通过 errors.Join 汇总返回。
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error)

	// Remove 删除指定资源，资源不存在时视为成功。
	Remove(ctx context.Context, name string) error

	// List 返回当前驻留的资源，按创建时间升序。
	List(ctx context.Context) ([]Asset, error)
}

// Asset 描述一个已完整写入的缓存资源。
type Asset struct {
	ID        string    `json:"id"`
	Extension string    `json:"extension"`
	FilePath  string    `json:"-"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// FileName 返回对外暴露的文件名，即 /uploads/ 之后的部分。
func (a Asset) FileName() string {
	return a.ID + a.Extension
}

// ReadResult 组合 Asset 与正文 Reader，便于路由层直接流式返回。
type ReadResult struct {
	Asset  Asset
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示资源不存在或已被回收。
var ErrNotFound = errors.New("cache asset not found")
