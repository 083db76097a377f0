package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/media-relay/media-relay/internal/apperr"
)

const partialPrefix = ".partial-"

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
// 启动时会清理上次进程遗留的临时文件。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	if err := purgePartials(abs); err != nil {
		return nil, fmt.Errorf("purge partial files: %w", err)
	}

	return &fileStore{
		basePath: abs,
		now:      time.Now,
	}, nil
}

// fileStore 不持有任何锁：id 由 Allocate 保证唯一，发布依赖 os.Link 的原子性，
// 删除对 not-found 容忍，因此 Put 与 Sweep 之间无需互斥。
type fileStore struct {
	basePath string
	now      func() time.Time
}

func (s *fileStore) Put(ctx context.Context, id, ext string, body io.Reader) (*Asset, error) {
	name := id + ext
	if _, _, ok := splitName(name); !ok {
		return nil, apperr.New(apperr.KindInternal, "store", fmt.Sprintf("invalid asset name %q", name))
	}
	finalPath := filepath.Join(s.basePath, name)

	if _, err := os.Lstat(finalPath); err == nil {
		return nil, conflictError(name)
	}

	tempFile, err := os.CreateTemp(s.basePath, partialPrefix+"*")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "store", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "fetch", ctxErr)
		}
		return nil, apperr.Wrap(apperr.KindIO, "store", err)
	}

	createdAt := s.now().UTC()
	if err := os.Chtimes(tempName, createdAt, createdAt); err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "store", err)
	}

	// Link 在目标已存在时失败，从而在不加锁的前提下检测 id 冲突。
	if err := os.Link(tempName, finalPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, conflictError(name)
		}
		return nil, apperr.Wrap(apperr.KindIO, "store", err)
	}

	return &Asset{
		ID:        id,
		Extension: ext,
		FilePath:  finalPath,
		SizeBytes: written,
		CreatedAt: createdAt,
	}, nil
}

func (s *fileStore) Open(ctx context.Context, name string) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	id, ext, ok := splitName(name)
	if !ok {
		return nil, ErrNotFound
	}
	filePath := filepath.Join(s.basePath, name)

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	return &ReadResult{
		Asset: Asset{
			ID:        id,
			Extension: ext,
			FilePath:  filePath,
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		},
		Reader: f,
	}, nil
}

func (s *fileStore) Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindIO, "sweep", err)
	}

	reclaimed := 0
	var failures []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		if entry.IsDir() {
			continue
		}
		if _, _, ok := splitName(entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				failures = append(failures, fmt.Errorf("stat %s: %w", entry.Name(), err))
			}
			continue
		}
		if !expired(info.ModTime(), now, ttl) {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, entry.Name())); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				failures = append(failures, fmt.Errorf("remove %s: %w", entry.Name(), err))
			}
			continue
		}
		reclaimed++
	}
	return reclaimed, errors.Join(failures...)
}

func (s *fileStore) Remove(ctx context.Context, name string) error {
	if _, _, ok := splitName(name); !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(s.basePath, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.Wrap(apperr.KindIO, "remove", err)
	}
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]Asset, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	assets := make([]Asset, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ext, ok := splitName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		assets = append(assets, Asset{
			ID:        id,
			Extension: ext,
			FilePath:  filepath.Join(s.basePath, entry.Name()),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	sort.Slice(assets, func(i, j int) bool {
		return assets[i].CreatedAt.Before(assets[j].CreatedAt)
	})
	return assets, nil
}

func conflictError(name string) error {
	return apperr.New(apperr.KindConflict, "store", fmt.Sprintf("asset %s already exists", name))
}

func purgePartials(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), partialPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
