package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/media-relay/media-relay/internal/apperr"
)

const testID = "0123456789abcdef0123456789abcdef"

func TestStorePutAndOpen(t *testing.T) {
	store, _ := newTestStore(t)

	payload := []byte("payload")
	asset, err := store.Put(context.Background(), testID, ".mp4", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	if asset.FileName() != testID+".mp4" {
		t.Fatalf("unexpected file name %s", asset.FileName())
	}
	if asset.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", asset.SizeBytes)
	}

	result, err := store.Open(context.Background(), asset.FileName())
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if drift := result.Asset.CreatedAt.Sub(asset.CreatedAt).Abs(); drift > time.Second {
		t.Fatalf("createdAt mismatch: expected %v got %v", asset.CreatedAt, result.Asset.CreatedAt)
	}
}

func TestStoreOpenMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Open(context.Background(), testID+".mp4")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreOpenRejectsMalformedNames(t *testing.T) {
	store, dir := newTestStore(t)
	if err := os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	for _, name := range []string{"secret.txt", "../etc/passwd", testID, testID + ".MP4", ""} {
		if _, err := store.Open(context.Background(), name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("name %q: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store, dir := newTestStore(t)
	if err := os.MkdirAll(filepath.Join(dir, testID+".mp4"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if _, err := store.Open(context.Background(), testID+".mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStorePutConflict(t *testing.T) {
	store, dir := newTestStore(t)
	if _, err := store.Put(context.Background(), testID, ".mp4", bytes.NewReader([]byte("first"))); err != nil {
		t.Fatalf("put error: %v", err)
	}

	_, err := store.Put(context.Background(), testID, ".mp4", bytes.NewReader([]byte("second")))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("重复 id 应返回 conflict，得到 %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, testID+".mp4"))
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("冲突写入不应覆盖已有资源，得到 %s", string(data))
	}
	assertNoPartials(t, dir)
}

func TestStorePutRejectsInvalidName(t *testing.T) {
	store, dir := newTestStore(t)
	_, err := store.Put(context.Background(), "../escape", ".mp4", bytes.NewReader([]byte("x")))
	if err == nil {
		t.Fatalf("非法 id 应返回错误")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("非法写入不应产生文件，得到 %d 个", len(entries))
	}
}

func TestStorePutCleansUpInterruptedStream(t *testing.T) {
	store, dir := newTestStore(t)

	sourceErr := apperr.Wrap(apperr.KindUpstream, "fetch", io.ErrUnexpectedEOF)
	reader := &flakyReader{payload: []byte("partial_data"), failAfter: 5, err: sourceErr}

	_, err := store.Put(context.Background(), testID, ".mp4", reader)
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("源读取失败应保留 upstream 标签，得到 %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, testID+".mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no final file, got err=%v", err)
	}
	assertNoPartials(t, dir)
}

func TestStorePutCleansUpOnCancel(t *testing.T) {
	store, dir := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	reader := &cancelingReader{cancel: cancel}

	_, err := store.Put(ctx, testID, ".webm", reader)
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("取消的写入应视为 upstream 失败，得到 %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, testID+".webm")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no final file, got err=%v", err)
	}
	assertNoPartials(t, dir)
}

func TestStorePutLocalWriteFailure(t *testing.T) {
	store, dir := newTestStore(t)
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod error: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	if f, err := os.CreateTemp(dir, "probe-*"); err == nil {
		// 以 root 运行时权限不生效，跳过。
		f.Close()
		os.Remove(f.Name())
		t.Skip("directory permissions not enforced for current user")
	}

	_, err := store.Put(context.Background(), testID, ".mp4", bytes.NewReader([]byte("x")))
	if !apperr.Is(err, apperr.KindIO) {
		t.Fatalf("本地写入失败应返回 storage_failed，得到 %v", err)
	}
}

func TestStoreSweepHonorsTTL(t *testing.T) {
	store, dir := newTestStore(t)
	fs := store.(*fileStore)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fs.now = func() time.Time { return base }
	old, err := store.Put(context.Background(), newID(), ".mp4", bytes.NewReader([]byte("old")))
	if err != nil {
		t.Fatalf("put old: %v", err)
	}
	fs.now = func() time.Time { return base.Add(2 * time.Minute) }
	fresh, err := store.Put(context.Background(), newID(), ".mp4", bytes.NewReader([]byte("fresh")))
	if err != nil {
		t.Fatalf("put fresh: %v", err)
	}

	ttl := 5 * time.Minute

	// 恰好等于 TTL 时不回收，比较是严格大于。
	count, err := store.Sweep(context.Background(), base.Add(ttl), ttl)
	if err != nil || count != 0 {
		t.Fatalf("expected nothing reclaimed at exact TTL, got count=%d err=%v", count, err)
	}

	count, err = store.Sweep(context.Background(), base.Add(ttl+time.Millisecond), ttl)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", count)
	}
	if _, err := os.Stat(old.FilePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("过期资源应被删除，err=%v", err)
	}
	if _, err := os.Stat(fresh.FilePath); err != nil {
		t.Fatalf("未过期资源应保留: %v", err)
	}

	// 非缓存文件与临时文件不参与回收。
	foreign := filepath.Join(dir, "README")
	if err := os.WriteFile(foreign, []byte("keep"), 0o600); err != nil {
		t.Fatalf("write foreign: %v", err)
	}
	if _, err := store.Sweep(context.Background(), base.Add(time.Hour), ttl); err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("非资源文件不应被删除: %v", err)
	}
}

func TestStoreOpenAfterReclaimIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	asset, err := store.Put(context.Background(), newID(), ".mp4", bytes.NewReader([]byte("clip")))
	if err != nil {
		t.Fatalf("put error: %v", err)
	}

	ttl := 300000 * time.Millisecond
	count, err := store.Sweep(context.Background(), asset.CreatedAt.Add(ttl+time.Millisecond), ttl)
	if err != nil || count != 1 {
		t.Fatalf("expected asset reclaimed, count=%d err=%v", count, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.Open(context.Background(), asset.FileName()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d: expected ErrNotFound, got %v", i, err)
		}
	}
	if err := store.Remove(context.Background(), asset.FileName()); err != nil {
		t.Fatalf("重复删除应视为成功: %v", err)
	}
}

func TestStoreConcurrentPutAndSweep(t *testing.T) {
	store, dir := newTestStore(t)
	ttl := time.Minute

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte(i)}, 4096)
			if _, err := store.Put(context.Background(), newID(), ".mp4", bytes.NewReader(payload)); err != nil {
				errs <- err
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := store.Sweep(context.Background(), time.Now().Add(2*ttl), ttl); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("并发 put/sweep 不应失败: %v", err)
	}

	if _, err := store.Sweep(context.Background(), time.Now().Add(2*ttl), ttl); err != nil {
		t.Fatalf("final sweep error: %v", err)
	}
	assets, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("expected all assets reclaimed, %d left", len(assets))
	}
	assertNoPartials(t, dir)
}

func TestStoreListOrdersByCreation(t *testing.T) {
	store, _ := newTestStore(t)
	fs := store.(*fileStore)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		fs.now = func() time.Time { return base.Add(time.Duration(-i) * time.Minute) }
		asset, err := store.Put(context.Background(), newID(), ".mp3", bytes.NewReader([]byte(fmt.Sprint(i))))
		if err != nil {
			t.Fatalf("put error: %v", err)
		}
		ids = append(ids, asset.ID)
	}

	assets, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(assets))
	}
	if assets[0].ID != ids[2] || assets[2].ID != ids[0] {
		t.Fatalf("list should be ordered oldest first")
	}
}

func TestNewStorePurgesPartials(t *testing.T) {
	dir := t.TempDir()
	leftover := filepath.Join(dir, partialPrefix+"123")
	if err := os.WriteFile(leftover, []byte("half"), 0o600); err != nil {
		t.Fatalf("write leftover: %v", err)
	}
	if _, err := NewStore(dir); err != nil {
		t.Fatalf("store init error: %v", err)
	}
	if _, err := os.Stat(leftover); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("启动时应清理遗留的临时文件, err=%v", err)
	}
}

func TestNewStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(""); err == nil {
		t.Fatalf("empty storage path should fail")
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) (Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, dir
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(dir, partialPrefix+"*"))
	if len(matches) != 0 {
		t.Fatalf("temporary files should be cleaned up, found %v", matches)
	}
}

type flakyReader struct {
	payload   []byte
	failAfter int
	readBytes int
	err       error
}

func (f *flakyReader) Read(p []byte) (int, error) {
	if f.readBytes >= f.failAfter {
		return 0, f.err
	}
	remaining := f.failAfter - f.readBytes
	if remaining > len(p) {
		remaining = len(p)
	}
	copy(p[:remaining], f.payload[f.readBytes:f.readBytes+remaining])
	f.readBytes += remaining
	return remaining, nil
}

// cancelingReader 在第一次读取后取消上下文，模拟客户端断开。
type cancelingReader struct {
	cancel context.CancelFunc
	reads  int
}

func (r *cancelingReader) Read(p []byte) (int, error) {
	r.reads++
	if r.reads == 1 {
		r.cancel()
		return copy(p, "chunk"), nil
	}
	return copy(p, "more"), nil
}
