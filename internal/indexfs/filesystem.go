// Package indexfs 实现目录索引文件系统的三个操作：列目录、取属性、按区间读取。
// 列目录与取属性的结果（包括失败）按路径缓存到 TTL 过期为止。
package indexfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/indexfs/indexfs/internal/cache"
	"github.com/indexfs/indexfs/internal/fserr"
	"github.com/indexfs/indexfs/internal/listing"
	"github.com/indexfs/indexfs/internal/logging"
	"github.com/indexfs/indexfs/internal/metrics"
	"github.com/indexfs/indexfs/internal/upstream"
)

const (
	listCacheName = "list"
	attrCacheName = "attr"
)

// Options 配置 FileSystem。
type Options struct {
	Client   *upstream.Client
	TTL      time.Duration
	Coalesce bool
	Logger   *logrus.Logger
}

// FileSystem 持有 origin 客户端与两份按路径索引的缓存。
type FileSystem struct {
	client *upstream.Client
	ttl    time.Duration
	logger *logrus.Logger

	listings   *cache.Loader[[]listing.Entry]
	attributes *cache.Loader[Attributes]
}

// Stats 是缓存与连接池的快照。
type Stats struct {
	ListingEntries   int `json:"listing_entries"`
	AttributeEntries int `json:"attribute_entries"`
	Workers          int `json:"workers"`
	MaxWorkers       int `json:"max_workers"`
}

// New 构建 FileSystem。
func New(opts Options) (*FileSystem, error) {
	if opts.Client == nil {
		return nil, errors.New("indexfs: upstream client is required")
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("indexfs: cache ttl must be positive, got %s", opts.TTL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	fsys := &FileSystem{
		client: opts.Client,
		ttl:    opts.TTL,
		logger: logger,
	}
	fsys.listings = cache.NewLoader(cache.LoaderOptions{
		Name:     listCacheName,
		TTL:      opts.TTL,
		Coalesce: opts.Coalesce,
	}, fsys.loadListing)
	fsys.attributes = cache.NewLoader(cache.LoaderOptions{
		Name:     attrCacheName,
		TTL:      opts.TTL,
		Coalesce: opts.Coalesce,
	}, fsys.loadAttributes)
	return fsys, nil
}

// TTL 返回缓存有效期，挂载层用它设置内核缓存超时。
func (f *FileSystem) TTL() time.Duration {
	return f.ttl
}

// ListDirectory 返回 path 下的条目名称，不含上级目录。
func (f *FileSystem) ListDirectory(ctx context.Context, path string) ([]string, error) {
	entries, err := f.DirEntries(ctx, path)
	if err != nil {
		return nil, err
	}
	return listing.Names(entries), nil
}

// DirEntries 与 ListDirectory 共用缓存，额外给出条目是否为目录。返回副本，调用方可随意修改。
func (f *FileSystem) DirEntries(ctx context.Context, path string) ([]listing.Entry, error) {
	entries, err := f.listings.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return slices.Clone(entries), nil
}

// GetAttributes 返回 path 的属性。
func (f *FileSystem) GetAttributes(ctx context.Context, path string) (Attributes, error) {
	return f.attributes.Get(ctx, path)
}

// ReadRange 读取 path 中从 offset 开始的至多 size 字节，结果不缓存。
// 重定向到目录时返回 is-a-directory。
func (f *FileSystem) ReadRange(ctx context.Context, path string, size int, offset int64) ([]byte, error) {
	if size <= 0 {
		return []byte{}, nil
	}
	if offset < 0 {
		return nil, fserr.New(fserr.KindIO, http.MethodGet, path, fmt.Errorf("negative offset %d", offset))
	}

	header := http.Header{}
	header.Set("Range", RangeHeader(offset, size))

	resolved, resp, err := f.client.Do(ctx, http.MethodGet, path, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if strings.HasSuffix(resolved, "/") {
		return nil, fserr.New(fserr.KindIsDir, http.MethodGet, path, nil)
	}

	body := io.Reader(resp.Body)
	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		// 偏移越过文件末尾。
		return []byte{}, nil
	case http.StatusOK:
		// origin 忽略了 Range，自行跳过前 offset 字节。
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			if errors.Is(err, io.EOF) {
				return []byte{}, nil
			}
			return nil, fserr.New(fserr.KindIO, http.MethodGet, path, err)
		}
	}

	data, err := io.ReadAll(io.LimitReader(body, int64(size)))
	if err != nil {
		return nil, fserr.New(fserr.KindIO, http.MethodGet, path, err)
	}
	metrics.RecordReadBytes(len(data))
	f.logger.WithFields(logging.OpFields("read", path)).
		WithFields(logrus.Fields{"offset": offset, "size": size, "bytes": len(data)}).
		Debug("read_range")
	return data, nil
}

// RangeHeader 构造闭区间 Range 头，例如 offset=20,size=10 得到 "bytes=20-29"。
func RangeHeader(offset int64, size int) string {
	return fmt.Sprintf("bytes=%d-%d", offset, offset+int64(size)-1)
}

// Stats 返回当前未过期的缓存条目数与 worker 数量。
func (f *FileSystem) Stats() Stats {
	pool := f.client.Pool()
	return Stats{
		ListingEntries:   f.listings.Entries().Len(),
		AttributeEntries: f.attributes.Entries().Len(),
		Workers:          pool.Size(),
		MaxWorkers:       pool.Capacity(),
	}
}

// Purge 清除两份缓存中已过期的条目，返回清除数量。
func (f *FileSystem) Purge() int {
	return f.listings.Entries().Purge() + f.attributes.Entries().Purge()
}

func (f *FileSystem) loadListing(ctx context.Context, path string) ([]listing.Entry, error) {
	_, resp, err := f.client.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		f.logFailure("list", path, err)
		return nil, err
	}
	defer resp.Body.Close()

	entries, err := listing.Parse(resp.Body)
	if err != nil {
		err = fserr.New(fserr.KindIO, http.MethodGet, path, err)
		f.logFailure("list", path, err)
		return nil, err
	}
	f.logger.WithFields(logging.OpFields("list", path)).
		WithField("entries", len(entries)).
		Debug("listing_loaded")
	return entries, nil
}

func (f *FileSystem) loadAttributes(ctx context.Context, path string) (Attributes, error) {
	resolved, resp, err := f.client.Do(ctx, http.MethodHead, path, nil)
	if err != nil {
		f.logFailure("getattr", path, err)
		return Attributes{}, err
	}
	defer resp.Body.Close()
	return attributesFrom(resolved, resp.Header), nil
}

func (f *FileSystem) logFailure(op, path string, err error) {
	f.logger.WithFields(logging.OpFields(op, path)).
		WithField("kind", string(fserr.KindOf(err))).
		WithError(err).
		Debug("operation_failed")
}
