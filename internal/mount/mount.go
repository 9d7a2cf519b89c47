package mount

import (
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
)

const fsName = "indexfs"

// Options 控制挂载行为。
type Options struct {
	// Source 显示在挂载表中，通常是 origin。
	Source     string
	AllowOther bool
	Debug      bool
	Logger     *logrus.Logger
}

// Mount 以只读方式把 handlers 挂载到 dir，内核的属性与目录项缓存时间等于 handlers 的 TTL。
func Mount(dir string, handlers Handlers, opts Options) (*fuse.Server, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat mount point: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mount point %s is not a directory", dir)
	}

	root := NewRoot(handlers, opts.Logger)
	server, err := fs.Mount(dir, root, mountOptions(handlers, opts))
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	return server, nil
}

func mountOptions(handlers Handlers, opts Options) *fs.Options {
	ttl := handlers.TTL()
	source := opts.Source
	if source == "" {
		source = fsName
	}
	return &fs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
			FsName:     source,
			Name:       fsName,
			Options:    []string{"ro"},
		},
		EntryTimeout: &ttl,
		AttrTimeout:  &ttl,
	}
}
