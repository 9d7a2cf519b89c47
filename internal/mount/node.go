// Package mount 把 indexfs 的操作接到内核 FUSE 请求上。
package mount

import (
	"context"
	"os"
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/indexfs/indexfs/internal/fserr"
	"github.com/indexfs/indexfs/internal/indexfs"
	"github.com/indexfs/indexfs/internal/listing"
	"github.com/indexfs/indexfs/internal/logging"
)

// Handlers 是挂载层依赖的文件系统操作，由 *indexfs.FileSystem 实现。
type Handlers interface {
	GetAttributes(ctx context.Context, path string) (indexfs.Attributes, error)
	DirEntries(ctx context.Context, path string) ([]listing.Entry, error)
	ReadRange(ctx context.Context, path string, size int, offset int64) ([]byte, error)
	TTL() time.Duration
}

// Node 对应一个远端路径，内核的每次请求都转成对 Handlers 的调用。
type Node struct {
	fs.Inode

	handlers Handlers
	path     string
	logger   *logrus.Logger
}

var (
	_ fs.InodeEmbedder = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
)

// NewRoot 返回代表 origin 根目录的节点。
func NewRoot(handlers Handlers, logger *logrus.Logger) *Node {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Node{handlers: handlers, path: "/", logger: logger}
}

// Path 返回节点对应的远端路径。
func (n *Node) Path() string {
	return n.path
}

func (n *Node) child(name string) *Node {
	return &Node{
		handlers: n.handlers,
		path:     path.Join(n.path, name),
		logger:   n.logger,
	}
}

func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attrs, err := n.handlers.GetAttributes(ctx, n.path)
	if err != nil {
		return n.fail("getattr", err)
	}
	fillAttr(&out.Attr, attrs)
	out.SetTimeout(n.handlers.TTL())
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.child(name)
	attrs, err := n.handlers.GetAttributes(ctx, child.path)
	if err != nil {
		return nil, child.fail("lookup", err)
	}
	fillAttr(&out.Attr, attrs)
	ttl := n.handlers.TTL()
	out.SetEntryTimeout(ttl)
	out.SetAttrTimeout(ttl)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: out.Attr.Mode & syscall.S_IFMT}), 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.handlers.DirEntries(ctx, n.path)
	if err != nil {
		return nil, n.fail("readdir", err)
	}
	return fs.NewListDirStream(dirEntries(entries)), 0
}

// Open 只允许只读打开；不设置 FOPEN_KEEP_CACHE，每次打开都丢弃页缓存。
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_ACCMODE != syscall.O_RDONLY || flags&syscall.O_TRUNC != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, 0, 0
}

func (n *Node) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.handlers.ReadRange(ctx, n.path, len(dest), off)
	if err != nil {
		return nil, n.fail("read", err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *Node) fail(op string, err error) syscall.Errno {
	errno := fserr.Errno(err)
	n.logger.WithFields(logging.OpFields(op, n.path)).
		WithField("errno", errno.Error()).
		WithError(err).
		Debug("fuse_op_failed")
	return errno
}

// fillAttr 把 Attributes 转成内核属性。
func fillAttr(out *fuse.Attr, attrs indexfs.Attributes) {
	out.Mode = unixMode(attrs.Mode)
	out.Nlink = attrs.Nlink
	out.Uid = attrs.UID
	out.Gid = attrs.GID
	if attrs.HasSize {
		out.Size = uint64(attrs.Size)
		out.Blocks = (out.Size + 511) / 512
	}
	if !attrs.ModTime.IsZero() {
		atime, mtime, ctime := attrs.ATime, attrs.ModTime, attrs.CTime
		out.SetTimes(&atime, &mtime, &ctime)
	}
}

func unixMode(mode os.FileMode) uint32 {
	perm := uint32(mode.Perm())
	if mode.IsDir() {
		return syscall.S_IFDIR | perm
	}
	return syscall.S_IFREG | perm
}

func dirEntries(entries []listing.Entry) []fuse.DirEntry {
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		mode := uint32(syscall.S_IFREG)
		if entry.IsDir {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: entry.Name, Mode: mode})
	}
	return out
}
