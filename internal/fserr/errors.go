// Package fserr 定义文件系统操作对外暴露的错误分类，以及分类到 errno 的固定映射。
package fserr

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind 标识一次失败属于哪一类文件系统错误。
type Kind string

const (
	KindNotFound    Kind = "not-found"
	KindUnreachable Kind = "backend-unreachable"
	KindIsDir       Kind = "is-a-directory"
	KindIO          Kind = "io"
)

// 哨兵错误，配合 errors.Is 判断分类。
var (
	ErrNotFound    = errors.New("remote path not found")
	ErrUnreachable = errors.New("backend unreachable")
	ErrIsDir       = errors.New("is a directory")
	ErrIO          = errors.New("remote i/o error")
)

// Error 携带操作、远端路径与底层原因，Kind 决定最终返回给内核的 errno。
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New 创建指定分类的错误，cause 可以为空。
func New(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrNotFound) 等判断按 Kind 生效。
func (e *Error) Is(target error) bool {
	return sentinel(e.Kind) == target
}

func sentinel(kind Kind) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindUnreachable:
		return ErrUnreachable
	case KindIsDir:
		return ErrIsDir
	case KindIO:
		return ErrIO
	default:
		return nil
	}
}

// KindOf 返回 err 链上第一个 *Error 的分类；非分类错误返回 KindIO。
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindIO
}

// Errno 把错误映射为内核可见的 errno，映射表固定且一一对应。
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindNotFound:
		return syscall.ENOENT
	case KindUnreachable:
		return syscall.ECONNREFUSED
	case KindIsDir:
		return syscall.EISDIR
	default:
		return syscall.EIO
	}
}
