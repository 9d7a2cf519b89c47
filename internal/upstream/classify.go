package upstream

import (
	"errors"
	"net"
	"syscall"

	"github.com/indexfs/indexfs/internal/fserr"
)

// classify 把传输层错误归入 fserr 分类：域名解析与建连失败视为后端不可达，
// 其余（读超时、连接中途断开等）视为 I/O 错误。
func classify(op, path string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fserr.New(fserr.KindUnreachable, op, path, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fserr.New(fserr.KindUnreachable, op, path, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return fserr.New(fserr.KindUnreachable, op, path, err)
	}

	return fserr.New(fserr.KindIO, op, path, err)
}
