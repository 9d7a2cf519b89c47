package indexfs

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DirMode 目录只读可进入。
	DirMode = os.ModeDir | 0o550
	// FileMode 普通文件只读。
	FileMode os.FileMode = 0o440

	defaultOwner = 1000
)

// Attributes 是 stat 结果，只由响应头与解析后的远端路径推导，不看正文。
type Attributes struct {
	IsDir bool
	Mode  os.FileMode
	// HasSize 为 false 表示响应没有 Content-Length，Size 无意义。
	Size    int64
	HasSize bool
	ModTime time.Time
	ATime   time.Time
	CTime   time.Time
	UID     uint32
	GID     uint32
	Nlink   uint32
}

func attributesFrom(resolved string, header http.Header) Attributes {
	attrs := Attributes{
		Mode:  FileMode,
		UID:   defaultOwner,
		GID:   defaultOwner,
		Nlink: 1,
	}
	if strings.HasSuffix(resolved, "/") {
		attrs.IsDir = true
		attrs.Mode = DirMode
	}

	if raw := header.Get("Date"); raw != "" {
		if ts, err := http.ParseTime(raw); err == nil {
			attrs.ModTime = ts
			attrs.ATime = ts
			attrs.CTime = ts
		}
	}
	if raw := header.Get("Content-Length"); raw != "" {
		if size, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && size >= 0 {
			attrs.Size = size
			attrs.HasSize = true
		}
	}
	return attrs
}
