package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// readyFDEnv 告诉后台子进程挂载结果应写入哪个文件描述符。
	readyFDEnv = "INDEXFS_READY_FD"
	// ExtraFiles[0] 在子进程中固定为 3。
	readyFD      = 3
	readyTimeout = 2 * time.Minute

	readyOK    = "ok"
	readyError = "error "
)

var errChildVanished = errors.New("background process exited before reporting mount status")

// startDetached 以 --foreground 重新执行自身并脱离终端，等待子进程报告挂载结果后返回；
// 测试中可替换。
var startDetached = reexecDetached

func reexecDetached(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	readyR, readyW, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("create ready pipe: %w", err)
	}
	defer readyR.Close()

	cmd := exec.Command(exe, detachedArgs(args)...)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.ExtraFiles = []*os.File{readyW}
	cmd.Env = append(os.Environ(), readyFDEnv+"="+strconv.Itoa(readyFD))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	startErr := cmd.Start()
	// 父进程不保留写端，子进程退出时读端才能收到 EOF。
	_ = readyW.Close()
	if startErr != nil {
		return 0, fmt.Errorf("start background process: %w", startErr)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	_ = readyR.SetReadDeadline(time.Now().Add(readyTimeout))
	if err := waitReady(readyR); err != nil {
		return pid, err
	}
	return pid, nil
}

func detachedArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	out = append(out, "--foreground")
	return append(out, args...)
}

// waitReady 读取子进程的一行挂载报告。
func waitReady(r io.Reader) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	line = strings.TrimSuffix(line, "\n")
	switch {
	case line == readyOK:
		return nil
	case strings.HasPrefix(line, readyError):
		return errors.New(strings.TrimPrefix(line, readyError))
	case err != nil && !errors.Is(err, io.EOF):
		return fmt.Errorf("wait for background process: %w", err)
	default:
		return errChildVanished
	}
}

// reportReady 写出挂载结果，err 为 nil 表示挂载成功。
func reportReady(w io.Writer, err error) error {
	msg := readyOK
	if err != nil {
		msg = readyError + strings.ReplaceAll(err.Error(), "\n", " ")
	}
	_, werr := io.WriteString(w, msg+"\n")
	return werr
}

// readyNotifier 返回只生效一次的挂载结果回调；不是由后台化父进程启动时为空操作。
func readyNotifier() func(error) {
	raw := os.Getenv(readyFDEnv)
	if raw == "" {
		return func(error) {}
	}
	_ = os.Unsetenv(readyFDEnv)
	fd, err := strconv.Atoi(raw)
	if err != nil || fd < 0 {
		return func(error) {}
	}
	file := os.NewFile(uintptr(fd), "indexfs-ready")
	if file == nil {
		return func(error) {}
	}

	var once sync.Once
	return func(err error) {
		once.Do(func() {
			_ = reportReady(file, err)
			_ = file.Close()
		})
	}
}
