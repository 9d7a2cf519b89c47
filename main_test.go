package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"strings"
	"testing"
)

func TestParseCLIFlagsPositionals(t *testing.T) {
	opts, err := parseCLIFlags([]string{"-v", "http://mirror.example.org/pub/", "/mnt/pub", "--foreground"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.origin != "http://mirror.example.org/pub/" || opts.mountPoint != "/mnt/pub" {
		t.Fatalf("位置参数解析错误: %+v", opts)
	}
	if !opts.verbose || !opts.foreground {
		t.Fatalf("标志应在位置参数前后都生效: %+v", opts)
	}
	if len(opts.args) != 4 {
		t.Fatalf("应保留原始参数，得到 %v", opts.args)
	}
}

func TestParseCLIFlagsMissingPositionals(t *testing.T) {
	for _, args := range [][]string{{}, {"http://mirror.example.org/"}, {"a", "b", "c"}} {
		if _, err := parseCLIFlags(args); !errors.Is(err, errUsage) {
			t.Fatalf("参数 %v 应返回 usage 错误，得到 %v", args, err)
		}
	}

	if _, err := parseCLIFlags([]string{"--version"}); err != nil {
		t.Fatalf("--version 不需要位置参数: %v", err)
	}
	if _, err := parseCLIFlags([]string{"--check-config", "--config", "/tmp/a.toml"}); err != nil {
		t.Fatalf("--check-config 可以只使用配置文件: %v", err)
	}
}

func TestParseCLIFlagsConfigPriority(t *testing.T) {
	t.Setenv("INDEXFS_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{"http://a/", "/mnt"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml", "http://a/", "/mnt"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsUnknownFlag(t *testing.T) {
	_, err := parseCLIFlags([]string{"--bogus", "http://a/", "/mnt"})
	if err == nil || errors.Is(err, errUsage) {
		t.Fatalf("未知标志应返回解析错误，得到 %v", err)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "加载配置失败") {
		t.Fatalf("应输出配置错误，得到 %s", stdErrBuffer().String())
	}
}

func TestRunPositionalsOverrideConfig(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{
		configPath: configFixture(t, "missing.toml"),
		checkOnly:  true,
		origin:     "https://mirror.example.org/pub/",
		mountPoint: t.TempDir(),
	})
	if code != 0 {
		t.Fatalf("位置参数应补全配置，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
}

func TestRunDaemonizesWithoutForeground(t *testing.T) {
	useBufferWriters(t)
	var got []string
	prev := startDetached
	startDetached = func(args []string) (int, error) {
		got = detachedArgs(args)
		return 4242, nil
	}
	t.Cleanup(func() { startDetached = prev })

	args := []string{"http://mirror.example.org/pub/", t.TempDir()}
	code := run(cliOptions{origin: args[0], mountPoint: args[1], args: args})
	if code != 0 {
		t.Fatalf("父进程应以 0 退出，得到 %d", code)
	}
	if len(got) != 3 || got[0] != "--foreground" || got[1] != args[0] {
		t.Fatalf("子进程参数应带 --foreground，得到 %v", got)
	}
}

func TestRunDaemonizeFailure(t *testing.T) {
	useBufferWriters(t)
	prev := startDetached
	startDetached = func(args []string) (int, error) { return 0, errors.New("boom") }
	t.Cleanup(func() { startDetached = prev })

	code := run(cliOptions{origin: "http://mirror.example.org/", mountPoint: t.TempDir()})
	if code != 1 {
		t.Fatalf("后台启动失败应返回 1，得到 %d", code)
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "indexfs") {
		t.Fatalf("version 输出应包含 indexfs 标识")
	}
}

func TestPrintUsage(t *testing.T) {
	useBufferWriters(t)
	printUsage(stdErr)
	if !strings.Contains(stdErrBuffer().String(), "<origin-url> <mountpoint>") {
		t.Fatalf("用法说明缺少位置参数")
	}
}

func TestRunReportsBackgroundMountFailure(t *testing.T) {
	useBufferWriters(t)
	prev := startDetached
	startDetached = func(args []string) (int, error) {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("创建管道失败: %v", err)
		}
		defer r.Close()
		// 模拟挂载失败的后台子进程。
		go func() {
			_ = reportReady(w, errors.New("mount: fusermount: permission denied"))
			_ = w.Close()
		}()
		return 4242, waitReady(r)
	}
	t.Cleanup(func() { startDetached = prev })

	code := run(cliOptions{origin: "http://mirror.example.org/", mountPoint: t.TempDir()})
	if code != 1 {
		t.Fatalf("子进程挂载失败时父进程应返回 1，得到 %d", code)
	}
	if !strings.Contains(stdErrBuffer().String(), "fusermount: permission denied") {
		t.Fatalf("应把子进程的挂载错误输出到终端，得到 %s", stdErrBuffer().String())
	}
}

func TestWaitReadyProtocol(t *testing.T) {
	var buf bytes.Buffer
	if err := reportReady(&buf, nil); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := waitReady(&buf); err != nil {
		t.Fatalf("挂载成功应返回 nil，得到 %v", err)
	}

	buf.Reset()
	_ = reportReady(&buf, errors.New("stat mount point:\nno such file"))
	err := waitReady(&buf)
	if err == nil || err.Error() != "stat mount point: no such file" {
		t.Fatalf("应原样返回子进程错误，得到 %v", err)
	}

	if err := waitReady(strings.NewReader("")); !errors.Is(err, errChildVanished) {
		t.Fatalf("子进程未报告就退出应返回 errChildVanished，得到 %v", err)
	}
}

func TestReadyNotifierWithoutParentIsNoop(t *testing.T) {
	t.Setenv(readyFDEnv, "")
	notify := readyNotifier()
	notify(nil)
	notify(errors.New("ignored"))
}

func TestParseErrorExitHelp(t *testing.T) {
	useBufferWriters(t)
	_, err := parseCLIFlags([]string{"--help"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("--help 应返回 flag.ErrHelp，得到 %v", err)
	}
	if code := parseErrorExit(err); code != 0 {
		t.Fatalf("--help 应以 0 退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "usage: indexfs") {
		t.Fatalf("--help 应输出用法到 stdout")
	}
	if stdErrBuffer().Len() != 0 {
		t.Fatalf("--help 不应输出错误: %s", stdErrBuffer().String())
	}
}

func TestParseErrorExitUsage(t *testing.T) {
	useBufferWriters(t)
	if code := parseErrorExit(errUsage); code != 2 {
		t.Fatalf("缺少位置参数应以 2 退出，得到 %d", code)
	}
	if strings.Contains(stdErrBuffer().String(), errUsage.Error()) {
		t.Fatalf("usage 错误只输出用法")
	}

	_, err := parseCLIFlags([]string{"--bogus"})
	if code := parseErrorExit(err); code != 2 {
		t.Fatalf("未知标志应以 2 退出，得到 %d", code)
	}
	if !strings.Contains(stdErrBuffer().String(), "bogus") {
		t.Fatalf("应输出解析错误，得到 %s", stdErrBuffer().String())
	}
}
