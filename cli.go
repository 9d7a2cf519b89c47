package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const usageText = `usage: indexfs [flags] <origin-url> <mountpoint>

flags:
  -f, --foreground     stay attached to the terminal
  -v, --verbose        enable debug logging
  -h, --help           print this help and exit
      --config FILE    optional TOML config (INDEXFS_CONFIG)
      --check-config   validate configuration and exit
      --version        print version and exit
`

// errUsage 表示参数不完整，调用方打印用法并以 2 退出。
var errUsage = errors.New("missing origin-url or mountpoint")

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	verbose     bool
	foreground  bool
	origin      string
	mountPoint  string
	// args 是原始参数，后台化时原样传给子进程。
	args []string
}

// parseCLIFlags 解析标志与两个位置参数，标志可以出现在位置参数前后。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("indexfs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	fs.StringVar(&opts.configPath, "config", "", "配置文件路径（可被 INDEXFS_CONFIG 覆盖）")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	fs.BoolVar(&opts.verbose, "verbose", false, "输出 debug 日志")
	fs.BoolVar(&opts.verbose, "v", false, "输出 debug 日志")
	fs.BoolVar(&opts.foreground, "foreground", false, "前台运行")
	fs.BoolVar(&opts.foreground, "f", false, "前台运行")

	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	if opts.configPath == "" {
		opts.configPath = os.Getenv("INDEXFS_CONFIG")
	}
	opts.args = append([]string(nil), args...)

	if opts.showVersion {
		return opts, nil
	}
	switch len(positional) {
	case 2:
		opts.origin, opts.mountPoint = positional[0], positional[1]
	case 0:
		// --check-config 可以只校验配置文件中的 Origin/MountPoint。
		if !opts.checkOnly {
			return cliOptions{}, errUsage
		}
	default:
		return cliOptions{}, errUsage
	}
	return opts, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// parseErrorExit 输出解析错误与用法并返回退出码；-h/--help 输出用法后以 0 退出。
func parseErrorExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		printUsage(stdOut)
		return 0
	}
	if !errors.Is(err, errUsage) {
		fmt.Fprintln(stdErr, err.Error())
	}
	printUsage(stdErr)
	return 2
}
