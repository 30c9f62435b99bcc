package cmd

import (
	"fmt"
	"os"
	"strings"

	"nfpanel/nfp/common/logx"
	"nfpanel/nfp/server"
)

var cmd = logx.New(logx.WithPrefix("cmd"))

const (
	defaultConfig = "./config/config.yaml"
)

func Run() {
	// 无参数：直接启动服务
	if len(os.Args) == 1 {
		must(server.Run(defaultConfig))
		return
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		printHelp()
		return

	case "newpass", "np":
		if len(os.Args) < 3 || strings.TrimSpace(os.Args[2]) == "" {
			_, _ = fmt.Fprintln(os.Stderr, "Usage: nfpanel newpass <PASS>")
			os.Exit(2)
		}
		pass := os.Args[2]
		must(ResetAdmin(defaultConfig, pass))
		cmd.Infof("admin password updated.")

	case "purge", "pg":
		if len(os.Args) < 3 || strings.TrimSpace(os.Args[2]) == "" {
			_, _ = fmt.Fprintln(os.Stderr, "Usage: nfpanel purge <DAYS>")
			_, _ = fmt.Fprintln(os.Stderr, "  删除 DAYS 天之前的审计日志")
			os.Exit(2)
		}
		must(PurgeAudit(defaultConfig, os.Args[2]))
		cmd.Infof("purge done.")

	default:
		// 未知参数：按 server 启动（最简体验）
		must(server.Run(defaultConfig))
	}
}

func must(err error) {
	if err != nil {
		cmd.Errorf("%v", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`Usage:
  nfpanel                   # 启动服务
  nfpanel newpass <PASS>    # 重置管理员密码
  nfpanel purge <DAYS>      # 清理 DAYS 天前的审计日志

Examples:
  nfpanel
  nfpanel newpass S3cret!
  nfpanel purge 90`)
}
