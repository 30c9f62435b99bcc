package server

import (
	"context"
	"os/signal"
	"syscall"

	"nfpanel/nfp/api"
	"nfpanel/nfp/app"
	"nfpanel/nfp/common/logx"
)

func Run(cfgPath string) error {
	// 1) 日志
	ginF, gormF, infoF, errF := logx.MustInit()
	defer ginF.Close()
	defer gormF.Close()
	defer infoF.Close()
	defer errF.Close()
	info := logx.NewStdInfo(infoF)
	errL := logx.NewStdErr(errF)

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}

	if err := a.Start(); err != nil {
		return err
	}
	info.Println("[boot] started")

	// 2) Router
	r := api.New(a).Router()

	// 3) 构建单个服务器
	srv, useTLS := buildHTTPServer(a, r, errL)

	// 4) 打可访问 URL 提示
	printListenHints(srv.Addr, useTLS, info)

	// 5) 启动
	startMainAsync(srv, useTLS, errL)

	// 6) 等待退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	<-ctx.Done()
	stop()
	info.Println("[boot] stopping...")

	// 7) 优雅关闭
	shutdownAll(srv, a, errL)
	info.Println("[boot] bye")
	return nil
}
