package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"smartcs/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPServer_GracefulStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := NewHTTPServer(nil, nil, conf.ServerConfig{}, addr, log.NewStdLogger(os.Stdout))

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	// 等待服务器就绪
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 优雅停止：在途请求排空后 Start 以 ErrServerClosed 退出
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}
