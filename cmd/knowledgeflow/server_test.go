package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/internal/server"
)

func TestServerWaitForShutdownOnSignal(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Addr = ":0"
	cfg.ShutdownTimeout = 2 * time.Second
	manager := server.NewManager(nil, cfg, zap.NewNop())
	require.NoError(t, manager.Start())

	s := &Server{
		logger:      zap.NewNop(),
		httpManager: manager,
	}

	done := make(chan struct{})
	go func() {
		s.WaitForShutdown()
		close(done)
	}()

	// 等待信号监听就绪后向自身发送终止信号
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not return after SIGTERM")
	}
	assert.False(t, manager.IsRunning(), "server should be shut down after the signal")
}
