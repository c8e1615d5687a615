package main

import (
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVersion(t *testing.T) {
	assert.NoError(t, run([]string{"bfgossipd", "-version"}))
}

func TestRunInvalidConfig(t *testing.T) {
	err := run([]string{"bfgossipd", "-transport", "carrier-pigeon"})
	assert.ErrorContains(t, err, "error processing config")
}

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestRunStopsCleanlyOnSignal(t *testing.T) {
	support := freeAddress(t)

	done := make(chan error, 1)
	go func() {
		done <- run([]string{
			"bfgossipd",
			"-local-id", "1",
			"-group-id", "5",
			"-transport", "memberlist",
			"-memberlist-bind-address", "127.0.0.1",
			"-memberlist-bind-port", "0",
			"-support-listener", support,
			"-application-log-level", "ERROR",
		})
	}()

	// the support listener starts after the signal handler is registered
	require.Eventually(t, func() bool {
		rsp, err := http.Get("http://" + support + "/gdt")
		if err != nil {
			return false
		}

		rsp.Body.Close()
		return rsp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not stop")
	}
}
