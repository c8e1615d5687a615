//go:build !unix

package gossip

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error { return nil }
