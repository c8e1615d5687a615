package gossip

import (
	"context"
	"errors"
	"os"
	"time"
)

// SendConn sends datagrams to the gossip group.
type SendConn interface {
	Send(b []byte) error
	Close() error
}

// ReceiveConn receives the datagrams of the gossip group. ReadMessage
// fails with an error matching os.ErrDeadlineExceeded when the read
// deadline passes, and with net.ErrClosed after Close.
type ReceiveConn interface {
	ReadMessage(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Transport opens the connections of one gossip group.
type Transport interface {
	DialSender(ctx context.Context) (SendConn, error)
	ListenReceiver(ctx context.Context) (ReceiveConn, error)
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
