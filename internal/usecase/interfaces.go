package usecase

import (
	"context"
	"time"

	"github.com/nguyentranbao-ct/campaign-chat/internal/repo/socket"
)

// Transport is the live campaign stream. *socket.Connection implements it;
// tests inject a fake that emits the same state and frame callbacks.
type Transport interface {
	Open(ctx context.Context, endpoint socket.Endpoint, credential string) error
	Send(frame []byte) error
	Reconnect() (time.Duration, error)
	Close() error
}

// TransportFactory builds a Transport bound to the session's callbacks.
type TransportFactory func(callbacks socket.Callbacks) Transport

func NewSocketTransportFactory(dialer socket.Dialer, opts socket.Options) TransportFactory {
	return func(callbacks socket.Callbacks) Transport {
		return socket.NewConnection(dialer, callbacks, opts)
	}
}
