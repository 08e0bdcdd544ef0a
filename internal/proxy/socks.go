package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

const DefaultTimeout = 120 * time.Second

// NewClient returns an http.Client routed through socksAddr, or a direct
// client when socksAddr is empty.
func NewClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if socksAddr == "" {
		return &http.Client{Timeout: timeout}, nil
	}
	return NewSocksClient(socksAddr, timeout)
}

func NewSocksClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
