package utils

import (
	"net"
	"net/http"
	"time"
)

// GlobalHTTPClient is the shared client for attachment downloads.
var GlobalHTTPClient = newHTTPClient()

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   4, // attachments all come from the same CDN
	}
	return &http.Client{
		Transport: transport,
		Timeout:   2 * time.Minute,
	}
}
