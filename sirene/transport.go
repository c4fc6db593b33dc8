package sirene

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ProxyConfig holds one proxy per request scheme.
type ProxyConfig struct {
	HTTP  string
	HTTPS string
}

// NewHTTPClient returns the client shared by the token and search calls.
func NewHTTPClient(proxy ProxyConfig) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		DisableKeepAlives:   false,
		MaxIdleConnsPerHost: 2,
	}

	if proxy.HTTP != "" || proxy.HTTPS != "" {
		proxyFunc, err := proxyByScheme(proxy)
		if err != nil {
			return nil, err
		}

		transport.Proxy = proxyFunc
	}

	return &http.Client{
		Timeout:   2 * time.Minute,
		Transport: transport,
	}, nil
}

func proxyByScheme(proxy ProxyConfig) (func(*http.Request) (*url.URL, error), error) {
	parse := func(raw string) (*url.URL, error) {
		if raw == "" {
			return nil, nil
		}

		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", raw, err)
		}

		return u, nil
	}

	httpProxy, err := parse(proxy.HTTP)
	if err != nil {
		return nil, err
	}

	httpsProxy, err := parse(proxy.HTTPS)
	if err != nil {
		return nil, err
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" {
			return httpsProxy, nil
		}

		return httpProxy, nil
	}, nil
}
