// Package tor provides optional SOCKS5 egress for the fetch client.
//
// Some broker sites geo-block or rate-limit by source address. The crawl can
// be routed through any SOCKS5 proxy (--proxy host:port) or through an
// embedded Tor daemon started with tornago (--tor).
//
//	p, err := tor.NewProxy("127.0.0.1:9050")
//	if err != nil { ... }
//	if err := p.Check(ctx).Error(); err != nil { ... }
//	client := fetch.New(fetch.WithTransport(p.Transport()))
//
// Broker sites are still reached over TLS with normal certificate
// verification when the traffic leaves through a Tor exit.
package tor
