package interceptors

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

var clientIPKey = contextKey{"client_ip"}

// ClientIPResolver derives the client address of an RPC. Forwarding metadata (x-forwarded-for,
// x-real-ip) is honoured only when the transport peer is one of the trusted proxies; otherwise the
// peer address is the client.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver parses proxies, each a CIDR or a single address. No proxies means forwarding
// metadata is never trusted.
func NewClientIPResolver(proxies []string) (*ClientIPResolver, error) {
	r := &ClientIPResolver{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
			}
			r.trusted = append(r.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		addr = addr.Unmap()
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

func (r *ClientIPResolver) isTrusted(addr netip.Addr) bool {
	if r == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client IP for ctx, or "unknown".
func (r *ClientIPResolver) Resolve(ctx context.Context) string {
	peerHost, peerAddr := peerAddress(ctx)
	if !r.isTrusted(peerAddr) {
		return peerHost
	}
	md, _ := metadata.FromIncomingContext(ctx)
	// Walk x-forwarded-for from the nearest hop; the first address that is not one of our proxies
	// is the client.
	var hops []string
	for _, v := range md.Get("x-forwarded-for") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	var leftmost string
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		leftmost = addr.Unmap().String()
		if !r.isTrusted(addr) {
			return leftmost
		}
	}
	if leftmost != "" {
		return leftmost
	}
	if vals := md.Get("x-real-ip"); len(vals) > 0 {
		if addr, err := netip.ParseAddr(strings.TrimSpace(vals[0])); err == nil {
			return addr.Unmap().String()
		}
	}
	return peerHost
}

func peerAddress(ctx context.Context) (string, netip.Addr) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown", netip.Addr{}
	}
	host := p.Addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return host, netip.Addr{}
	}
	return addr.Unmap().String(), addr
}

// ClientIPUnary resolves the client IP once per RPC and stores it for ClientIP. A nil resolver
// trusts no proxies.
func ClientIPUnary(r *ClientIPResolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(context.WithValue(ctx, clientIPKey, r.Resolve(ctx)), req)
	}
}

// ClientIP returns the address stored by ClientIPUnary, or the transport peer when the interceptor
// did not run. Forwarding metadata is never read here.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	host, _ := peerAddress(ctx)
	return host
}
