package smtptest

import (
	"context"
	"net"
)

// Resolver answers lookups from static tables. Unknown names yield a
// not-found DNS error.
type Resolver struct {
	Hosts map[string][]net.IP
	TXT   map[string][]string
}

func notFound(name string) error {
	return &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (r *Resolver) LookupIPAddr(ctx context.Context, name string) ([]net.IPAddr, error) {
	if ip := net.ParseIP(name); ip != nil {
		return []net.IPAddr{{IP: ip}}, nil
	}
	ips, ok := r.Hosts[name]
	if !ok {
		return nil, notFound(name)
	}
	retval := make([]net.IPAddr, len(ips))
	for i, ip := range ips {
		retval[i] = net.IPAddr{IP: ip}
	}
	return retval, nil
}

func (r *Resolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	txt, ok := r.TXT[name]
	if !ok {
		return nil, notFound(name)
	}
	return txt, nil
}

func (r *Resolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	return nil, notFound(name)
}

func (r *Resolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	return nil, notFound(addr)
}
