package udpm

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ParseURL parses the udpm:// surface this transport consumes its
// configuration from:
//
//	udpm://<multicast-ip>?port=<u16>&ttl=<u8>&recv_buf_size=<bytes>
//
// It returns the group address, the port, and any additional Options the
// query string carried, so the result can be passed straight to New:
//
//	ip, port, opts, err := udpm.ParseURL(raw)
//	t, err := udpm.New(ip, port, opts...)
//
// Unknown query keys are ignored. This is a thin adapter onto Config,
// not a general-purpose URL parser — URL parsing proper remains an
// external collaborator, per this transport's scope.
func ParseURL(raw string) (groupAddr net.IP, port uint16, opts []Option, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("udpm: parse url: %w", err)
	}
	if u.Scheme != "udpm" {
		return nil, 0, nil, fmt.Errorf("udpm: unsupported scheme %q", u.Scheme)
	}

	host := u.Host
	if host == "" {
		return nil, 0, nil, fmt.Errorf("udpm: missing multicast address in %q", raw)
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, 0, nil, fmt.Errorf("udpm: invalid multicast ipv4 address %q", host)
	}

	q := u.Query()

	if portStr := q.Get("port"); portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("udpm: invalid port %q: %w", portStr, err)
		}
		port = uint16(p)
	}

	if ttlStr := q.Get("ttl"); ttlStr != "" {
		ttl, err := strconv.ParseUint(ttlStr, 10, 8)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("udpm: invalid ttl %q: %w", ttlStr, err)
		}
		opts = append(opts, WithTTL(uint8(ttl)))
	}

	if rbufStr := q.Get("recv_buf_size"); rbufStr != "" {
		n, err := strconv.Atoi(rbufStr)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("udpm: invalid recv_buf_size %q: %w", rbufStr, err)
		}
		opts = append(opts, WithRecvBufSize(n))
	}

	return ip, port, opts, nil
}
