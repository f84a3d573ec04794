package udpm

import (
	"fmt"
	"net"
	"os"
	"time"
	"unsafe"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// openRecvSocket builds the receive-side raw socket: address/port reuse,
// kernel receive-timestamp capture, optional interface pinning, a bind to
// the group address and port, the multicast group join, and the
// requested SO_RCVBUF. The platform-specific pieces (SO_REUSEPORT,
// timestamp option, interface binding) live in socket_linux.go and
// socket_darwin.go; this function sequences them the same way on every
// platform this transport supports.
//
// The returned fd is wrapped in a *net.UDPConn via os.NewFile +
// net.FilePacketConn so the receiver can use the standard library's
// deadline machinery (SetReadDeadline) while still reaching the raw fd
// for Recvmsg through SyscallConn, the same trick the teacher's listen
// helpers use for plain reads.
func openRecvSocket(cfg *Config) (conn *net.UDPConn, grantedRcvBuf int, err error) {
	groupIP := cfg.GroupAddr.To4()
	if groupIP == nil {
		return nil, 0, fmt.Errorf("udpm: group address is not ipv4: %v", cfg.GroupAddr)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, 0, fmt.Errorf("udpm: open recv socket: %w", err)
	}
	closeOnErr := func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}
	defer closeOnErr()

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return nil, 0, fmt.Errorf("udpm: SO_REUSEADDR: %w", err)
	}
	if err = setReusePort(fd); err != nil {
		return nil, 0, fmt.Errorf("udpm: SO_REUSEPORT: %w", err)
	}

	if cfg.Timestamp {
		if err = enableTimestamping(fd); err != nil {
			return nil, 0, fmt.Errorf("udpm: enable receive timestamping: %w", err)
		}
	}

	if cfg.Iface != nil {
		if err = bindToInterface(fd, cfg.Iface); err != nil {
			return nil, 0, fmt.Errorf("udpm: bind to interface %s: %w", cfg.Iface.Name, err)
		}
	}

	if cfg.RecvBufSize > 0 {
		if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBufSize); err != nil {
			return nil, 0, fmt.Errorf("udpm: SO_RCVBUF: %w", err)
		}
	}
	grantedRcvBuf, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
	if err != nil {
		return nil, 0, fmt.Errorf("udpm: read back SO_RCVBUF: %w", err)
	}

	bindAddr := unix.SockaddrInet4{Port: int(cfg.Port)}
	copy(bindAddr.Addr[:], groupIP)
	if err = unix.Bind(fd, &bindAddr); err != nil {
		return nil, 0, fmt.Errorf("udpm: bind: %w", err)
	}

	file := os.NewFile(uintptr(fd), "")
	pc, convErr := net.FilePacketConn(file)
	_ = file.Close()
	if convErr != nil {
		err = convErr
		return nil, 0, fmt.Errorf("udpm: wrap recv socket: %w", err)
	}

	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		err = fmt.Errorf("udpm: unexpected packet conn type %T", pc)
		_ = pc.Close()
		return nil, 0, err
	}

	if err = joinMulticastGroup(udpConn, groupIP, cfg.Iface, cfg.SourceAddr); err != nil {
		_ = udpConn.Close()
		return nil, 0, fmt.Errorf("udpm: join multicast group: %w", err)
	}

	return udpConn, grantedRcvBuf, nil
}

// joinMulticastGroup joins the receive socket to the group, using
// golang.org/x/net/ipv4's membership calls rather than hand-rolled
// IP_ADD_MEMBERSHIP socket options. A non-nil src requests a
// source-specific join restricted to that one sender.
func joinMulticastGroup(conn *net.UDPConn, groupIP net.IP, iface *net.Interface, src net.IP) error {
	pc := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: groupIP}
	if src != nil {
		return pc.JoinSourceSpecificGroup(iface, group, &net.UDPAddr{IP: src})
	}
	return pc.JoinGroup(iface, group)
}

// parseRecvTimestamp scans a control-message buffer filled in by Recvmsg
// for an SCM_TIMESTAMP record and decodes it into a time.Time. It reports
// false if no timestamp control message is present, in which case the
// caller falls back to its own wall-clock read.
func parseRecvTimestamp(oob []byte) (time.Time, bool) {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return time.Time{}, false
	}
	for _, cmsg := range cmsgs {
		if cmsg.Header.Level != unix.SOL_SOCKET || cmsg.Header.Type != unix.SCM_TIMESTAMP {
			continue
		}
		if len(cmsg.Data) < int(unsafe.Sizeof(unix.Timeval{})) {
			continue
		}
		tv := *(*unix.Timeval)(unsafe.Pointer(&cmsg.Data[0]))
		return time.Unix(int64(tv.Sec), int64(tv.Usec)*1000), true
	}
	return time.Time{}, false
}

// probeSendable opens and immediately closes a UDP socket connected to
// the destination to catch a dead route or an unreachable multicast address
// at construction time rather than on the first Send.
func probeSendable(dest *net.UDPAddr) error {
	c, err := net.DialUDP("udp4", nil, dest)
	if err != nil {
		return fmt.Errorf("udpm: connectivity probe: %w", err)
	}
	return c.Close()
}
