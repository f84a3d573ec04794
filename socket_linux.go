package udpm

import (
	"net"

	"golang.org/x/sys/unix"
)

// setReusePort sets SO_REUSEPORT so multiple transports can bind the same
// multicast group and port on the same host, letting the kernel fan
// datagrams out across them.
func setReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// enableTimestamping requests kernel receive timestamps (SCM_TIMESTAMP)
// on every datagram. The transport uses the microsecond-resolution form
// uniformly across platforms rather than the Linux-only nanosecond
// variant, trading a little precision for one cmsg-parsing path shared
// with Darwin.
func enableTimestamping(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1)
}

// bindToInterface pins the socket to iface via SO_BINDTODEVICE.
func bindToInterface(fd int, iface *net.Interface) error {
	return unix.BindToDevice(fd, iface.Name)
}
