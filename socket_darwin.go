package udpm

import (
	"net"

	"golang.org/x/sys/unix"
)

// setReusePort sets SO_REUSEPORT. BSD-derived kernels require this for a
// second process to bind the same multicast group and port; unlike the
// teacher's Darwin listener, which left this commented out, this
// transport needs concurrent listeners on one host to actually work.
func setReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// enableTimestamping requests kernel receive timestamps (SCM_TIMESTAMP).
// Darwin does not support the nanosecond SO_TIMESTAMPNS option Linux has,
// so this is the same call on both platforms.
func enableTimestamping(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1)
}

// bindToInterface pins the socket to iface via IP_BOUND_IF, Darwin's
// analog of Linux's SO_BINDTODEVICE.
func bindToInterface(fd int, iface *net.Interface) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_BOUND_IF, iface.Index)
}
