// Package ipxmit supplies the default implementations of
// transport.AFSpecific.Xmit and transport.AFSpecific.ECNCapable: writing a
// built envelope straight to the route's net.Conn, and marking the
// underlying socket ECN-capable via a raw setsockopt call. Route capability
// detection (GSO, checksum offload) lives here too, grounded on the same
// raw-fd-plus-x/sys/unix pattern the rest of this hand-off uses.
package ipxmit

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"

	protoerr "github.com/alxayo/sctp-sender/internal/errors"
	"github.com/alxayo/sctp-sender/internal/logger"
	"github.com/alxayo/sctp-sender/internal/sctp/transport"
)

// ectECT0 is the ECN field value (ECT(0), RFC 3168 §5) this builder sets on
// outbound packets once an association has negotiated ECN.
const ectECT0 = 0x02

// defaultGSOMaxSize is the superframe ceiling used once GSO is detected
// available; it matches UDP_MAX_SEGMENTS * path MTU headroom under the
// usual 65507-byte UDP payload ceiling.
const defaultGSOMaxSize = 65507

const defaultMaxGSOSegments = 64

// Xmit is the default transport.AFSpecific.Xmit implementation: it writes
// the built envelope directly to the route's net.Conn. A nil or disconnected
// route is reported as a serialize error rather than a panic.
func Xmit(envelope []byte, t *transport.Transport) (int, error) {
	route := t.Route()
	if route == nil || route.Conn == nil {
		return 0, protoerr.NewSerializeError("ipxmit.xmit", fmt.Errorf("transport %s has no connected route", t.ID))
	}
	n, err := route.Conn.Write(envelope)
	if err != nil {
		return n, protoerr.NewSerializeError("ipxmit.xmit", err)
	}
	return n, nil
}

// ECNCapable sets IP_TOS's ECN field to ECT(0) on the route's underlying
// socket, so the network can CE-mark the packet under congestion instead of
// dropping it. A socket that won't take the option still sends, it just
// forgoes ECN, so failures are logged rather than propagated.
func ECNCapable(t *transport.Transport) {
	route := t.Route()
	if route == nil || route.Conn == nil {
		return
	}
	fd, err := fdOf(route.Conn)
	if err != nil {
		logger.WithTransport(logger.Logger(), t.ID, "").Warn("ipxmit: could not obtain fd for ecn marking", "error", err.Error())
		return
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, ectECT0); err != nil {
		logger.WithTransport(logger.Logger(), t.ID, "").Warn("ipxmit: setsockopt IP_TOS failed", "error", err.Error())
	}
}

// SetPacingRate caps the socket's send pacing rate (bytes/sec) via
// SO_MAX_PACING_RATE, letting the kernel's fq qdisc spread a GSO superframe
// across the wire instead of bursting it out in one scheduling slot.
func SetPacingRate(t *transport.Transport, bytesPerSecond uint32) error {
	route := t.Route()
	if route == nil || route.Conn == nil {
		return protoerr.NewSerializeError("ipxmit.set_pacing_rate", fmt.Errorf("transport %s has no connected route", t.ID))
	}
	fd, err := fdOf(route.Conn)
	if err != nil {
		return protoerr.NewSerializeError("ipxmit.set_pacing_rate", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MAX_PACING_RATE, int(bytesPerSecond)); err != nil {
		return protoerr.NewSerializeError("ipxmit.set_pacing_rate", err)
	}
	return nil
}

// PacingRate reads back the socket's current SO_MAX_PACING_RATE, mostly
// useful for tests and diagnostics confirming SetPacingRate took effect.
func PacingRate(t *transport.Transport) (int, error) {
	route := t.Route()
	if route == nil || route.Conn == nil {
		return 0, protoerr.NewSerializeError("ipxmit.pacing_rate", fmt.Errorf("transport %s has no connected route", t.ID))
	}
	fd, err := fdOf(route.Conn)
	if err != nil {
		return 0, protoerr.NewSerializeError("ipxmit.pacing_rate", err)
	}
	rate, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MAX_PACING_RATE)
	if err != nil {
		return 0, protoerr.NewSerializeError("ipxmit.pacing_rate", err)
	}
	return rate, nil
}

// DetectRoute probes conn for the capabilities admission and transmission
// care about: GSO support (gated on a kernel new enough to carry UDP
// segmentation offload) and checksum offload (left for the caller to
// confirm via a real device query; this only sets the conservative
// defaults a freshly dialed route starts with). Detection failures fall
// back to the conservative GSO-disabled, software-checksum Route.
func DetectRoute(conn net.Conn) *transport.Route {
	route := &transport.Route{Conn: conn}
	major, minor, err := kernelVersion()
	if err != nil {
		logger.Logger().Debug("ipxmit: kernel version probe failed, defaulting to no gso", "error", err.Error())
		return route
	}
	if major > 4 || (major == 4 && minor >= 18) {
		route.GSOCapable = true
		route.GSOMaxSize = defaultGSOMaxSize
		route.MaxGSOSegments = defaultMaxGSOSegments
	}
	return route
}

// fdOf extracts the raw file descriptor backing conn via netfd, recovering
// from the panic netfd raises on a conn type it doesn't know how to unwrap
// (e.g. the net.Pipe conns used in tests have no backing fd at all).
func fdOf(conn net.Conn) (fd int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("netfd: %v", r)
		}
	}()
	fd = netfd.GetFdFromConn(conn)
	if fd < 0 {
		return fd, fmt.Errorf("netfd returned invalid descriptor %d", fd)
	}
	return fd, nil
}

// kernelVersion parses uname(2)'s release string ("6.18.5-...") into a
// (major, minor) pair, the same unix.Uname-plus-ByteSliceToString pattern
// kernel capability probes use to gate feature availability.
func kernelVersion() (major, minor int, err error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return 0, 0, err
	}
	release := unix.ByteSliceToString(uts.Release[:])
	if _, err := fmt.Sscanf(release, "%d.%d", &major, &minor); err != nil {
		return 0, 0, fmt.Errorf("parsing kernel release %q: %w", release, err)
	}
	return major, minor, nil
}
