package proxyprotocol

import (
	"net"

	proxyproto "github.com/pires/go-proxyproto"
)

// addrFromHeader builds the net.Addr described by a PROXY header's address
// fields. Headers that carry no usable address (LOCAL or UNSPEC) yield nil.
func addrFromHeader(proto proxyproto.AddressFamilyAndProtocol, ip net.IP, port uint16) net.Addr {
	switch {
	case proto.IsUnspec() || ip == nil:
		return nil
	case proto.IsStream():
		return &net.TCPAddr{IP: ip, Port: int(port)}
	default:
		return &net.UDPAddr{IP: ip, Port: int(port)}
	}
}

// transportProtocol returns the PROXY header address family of a TCP address.
func transportProtocol(addr *net.TCPAddr) proxyproto.AddressFamilyAndProtocol {
	if addr.IP.To4() != nil {
		return proxyproto.TCPv4
	}
	return proxyproto.TCPv6
}
