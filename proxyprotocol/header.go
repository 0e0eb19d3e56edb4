package proxyprotocol

import (
	"fmt"
	"io"
	"net"

	proxyproto "github.com/pires/go-proxyproto"
)

var (
	// localV1 is the text header for connections whose addresses are unknown.
	localV1 = []byte("PROXY UNKNOWN\r\n")

	// localV2 is the binary LOCAL header: signature, version 2 with the LOCAL
	// command, UNSPEC family and a zero address length.
	localV2 = append([]byte("\r\n\r\n\x00\r\nQUIT\n"), 0x20, 0x00, 0x00, 0x00)
)

// WriteHeader writes a PROXY protocol header describing a connection from
// source to destination.
//
// version must be 1 (text) or 2 (binary). If either address is not a TCP
// address, the header carries no addresses: "PROXY UNKNOWN" for version 1, a
// LOCAL header for version 2.
func WriteHeader(w io.Writer, version byte, source, destination net.Addr) error {
	if version != 1 && version != 2 {
		return fmt.Errorf("unsupported PROXY protocol version %d", version)
	}

	src, srcOK := source.(*net.TCPAddr)
	dst, dstOK := destination.(*net.TCPAddr)

	if !srcOK || !dstOK || src == nil || dst == nil {
		return writeLocal(w, version)
	}

	srcIP, dstIP := src.IP, dst.IP

	// both addresses must share a family
	proto := transportProtocol(src)
	if proto != transportProtocol(dst) {
		proto = proxyproto.TCPv6
		srcIP, dstIP = srcIP.To16(), dstIP.To16()
	}

	header := &proxyproto.Header{
		Version:            version,
		Command:            proxyproto.PROXY,
		TransportProtocol:  proto,
		SourceAddress:      srcIP,
		SourcePort:         uint16(src.Port),
		DestinationAddress: dstIP,
		DestinationPort:    uint16(dst.Port),
	}

	_, err := header.WriteTo(w)
	return err
}

// writeLocal writes an address-less header. The pinned go-proxyproto release
// omits the family and length fields of a binary LOCAL header, so both forms
// are written directly.
func writeLocal(w io.Writer, version byte) error {
	header := localV2
	if version == 1 {
		header = localV1
	}

	_, err := w.Write(header)
	return err
}
