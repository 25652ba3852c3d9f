// Package dnswire builds and minimally parses DNS wire messages. It is used
// for bootstrap queries and synthetic health/test queries; bytes forwarded
// on the relay path are never routed through this package — they are
// relayed verbatim.
package dnswire

import (
	"errors"
	"net"

	"github.com/miekg/dns"

	"github.com/safing/sdfw/base/rng"
)

// ErrMalformedResponse is returned when a response cannot be parsed far
// enough to extract an RCODE and answer records.
var ErrMalformedResponse = errors.New("dnswire: malformed response")

// BuildQuery builds a standard recursive A or AAAA query for the given
// fully-qualified domain name.
func BuildQuery(fqdn string, qtype uint16) ([]byte, error) {
	id, err := rng.Number(0xffff)
	if err != nil {
		// Fall back to the library's own ID source; a query ID does not need
		// cryptographic strength, only low collision probability.
		id = uint64(dns.Id())
	}

	msg := new(dns.Msg)
	msg.Id = uint16(id)
	msg.RecursionDesired = true
	msg.Question = []dns.Question{{
		Name:   dns.Fqdn(fqdn),
		Qtype:  qtype,
		Qclass: dns.ClassINET,
	}}

	return msg.Pack()
}

// ParseAnswerIPs unpacks a response and returns its RCODE and any A/AAAA
// answer addresses. It is used to validate synthetic test queries and to
// harvest bootstrap IPs; it never mutates or re-serializes client traffic.
func ParseAnswerIPs(response []byte) (rcode int, ips []net.IP, err error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(response); err != nil {
		return 0, nil, errors.Join(ErrMalformedResponse, err)
	}

	ips = make([]net.IP, 0, len(msg.Answer))
	for _, rr := range msg.Answer {
		switch record := rr.(type) {
		case *dns.A:
			ips = append(ips, record.A)
		case *dns.AAAA:
			ips = append(ips, record.AAAA)
		}
	}

	return msg.Rcode, ips, nil
}

// IsSuccess reports whether the given RCODE indicates the query was
// answered without error (RCODE 0, NOERROR).
func IsSuccess(rcode int) bool {
	return rcode == dns.RcodeSuccess
}
