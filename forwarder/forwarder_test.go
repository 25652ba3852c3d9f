package forwarder

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/sdfw/dnswire"
	"github.com/safing/sdfw/model"
	"github.com/safing/sdfw/service/mgr"
)

// echoTransport answers every query with a single fixed A record, without
// touching the network, so forwarder tests exercise only the listener and
// framing logic.
type echoTransport struct {
	answerIP string
	calls    int
}

func (e *echoTransport) Query(_ context.Context, _ *model.Provider, queryBytes []byte) ([]byte, error) {
	e.calls++

	query := new(dns.Msg)
	if err := query.Unpack(queryBytes); err != nil {
		return nil, err
	}
	reply := new(dns.Msg)
	reply.SetReply(query)
	if len(query.Question) > 0 {
		rr, _ := dns.NewRR(query.Question[0].Name + " 60 IN A " + e.answerIP)
		reply.Answer = append(reply.Answer, rr)
	}
	return reply.Pack()
}

func testProvider() *model.Provider {
	return &model.Provider{
		ID:        uuid.Must(uuid.NewV4()),
		Name:      "test-provider",
		Type:      model.ProviderStandard,
		PrimaryV4: "198.51.100.1",
	}
}

func TestForwarderRelaysUDPQuery(t *testing.T) {
	transport := &echoTransport{answerIP: "203.0.113.7"}
	fwd := New(transport, "15353")
	fwd.SetActiveProvider(testProvider())

	m := mgr.New("forwarder-udp-test")
	require.NoError(t, fwd.Start(m))
	defer fwd.Stop(m) //nolint:errcheck

	query, err := dnswire.BuildQuery("example.com.", dns.TypeA)
	require.NoError(t, err)

	conn, err := net.Dial("udp", "127.0.0.1:15353")
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	_, err = conn.Write(query)
	require.NoError(t, err)

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	rcode, ips, err := dnswire.ParseAnswerIPs(buf[:n])
	require.NoError(t, err)
	assert.True(t, dnswire.IsSuccess(rcode))
	require.Len(t, ips, 1)
	assert.Equal(t, "203.0.113.7", ips[0].String())
	assert.Equal(t, uint64(1), fwd.QueriesHandled())
}

func TestForwarderRelaysTCPQuery(t *testing.T) {
	transport := &echoTransport{answerIP: "203.0.113.8"}
	fwd := New(transport, "15355")
	fwd.SetActiveProvider(testProvider())

	m := mgr.New("forwarder-tcp-test")
	require.NoError(t, fwd.Start(m))
	defer fwd.Stop(m) //nolint:errcheck

	query, err := dnswire.BuildQuery("example.org.", dns.TypeA)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", "127.0.0.1:15355")
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))

	framed := make([]byte, 2+len(query))
	framed[0] = byte(len(query) >> 8)
	framed[1] = byte(len(query))
	copy(framed[2:], query)
	_, err = conn.Write(framed)
	require.NoError(t, err)

	lengthPrefix := make([]byte, 2)
	_, err = readFull(conn, lengthPrefix)
	require.NoError(t, err)
	length := int(lengthPrefix[0])<<8 | int(lengthPrefix[1])

	body := make([]byte, length)
	_, err = readFull(conn, body)
	require.NoError(t, err)

	rcode, ips, err := dnswire.ParseAnswerIPs(body)
	require.NoError(t, err)
	assert.True(t, dnswire.IsSuccess(rcode))
	require.Len(t, ips, 1)
	assert.Equal(t, "203.0.113.8", ips[0].String())
}

func TestForwarderDropsEmptyTCPFraming(t *testing.T) {
	transport := &echoTransport{answerIP: "203.0.113.9"}
	fwd := New(transport, "15356")
	fwd.SetActiveProvider(testProvider())

	m := mgr.New("forwarder-oversized-test")
	require.NoError(t, fwd.Start(m))
	defer fwd.Stop(m) //nolint:errcheck

	conn, err := net.Dial("tcp", "127.0.0.1:15356")
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Write([]byte{0x00, 0x00}) // zero length: rejected without response
	require.NoError(t, err)

	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err) // connection closed by server, no response written

	assert.Equal(t, 0, transport.calls)
}

func TestForwarderDropsQueriesWithNoActiveProvider(t *testing.T) {
	transport := &echoTransport{answerIP: "203.0.113.10"}
	fwd := New(transport, "15357")
	// No SetActiveProvider call.

	m := mgr.New("forwarder-no-provider-test")
	require.NoError(t, fwd.Start(m))
	defer fwd.Stop(m) //nolint:errcheck

	query, err := dnswire.BuildQuery("example.net.", dns.TypeA)
	require.NoError(t, err)

	conn, err := net.Dial("udp", "127.0.0.1:15357")
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	require.NoError(t, conn.SetDeadline(time.Now().Add(500*time.Millisecond)))
	_, err = conn.Write(query)
	require.NoError(t, err)

	_, err = conn.Read(make([]byte, 64))
	assert.Error(t, err) // timeout: no response since there is no active provider
	assert.Equal(t, uint64(0), fwd.QueriesHandled())
}
