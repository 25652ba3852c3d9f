package dnswire

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	raw, err := BuildQuery("example.com.", dns.TypeA)
	require.NoError(t, err)

	msg := new(dns.Msg)
	require.NoError(t, msg.Unpack(raw))

	require.Len(t, msg.Question, 1)
	assert.Equal(t, "example.com.", msg.Question[0].Name)
	assert.Equal(t, dns.TypeA, msg.Question[0].Qtype)
	assert.Equal(t, dns.ClassINET, msg.Question[0].Qclass)
	assert.True(t, msg.RecursionDesired)
}

func TestParseAnswerIPs(t *testing.T) {
	t.Parallel()

	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeA)

	response := new(dns.Msg)
	response.SetReply(query)
	rr, err := dns.NewRR("example.com. 60 IN A 93.184.216.34")
	require.NoError(t, err)
	response.Answer = append(response.Answer, rr)

	raw, err := response.Pack()
	require.NoError(t, err)

	rcode, ips, err := ParseAnswerIPs(raw)
	require.NoError(t, err)
	assert.True(t, IsSuccess(rcode))
	require.Len(t, ips, 1)
	assert.Equal(t, "93.184.216.34", ips[0].String())
}

func TestParseAnswerIPsMalformed(t *testing.T) {
	t.Parallel()

	_, _, err := ParseAnswerIPs([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
