package rendezvous_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbrandt/quicsend/rendezvous"
)

func TestRoundTripEveryVariant(t *testing.T) {
	var code rendezvous.Code
	copy(code[:], "ABcd1234")
	cases := []rendezvous.Message{
		rendezvous.Announce{Version: "0.4.0", ExternalAddr: "1.2.3.4:5555"},
		rendezvous.Connect{Version: "0.4.0", ExternalAddr: "5.6.7.8:9999", Code: code},
		rendezvous.CodeReply{Code: code},
		rendezvous.SocketAddrReply{SocketAddr: "1.2.3.4:5555"},
		rendezvous.WrongVersionReply{Expected: "0.4.0"},
	}
	for _, c := range cases {
		buf := rendezvous.Encode(c)
		got, err := rendezvous.Decode(buf)
		require.NoErrorf(t, err, "decode %T", c)
		assert.Equal(t, c, got)
	}
}

func TestDecodeBadCodeLength(t *testing.T) {
	// CodeReply with a 3-byte "code" instead of 8.
	buf := []byte{3, 3, 0, 0, 0, 'a', 'b', 'c'}
	_, err := rendezvous.Decode(buf)
	assert.Error(t, err)
}
