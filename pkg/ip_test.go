package pkg

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPIsLocal(t *testing.T) {
	assert.True(t, IPIsLocal("127.0.0.1:8080"))
	assert.True(t, IPIsLocal("172.17.0.1:45010"))
	assert.False(t, IPIsLocal("95.90.24.77:1234"))
	assert.False(t, IPIsLocal("localhost"))
}

func TestReadUserIP(t *testing.T) {
	req, err := http.NewRequest("POST", "/a/login", nil)
	require.NoError(t, err)

	req.RemoteAddr = "95.90.24.77:51001"
	ip, err := ReadUserIP(req)
	require.NoError(t, err)
	assert.Equal(t, "95.90.24.77", ip)

	req.Header.Set("X-Forwarded-For", "188.2.101.13")
	ip, err = ReadUserIP(req)
	require.NoError(t, err)
	assert.Equal(t, "188.2.101.13", ip)

	req.Header.Set("X-Real-Ip", "77.11.0.4")
	ip, err = ReadUserIP(req)
	require.NoError(t, err)
	assert.Equal(t, "77.11.0.4", ip)

	req.Header.Set("X-Real-Ip", "127.0.0.1:8080")
	ip, err = ReadUserIP(req)
	require.NoError(t, err)
	assert.Equal(t, "localhost", ip)

	req.Header.Set("X-Real-Ip", "not-an-ip-addr")
	_, err = ReadUserIP(req)
	assert.Error(t, err)
}
