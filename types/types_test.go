package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPv4Conversions(t *testing.T) {
	addr, err := StringToIPv4("10.0.0.11")
	require.NoError(t, err)
	assert.Equal(t, BytesToIPv4(10, 0, 0, 11), addr)
	assert.Equal(t, [IPv4AddrLen]byte{10, 0, 0, 11}, IPv4ToBytes(addr))
	assert.Equal(t, "10.0.0.11", addr.String())
	assert.Equal(t, "10.0.0.11", addr.ToNetIP().String())

	_, err = StringToIPv4("fe80::1")
	assert.Error(t, err)
	_, err = StringToIPv4("10.0.0")
	assert.Error(t, err)
}

func TestMACConversions(t *testing.T) {
	mac, err := StringToMACAddress("02:00:00:00:00:01")
	require.NoError(t, err)
	assert.Equal(t, MACAddress{2, 0, 0, 0, 0, 1}, mac)
	assert.Equal(t, "02:00:00:00:00:01", mac.String())
	assert.Equal(t, mac, NetHWAddressToMAC(MACAddressToNetHW(mac)))
	assert.False(t, mac.IsZero())
	assert.True(t, MACAddress{}.IsZero())

	_, err = StringToMACAddress("00:00:00:00:fe:80:00:00:00:00:00:00:02:00:5e:10:00:00:00:01")
	assert.Error(t, err)
}
