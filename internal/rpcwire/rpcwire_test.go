package rpcwire

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAuthUnixCredentials() *UnixAuth {
	return &UnixAuth{
		Stamp:       uint32(time.Now().Unix()),
		MachineName: "testhost",
		UID:         1000,
		GID:         1000,
		GIDs:        []uint32{4, 24, 27, 30},
	}
}

func encodeAuthUnix(auth *UnixAuth) []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.BigEndian, auth.Stamp)

	nameLen := uint32(len(auth.MachineName))
	_ = binary.Write(buf, binary.BigEndian, nameLen)
	buf.WriteString(auth.MachineName)
	padding := (4 - (nameLen % 4)) % 4
	for i := uint32(0); i < padding; i++ {
		buf.WriteByte(0)
	}

	_ = binary.Write(buf, binary.BigEndian, auth.UID)
	_ = binary.Write(buf, binary.BigEndian, auth.GID)

	_ = binary.Write(buf, binary.BigEndian, uint32(len(auth.GIDs)))
	for _, gid := range auth.GIDs {
		_ = binary.Write(buf, binary.BigEndian, gid)
	}

	return buf.Bytes()
}

func TestParseUnixAuth(t *testing.T) {
	t.Run("ParsesValidCredentials", func(t *testing.T) {
		original := validAuthUnixCredentials()
		body := encodeAuthUnix(original)

		parsed, err := ParseUnixAuth(body)
		require.NoError(t, err)
		assert.Equal(t, original.Stamp, parsed.Stamp)
		assert.Equal(t, original.MachineName, parsed.MachineName)
		assert.Equal(t, original.UID, parsed.UID)
		assert.Equal(t, original.GID, parsed.GID)
		assert.Equal(t, original.GIDs, parsed.GIDs)
	})

	t.Run("ParsesRootCredentials", func(t *testing.T) {
		auth := &UnixAuth{Stamp: uint32(time.Now().Unix()), MachineName: "testhost", GIDs: []uint32{}}
		body := encodeAuthUnix(auth)

		parsed, err := ParseUnixAuth(body)
		require.NoError(t, err)
		assert.Equal(t, uint32(0), parsed.UID)
		assert.Equal(t, uint32(0), parsed.GID)
		assert.Empty(t, parsed.GIDs)
	})

	t.Run("ParsesWithMaximumGroups", func(t *testing.T) {
		gids := make([]uint32, 16)
		for i := range gids {
			gids[i] = uint32(i + 1000)
		}
		auth := &UnixAuth{Stamp: 12345, MachineName: "testhost", UID: 1000, GID: 1000, GIDs: gids}
		body := encodeAuthUnix(auth)

		parsed, err := ParseUnixAuth(body)
		require.NoError(t, err)
		assert.Len(t, parsed.GIDs, 16)
		assert.Equal(t, gids, parsed.GIDs)
	})

	t.Run("RejectsExcessiveGroups", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.BigEndian, uint32(12345))
		_ = binary.Write(buf, binary.BigEndian, uint32(8))
		_, _ = buf.WriteString("testhost")
		_ = binary.Write(buf, binary.BigEndian, uint32(1000))
		_ = binary.Write(buf, binary.BigEndian, uint32(1000))
		_ = binary.Write(buf, binary.BigEndian, uint32(17))

		_, err := ParseUnixAuth(buf.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many gids")
	})

	t.Run("RejectsLongMachineName", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.BigEndian, uint32(12345))
		_ = binary.Write(buf, binary.BigEndian, uint32(256))

		_, err := ParseUnixAuth(buf.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "machine name too long")
	})

	t.Run("RejectsEmptyBody", func(t *testing.T) {
		_, err := ParseUnixAuth([]byte{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})
}

func TestUnixAuthString(t *testing.T) {
	auth := &UnixAuth{Stamp: 12345, MachineName: "testhost", UID: 1000, GID: 1000, GIDs: []uint32{4, 24, 27, 30}}
	str := auth.String()
	assert.Contains(t, str, "testhost")
	assert.Contains(t, str, "1000")
	assert.Contains(t, str, "[4 24 27 30]")
}

func TestAuthFlavorsAreUnique(t *testing.T) {
	flavors := []uint32{AuthNull, AuthUnix, AuthShort, AuthDES}
	seen := make(map[uint32]bool)
	for _, flavor := range flavors {
		assert.False(t, seen[flavor], "flavor %d is not unique", flavor)
		seen[flavor] = true
	}
}

func TestMakeProgMismatchReply(t *testing.T) {
	t.Run("GeneratesValidReply", func(t *testing.T) {
		xid := uint32(0x12345678)
		reply, err := MakeProgMismatchReply(xid, 3, 3)
		require.NoError(t, err)
		require.NotNil(t, reply)
		assert.GreaterOrEqual(t, len(reply), 36)

		fragHeader := binary.BigEndian.Uint32(reply[0:4])
		assert.True(t, (fragHeader&0x80000000) != 0)
		fragLen := fragHeader & 0x7FFFFFFF
		assert.Equal(t, uint32(len(reply)-4), fragLen)

		replyXID := binary.BigEndian.Uint32(reply[4:8])
		assert.Equal(t, xid, replyXID)

		msgType := binary.BigEndian.Uint32(reply[8:12])
		assert.Equal(t, RPCReply, msgType)

		replyState := binary.BigEndian.Uint32(reply[12:16])
		assert.Equal(t, RPCMsgAccepted, replyState)
	})

	t.Run("EncodesVersionRange", func(t *testing.T) {
		reply, err := MakeProgMismatchReply(0xABCD1234, 2, 4)
		require.NoError(t, err)
		n := len(reply)
		assert.Equal(t, uint32(2), binary.BigEndian.Uint32(reply[n-8:n-4]))
		assert.Equal(t, uint32(4), binary.BigEndian.Uint32(reply[n-4:n]))
	})

	t.Run("RejectsInvalidVersionRange", func(t *testing.T) {
		reply, err := MakeProgMismatchReply(0x12345678, 5, 3)
		require.Error(t, err)
		assert.Nil(t, reply)
		assert.Contains(t, err.Error(), "invalid version range")
		assert.Contains(t, err.Error(), "low (5) > high (3)")
	})

	t.Run("ContainsProgMismatchStatus", func(t *testing.T) {
		reply, err := MakeProgMismatchReply(0x1234, 3, 3)
		require.NoError(t, err)
		acceptStat := binary.BigEndian.Uint32(reply[24:28])
		assert.Equal(t, RPCProgMismatch, acceptStat)
	})
}

func TestDecodeReply_RoundTripsProgMismatch(t *testing.T) {
	reply, err := MakeProgMismatchReply(42, 2, 4)
	require.NoError(t, err)

	last, length := DecodeFragmentHeader([4]byte(reply[0:4]))
	assert.True(t, last)
	assert.Equal(t, uint32(len(reply)-4), length)

	parsed, err := DecodeReply(reply[4:])
	require.NoError(t, err)
	assert.Equal(t, uint32(42), parsed.XID)
	assert.Equal(t, RPCMsgAccepted, parsed.ReplyState)
	assert.Equal(t, RPCProgMismatch, parsed.AcceptStatus)
	assert.Equal(t, uint32(2), parsed.MismatchLow)
	assert.Equal(t, uint32(4), parsed.MismatchHigh)
}

func TestCallHeader_EncodesAuthUnix(t *testing.T) {
	h := &CallHeader{
		XID:         7,
		Program:     100003,
		ProgVersion: 3,
		Procedure:   4,
		Credential:  validAuthUnixCredentials(),
	}
	var buf bytes.Buffer
	require.NoError(t, h.Encode(&buf))
	assert.Greater(t, buf.Len(), 0)

	r := bytes.NewReader(buf.Bytes())
	var xid, msgType, rpcvers, prog, vers, proc uint32
	require.NoError(t, binary.Read(r, binary.BigEndian, &xid))
	require.NoError(t, binary.Read(r, binary.BigEndian, &msgType))
	require.NoError(t, binary.Read(r, binary.BigEndian, &rpcvers))
	require.NoError(t, binary.Read(r, binary.BigEndian, &prog))
	require.NoError(t, binary.Read(r, binary.BigEndian, &vers))
	require.NoError(t, binary.Read(r, binary.BigEndian, &proc))
	assert.Equal(t, uint32(7), xid)
	assert.Equal(t, RPCCall, msgType)
	assert.Equal(t, RPCVersion, rpcvers)
	assert.Equal(t, uint32(100003), prog)
	assert.Equal(t, uint32(3), vers)
	assert.Equal(t, uint32(4), proc)
}

func TestNextXID_IsUniquePerCall(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		xid := NextXID()
		assert.False(t, seen[xid], "xid %d reused", xid)
		seen[xid] = true
	}
}
