package tonutil

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/boc"
)

const (
	presaleRaw        = "0:5e327427e60706c725396298f1e0433cd39b7c44a3125fe4af19a8b2a191ba1c"
	presaleBounceable = "EQBeMnQn5gcGxyU5Ypjx4EM805t8RKMSX-SvGaiyoZG6HLkQ"
	presaleUserFacing = "UQBeMnQn5gcGxyU5Ypjx4EM805t8RKMSX-SvGaiyoZG6HOTV"
)

func TestParseAddress(t *testing.T) {
	t.Run("all forms map to raw", func(t *testing.T) {
		for _, addr := range []string{presaleRaw, presaleBounceable, presaleUserFacing, "  " + presaleUserFacing + " "} {
			raw, err := ParseAddress(addr)
			require.NoError(t, err, addr)
			assert.Equal(t, presaleRaw, raw)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseAddress("not-an-address")
		assert.Error(t, err)

		_, err = ParseAddress("")
		assert.Error(t, err)
	})

	t.Run("normalize keeps garbage", func(t *testing.T) {
		assert.Equal(t, "xyz", NormalizeAddress("xyz"))
		assert.Equal(t, presaleRaw, NormalizeAddress(presaleUserFacing))
	})
}

func TestRawToFriendly(t *testing.T) {
	assert.Equal(t, presaleBounceable, RawToFriendly(presaleRaw, false))
	assert.Equal(t, "", RawToFriendly("", false))
	assert.Equal(t, "bogus", RawToFriendly("bogus", false))
}

func TestShortAddr(t *testing.T) {
	assert.Equal(t, "unknown", ShortAddr("", 4))
	assert.Equal(t, "abc", ShortAddr("abc", 4))
	assert.Equal(t, "EQBe...HLkQ", ShortAddr(presaleBounceable, 4))
}

func TestNanoToTON(t *testing.T) {
	assert.Equal(t, "1.5", NanoToTON(1_500_000_000).String())
	assert.Equal(t, "0.000000001", NanoToTON(1).String())
}

func TestMessageHash(t *testing.T) {
	cell := boc.NewCell()
	require.NoError(t, cell.WriteUint(0xdeadbeef, 32))

	encoded, err := cell.ToBocBase64()
	require.NoError(t, err)

	want, err := cell.Hash()
	require.NoError(t, err)

	got, err := MessageHash(encoded)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want), got)

	_, err = MessageHash("!!!")
	assert.Error(t, err)
}

func TestNormalizeTxHash(t *testing.T) {
	h := strings.Repeat("AB", 32)
	got, err := NormalizeTxHash(h)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(h), got)

	_, err = NormalizeTxHash("abcd")
	assert.ErrorIs(t, err, ErrInvalidTxHash)

	_, err = NormalizeTxHash(strings.Repeat("zz", 32))
	assert.ErrorIs(t, err, ErrInvalidTxHash)
}
