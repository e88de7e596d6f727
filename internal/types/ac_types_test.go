package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpeed(t *testing.T) {
	for _, valid := range []string{"LOW", "MID", "HIGH"} {
		speed, err := ParseSpeed(valid)
		require.NoError(t, err)
		assert.Equal(t, Speed(valid), speed)
	}

	_, err := ParseSpeed("high")
	assert.Equal(t, KindInvalidArgument, KindOf(err), "风速区分大小写")
	_, err = ParseSpeed("")
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("cool")
	require.NoError(t, err)
	assert.Equal(t, ModeCool, mode)

	_, err = ParseMode("COOL")
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}

func TestComparePriority(t *testing.T) {
	assert.Positive(t, ComparePriority(SpeedHigh, SpeedMid))
	assert.Positive(t, ComparePriority(SpeedMid, SpeedLow))
	assert.Zero(t, ComparePriority(SpeedMid, SpeedMid))
	assert.Negative(t, ComparePriority(SpeedLow, SpeedHigh))
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, KindInvalidArgument, KindOf(InvalidArgumentf("x")))
	assert.Equal(t, KindNotFound, KindOf(NotFoundf("x")))
	assert.Equal(t, KindPreconditionFailed, KindOf(PreconditionFailedf("x")))
	assert.Equal(t, KindTransient, KindOf(Transientf("x")))
	assert.Equal(t, KindInternal, KindOf(Internalf("x")))
	assert.Equal(t, KindInternal, KindOf(assert.AnError), "未知错误归为内部错误")
	assert.Equal(t, KindInternal, KindOf(nil))
}
