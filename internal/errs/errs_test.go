package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClassifyRoundTrip(t *testing.T) {
	err := New(GeometryFatal, "output layout has a gap")
	assert.Equal(t, GeometryFatal, Classify(err))
	assert.Contains(t, err.Error(), "geometry-fatal")
	assert.Contains(t, err.Error(), "output layout has a gap")
}

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := errors.New("ioctl failed")
	err := Wrap(EnvironmentFatal, "grabbing device", cause)
	assert.Equal(t, EnvironmentFatal, Classify(err))
	assert.True(t, errors.Is(err, cause))
	assert.ErrorIs(t, err, cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(EnvironmentFatal, "should not appear", nil))
}

func TestClassifyUnclassifiedForPlainErrors(t *testing.T) {
	assert.Equal(t, Unclassified, Classify(errors.New("plain")))
}

func TestFatalClassification(t *testing.T) {
	require.True(t, EnvironmentFatal.Fatal())
	require.True(t, GeometryFatal.Fatal())
	assert.False(t, GeometryTransient.Fatal())
	assert.False(t, ResourceRecoverable.Fatal())
	assert.False(t, DataInconsistency.Fatal())
	assert.False(t, ProtocolDegenerate.Fatal())
	assert.False(t, Unclassified.Fatal())
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		EnvironmentFatal:     "environment-fatal",
		GeometryFatal:        "geometry-fatal",
		GeometryTransient:    "geometry-transient",
		ResourceRecoverable:  "resource-recoverable",
		DataInconsistency:    "data-inconsistency",
		ProtocolDegenerate:   "protocol-degenerate",
		Unclassified:         "unclassified",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
}
