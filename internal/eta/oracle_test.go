package eta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOracleWithoutKeyFallsBack(t *testing.T) {
	oracle, err := NewOracle(Config{FallbackMinutes: 30})
	require.NoError(t, err)

	est := oracle.Estimate(context.Background(), Point{14.5995, 120.9842}, Point{14.6091, 121.0223})
	assert.Equal(t, 30, est.Minutes)
	assert.Equal(t, ConfidenceLow, est.Confidence)
	assert.Equal(t, SourceFallback, est.Source)
}

func TestNewOracleDefaultsFallbackMinutes(t *testing.T) {
	oracle, err := NewOracle(Config{})
	require.NoError(t, err)

	est := oracle.Estimate(context.Background(), Point{}, Point{})
	assert.Equal(t, 30, est.Minutes)
}

func TestLatLngParam(t *testing.T) {
	assert.Equal(t, "14.599500,120.984200", latLngParam(Point{14.5995, 120.9842}))
}
