package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hostelmess/core"
)

func TestLoadLocation(t *testing.T) {
	loc, err := core.LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = core.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())

	t.Setenv("TZ", "Africa/Kinshasa")
	loc, err = core.LoadLocation("Local")
	require.NoError(t, err)
	assert.Equal(t, "Africa/Kinshasa", loc.String())
	assert.NotEqual(t, time.Local, loc)

	t.Setenv("TZ", "")
	_, err = core.LoadLocation("Local")
	assert.Error(t, err)

	_, err = core.LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}
