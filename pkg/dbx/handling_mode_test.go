package dbx_test

import (
	"testing"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHandlingMode(t *testing.T) {
	for _, mode := range []dbx.HandlingMode{
		dbx.DelayedAcquisitionAndHold,
		dbx.DelayedAcquisitionReleaseAfterStatement,
		dbx.DelayedAcquisitionReleaseAfterTransaction,
		dbx.ImmediateAcquisitionAndHold,
		dbx.ImmediateAcquisitionReleaseAfterTxn,
	} {
		t.Run(mode.String(), func(t *testing.T) {
			parsed, err := dbx.ParseHandlingMode(mode.String(), dbx.DelayedAcquisitionAndHold)
			require.NoError(t, err)
			assert.Equal(t, mode, parsed)
		})
	}
}

func TestParseHandlingModeFallback(t *testing.T) {
	for _, name := range []string{"", "auto", " AUTO "} {
		mode, err := dbx.ParseHandlingMode(name, dbx.DelayedAcquisitionReleaseAfterStatement)
		require.NoError(t, err)
		assert.Equal(t, dbx.DelayedAcquisitionReleaseAfterStatement, mode)
	}

	_, err := dbx.ParseHandlingMode("release-whenever", dbx.DelayedAcquisitionAndHold)
	assert.Error(t, err)
}
