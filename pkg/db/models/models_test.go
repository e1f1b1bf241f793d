package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorParticipantsValueScan(t *testing.T) {
	joined := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := MirrorParticipants{{Address: "0xAbC", Nickname: "sam", TxHash: "0x1", JoinedAt: joined}}

	raw, err := in.Value()
	require.NoError(t, err)

	var out MirrorParticipants
	require.NoError(t, out.Scan([]byte(raw.(string))))
	assert.Equal(t, in, out)
	assert.True(t, out.Contains("0xabc"))
	assert.False(t, out.Contains("0xdef"))
}

func TestMirrorParticipantsNilEncodesEmptyArray(t *testing.T) {
	var p MirrorParticipants
	raw, err := p.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	require.NoError(t, p.Scan(nil))
	assert.Nil(t, p)
	assert.Error(t, p.Scan(42))
}

func TestHasLedgerID(t *testing.T) {
	var nilMirror *ExperienceMirror
	assert.False(t, nilMirror.HasLedgerID())
	assert.False(t, (&ExperienceMirror{}).HasLedgerID())
	assert.True(t, (&ExperienceMirror{BlockchainExperienceID: "3"}).HasLedgerID())
}
