package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareLinkUsable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	three := 3

	assert.True(t, ShareLink{}.Usable(now))
	assert.True(t, ShareLink{ExpiresAt: &future}.Usable(now))
	assert.True(t, ShareLink{MaxUses: &three, UseCount: 2}.Usable(now))

	assert.False(t, ShareLink{Revoked: true}.Usable(now))
	assert.False(t, ShareLink{ExpiresAt: &past}.Usable(now))
	assert.False(t, ShareLink{MaxUses: &three, UseCount: 3}.Usable(now))
	assert.False(t, ShareLink{MaxUses: &three, UseCount: 5}.Usable(now))
}
