package submission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allFlags() []DeclarationFlag {
	flags := make([]DeclarationFlag, 0, FlagCount)
	for f := DeclarationFlag(0); f < FlagCount; f++ {
		flags = append(flags, f)
	}
	return flags
}

func completeDeclaration(t *testing.T, taxYear string) *Declaration {
	t.Helper()
	d := NewDeclaration(taxYear)
	for _, f := range allFlags() {
		require.NoError(t, d.Set(f, true))
	}
	require.True(t, d.IsComplete())
	return d
}

func TestDeclarationCompleteOnlyWhenAllFlagsSet(t *testing.T) {
	// Every combination of the six flags: complete iff all are set.
	for mask := 0; mask < 1<<FlagCount; mask++ {
		d := NewDeclaration("2025-26")
		for _, f := range allFlags() {
			require.NoError(t, d.Set(f, mask&(1<<f) != 0))
		}
		wantComplete := mask == 1<<FlagCount-1
		assert.Equal(t, wantComplete, d.IsComplete(), "mask %06b", mask)
		if wantComplete {
			assert.NotEmpty(t, d.ID())
			assert.False(t, d.CompletedAt().IsZero())
		} else {
			assert.Empty(t, d.ID())
			assert.True(t, d.CompletedAt().IsZero())
		}
	}
}

func TestDeclarationCapturesOnceWhileComplete(t *testing.T) {
	d := completeDeclaration(t, "2025-26")
	id := d.ID()
	at := d.CompletedAt()

	// Re-setting an already-true flag must not recapture.
	require.NoError(t, d.Set(FlagAccuracy, true))
	assert.Equal(t, id, d.ID())
	assert.Equal(t, at, d.CompletedAt())
}

func TestDeclarationToggleRecapturesFresh(t *testing.T) {
	d := NewDeclaration("2025-26")
	instant := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return instant }

	for _, f := range allFlags() {
		require.NoError(t, d.Set(f, true))
	}
	firstID := d.ID()
	firstAt := d.CompletedAt()

	// Unchecking any flag reverts to incomplete and wipes the capture.
	require.NoError(t, d.Set(FlagLegalEffect, false))
	assert.False(t, d.IsComplete())
	assert.Empty(t, d.ID())
	assert.True(t, d.CompletedAt().IsZero())

	// Completing again at a later instant captures a fresh timestamp and a
	// different ID; the old capture is never reused.
	instant = instant.Add(2 * time.Minute)
	require.NoError(t, d.Set(FlagLegalEffect, true))
	assert.True(t, d.IsComplete())
	assert.NotEqual(t, firstID, d.ID())
	assert.Equal(t, instant, d.CompletedAt())
	assert.NotEqual(t, firstAt, d.CompletedAt())
}

func TestDeclarationIDDeterministic(t *testing.T) {
	instant := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

	build := func() *Declaration {
		d := NewDeclaration("2025-26")
		d.now = func() time.Time { return instant }
		for _, f := range allFlags() {
			require.NoError(t, d.Set(f, true))
		}
		return d
	}

	assert.Equal(t, build().ID(), build().ID(),
		"same content and instant must produce the same ID")

	other := NewDeclaration("2024-25")
	other.now = func() time.Time { return instant }
	for _, f := range allFlags() {
		require.NoError(t, other.Set(f, true))
	}
	assert.NotEqual(t, build().ID(), other.ID(), "tax year is part of the ID")
}

func TestDeclarationReset(t *testing.T) {
	d := completeDeclaration(t, "2025-26")
	d.Reset()

	assert.False(t, d.IsComplete())
	assert.Empty(t, d.ID())
	assert.True(t, d.CompletedAt().IsZero())
	for _, f := range allFlags() {
		assert.False(t, d.Get(f))
	}
}

func TestDeclarationInvalidFlag(t *testing.T) {
	d := NewDeclaration("2025-26")
	assert.Error(t, d.Set(FlagCount, true))
	assert.Error(t, d.Set(-1, true))
	assert.False(t, d.Get(FlagCount))
}
