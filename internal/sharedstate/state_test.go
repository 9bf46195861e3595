package sharedstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCachedValueGetSetRoundTrip(t *testing.T) {
	c := &cachedValue[int]{}

	_, ok, _ := c.get()
	assert.False(t, ok)

	c.set(42, time.Minute)

	v, ok, stale := c.get()
	assert.True(t, ok)
	assert.False(t, stale)
	assert.Equal(t, 42, v)
}

func TestCachedValueGoesStaleAfterTTL(t *testing.T) {
	c := &cachedValue[string]{}
	c.set("value", time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	v, ok, stale := c.get()
	assert.True(t, ok)
	assert.True(t, stale)
	assert.Equal(t, "value", v)
}

func TestCachedValueNeverExpiresWithZeroTTL(t *testing.T) {
	c := &cachedValue[string]{}
	c.set("value", 0)

	time.Sleep(5 * time.Millisecond)

	_, ok, stale := c.get()
	assert.True(t, ok)
	assert.False(t, stale)
}

func TestSyncToLegacyWrapsSnapshot(t *testing.T) {
	s := New(nil)

	var got GeofenceSnapshot
	adapter := s.SyncToLegacy(func(snap GeofenceSnapshot) {
		got = snap
	})

	geofences := []Geofence{{ID: 1, Name: "area-a"}}
	adapter(geofences)

	assert.Equal(t, geofences, got.Geofences)
	assert.WithinDuration(t, time.Now(), got.FetchedAt, time.Second)
}
