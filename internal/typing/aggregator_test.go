package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

type recorder struct {
	mu      sync.Mutex
	rosters map[int][][]models.Identity
}

func newRecorder() *recorder {
	return &recorder{rosters: make(map[int][][]models.Identity)}
}

func (r *recorder) emit(roomID int, roster []models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters[roomID] = append(r.rosters[roomID], roster)
}

func (r *recorder) last(roomID int) []models.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.rosters[roomID]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (r *recorder) count(roomID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rosters[roomID])
}

var (
	alice = models.Identity{ID: 1, Username: "alice"}
	bob   = models.Identity{ID: 2, Username: "bob"}
)

func TestRepeatedStartDoesNotDuplicate(t *testing.T) {
	rec := newRecorder()
	agg := New(time.Minute, rec.emit)
	defer agg.Close()

	agg.Start(10, alice)
	roster := agg.Start(10, alice)
	assert.Equal(t, []models.Identity{alice}, roster)
	assert.Equal(t, 2, rec.count(10))
}

func TestStopEmitsFullRoster(t *testing.T) {
	rec := newRecorder()
	agg := New(time.Minute, rec.emit)
	defer agg.Close()

	agg.Start(10, bob)
	agg.Start(10, alice)
	assert.Equal(t, []models.Identity{alice, bob}, rec.last(10))

	roster, changed := agg.Stop(10, alice.ID)
	assert.True(t, changed)
	assert.Equal(t, []models.Identity{bob}, roster)
	assert.Equal(t, []models.Identity{bob}, rec.last(10))

	_, changed = agg.Stop(10, alice.ID)
	assert.False(t, changed)
	assert.Equal(t, 3, rec.count(10))
}

func TestLostStopSelfHealsOnNextStart(t *testing.T) {
	rec := newRecorder()
	agg := New(50*time.Millisecond, rec.emit)
	defer agg.Close()

	agg.Start(10, alice)
	// alice's typing_stop never arrives; the entry expires on its own.
	require.Eventually(t, func() bool {
		return len(agg.Roster(10)) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, rec.last(10))

	agg.Start(10, bob)
	assert.Equal(t, []models.Identity{bob}, rec.last(10))
}

func TestRestartRearmsExpiry(t *testing.T) {
	agg := New(80*time.Millisecond, nil)
	defer agg.Close()

	agg.Start(10, alice)
	time.Sleep(50 * time.Millisecond)
	agg.Start(10, alice)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []models.Identity{alice}, agg.Roster(10))

	require.Eventually(t, func() bool {
		return len(agg.Roster(10)) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClearUserRemovesFromEveryRoom(t *testing.T) {
	rec := newRecorder()
	agg := New(time.Minute, rec.emit)
	defer agg.Close()

	agg.Start(10, alice)
	agg.Start(11, alice)
	agg.Start(11, bob)

	agg.ClearUser(alice.ID)
	assert.Empty(t, agg.Roster(10))
	assert.Equal(t, []models.Identity{bob}, agg.Roster(11))
	assert.Equal(t, []models.Identity{bob}, rec.last(11))
}

func TestRoomsAreIndependent(t *testing.T) {
	agg := New(time.Minute, nil)
	defer agg.Close()

	agg.Start(10, alice)
	agg.Start(11, bob)
	assert.Equal(t, []models.Identity{alice}, agg.Roster(10))
	assert.Equal(t, []models.Identity{bob}, agg.Roster(11))
	assert.Empty(t, agg.Roster(12))
}

func TestEmptyRoomsAreDropped(t *testing.T) {
	rec := newRecorder()
	agg := New(50*time.Millisecond, rec.emit)
	defer agg.Close()

	agg.Start(10, alice)
	agg.Start(11, bob)
	assert.Equal(t, 2, agg.size())

	agg.Stop(10, alice.ID)
	assert.Equal(t, 1, agg.size())

	require.Eventually(t, func() bool { return agg.size() == 0 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, rec.last(11))

	_, changed := agg.Stop(12, alice.ID)
	assert.False(t, changed)
	assert.Equal(t, 0, agg.size())

	agg.Start(10, bob)
	assert.Equal(t, []models.Identity{bob}, agg.Roster(10))
	assert.Equal(t, 1, agg.size())
}
