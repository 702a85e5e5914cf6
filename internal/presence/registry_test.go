package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

type recordingNotifier struct {
	mu      sync.Mutex
	rosters [][]models.Identity
}

func (n *recordingNotifier) BroadcastRoster(roster []models.Identity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rosters = append(n.rosters, roster)
}

func (n *recordingNotifier) last() []models.Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rosters[len(n.rosters)-1]
}

var (
	alice = models.Identity{ID: 1, Username: "alice"}
	bob   = models.Identity{ID: 2, Username: "bob"}
)

func TestIdentityWithTwoSessionsStaysOnline(t *testing.T) {
	notifier := &recordingNotifier{}
	reg := New(notifier)

	assert.True(t, reg.Register(alice, "s1"))
	assert.False(t, reg.Register(alice, "s2"))
	assert.Equal(t, 2, reg.SessionCount(alice.ID))

	who, offline := reg.Deregister("s1")
	assert.Equal(t, alice, who)
	assert.False(t, offline)
	assert.True(t, reg.IsOnline(alice.ID))
	assert.Equal(t, []models.Identity{alice}, reg.List())

	_, offline = reg.Deregister("s2")
	assert.True(t, offline)
	assert.False(t, reg.IsOnline(alice.ID))
	assert.Empty(t, reg.List())
	assert.Empty(t, notifier.last())
}

func TestEveryChangeBroadcastsTheRoster(t *testing.T) {
	notifier := &recordingNotifier{}
	reg := New(notifier)

	reg.Register(alice, "s1")
	reg.Register(bob, "s2")
	reg.Deregister("s1")

	require.Len(t, notifier.rosters, 3)
	assert.Equal(t, []models.Identity{alice}, notifier.rosters[0])
	assert.Equal(t, []models.Identity{alice, bob}, notifier.rosters[1])
	assert.Equal(t, []models.Identity{bob}, notifier.rosters[2])
}

func TestDeregisterUnknownSessionIsIgnored(t *testing.T) {
	notifier := &recordingNotifier{}
	reg := New(notifier)

	_, offline := reg.Deregister("missing")
	assert.False(t, offline)
	assert.Empty(t, notifier.rosters)
}

func TestConcurrentRegisterDeregisterKeepsCounts(t *testing.T) {
	reg := New(nil)
	reg.Register(alice, "anchor")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i)
			reg.Register(alice, id)
			reg.Deregister(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, reg.SessionCount(alice.ID))
	assert.Equal(t, []models.Identity{alice}, reg.List())
}
