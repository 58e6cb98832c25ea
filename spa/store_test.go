package spa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan EntityState) EntityState {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
	return EntityState{}
}

func TestStoreUpdateNotifies(t *testing.T) {
	s := NewStore()
	ch, stop := s.Subscribe(10)
	defer stop()

	s.Update(EntityState{ID: "sensor.set", Value: "100"})
	assert.Equal(t, "100", recv(t, ch).Value)

	// unchanged state is not sent again
	s.Update(EntityState{ID: "sensor.set", Value: "100"})
	s.Update(EntityState{ID: "sensor.set", Value: "101"})
	assert.Equal(t, "101", recv(t, ch).Value)

	st, ok := s.Get("sensor.set")
	require.True(t, ok)
	assert.Equal(t, "101", st.Value)
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Update(EntityState{ID: "a", Value: "1"})
	snap := s.Snapshot()
	snap["a"] = EntityState{ID: "a", Value: "2"}
	st, _ := s.Get("a")
	assert.Equal(t, "1", st.Value)
}

func TestStoreReplace(t *testing.T) {
	s := NewStore()
	s.Update(EntityState{ID: "a", Value: "1"})
	s.Update(EntityState{ID: "b", Value: "2"})
	ch, stop := s.Subscribe(10)
	defer stop()

	s.Replace(Snapshot{"a": {ID: "a", Value: "1"}, "c": {ID: "c", Value: "3"}})

	got := map[string]string{}
	got[recv(t, ch).ID] = ""
	got[recv(t, ch).ID] = ""
	assert.Contains(t, got, "b")
	assert.Contains(t, got, "c")

	_, ok := s.Get("b")
	assert.False(t, ok)
	assert.Len(t, s.Snapshot(), 2)
}

func TestStoreRemove(t *testing.T) {
	s := NewStore()
	s.Update(EntityState{ID: "a", Value: "1"})
	ch, stop := s.Subscribe(1)
	defer stop()

	s.Remove("a")
	assert.Equal(t, EntityState{ID: "a", Value: StateUnavailable}, recv(t, ch))
	_, ok := Read(s.Snapshot(), "a")
	assert.False(t, ok)
}

func TestStoreSlowSubscriber(t *testing.T) {
	s := NewStore()
	ch, stop := s.Subscribe(1)
	s.Update(EntityState{ID: "a", Value: "1"})
	s.Update(EntityState{ID: "a", Value: "2"}) // dropped, buffer full
	assert.Equal(t, "1", recv(t, ch).Value)
	stop()
	stop()
	_, open := <-ch
	assert.False(t, open)
	s.Update(EntityState{ID: "a", Value: "3"})
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	for i, v := range []string{"1", "2", "3", "4"} {
		h.Add(Event{Kind: "reading", Entity: "a", Value: v, Time: time.Unix(int64(i), 0)})
	}
	ev := h.Events()
	require.Len(t, ev, 3)
	assert.Equal(t, "2", ev[0].Value)
	assert.Equal(t, "4", ev[2].Value)

	h.Add(Event{Kind: "press"})
	assert.False(t, h.Events()[2].Time.IsZero())
}
