package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h := table.Insert(1, "test")
	require.NotZero(t, h)
	assert.Equal(t, 1, table.Len())

	val, ok := table.Forget(h)
	require.True(t, ok)
	assert.Equal(t, "test", val)
	assert.Zero(t, table.Len())

	_, ok = table.Forget(h)
	assert.False(t, ok, "second Forget must not find the value")
}

func TestTable_HandleReuse(t *testing.T) {
	table := NewTable()

	h1 := table.Insert(1, "a")
	table.Forget(h1)
	h2 := table.Insert(2, "b")
	assert.Equal(t, h1, h2)

	var seen []any
	table.Each(func(h Handle, typeID TypeID, v any) bool {
		assert.Equal(t, h2, h)
		assert.Equal(t, TypeID(2), typeID)
		seen = append(seen, v)
		return true
	})
	assert.Equal(t, []any{"b"}, seen)
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h := table.Insert(7, "test")
	require.Len(t, obs.events, 1)
	assert.Equal(t, EventCreated, obs.events[0].Type)
	assert.Equal(t, h, obs.events[0].Handle)
	assert.Equal(t, TypeID(7), obs.events[0].TypeID)

	table.Forget(h)
	require.Len(t, obs.events, 2)
	assert.Equal(t, EventDropped, obs.events[1].Type)
	assert.Equal(t, TypeID(7), obs.events[1].TypeID)

	table.Unsubscribe(obs)
	table.Insert(1, "test2")
	assert.Len(t, obs.events, 2, "no events after Unsubscribe")
}

func TestTable_UnsubscribeKeepsOthers(t *testing.T) {
	table := NewTable()
	first, second := &testObserver{}, &testObserver{}
	table.Subscribe(first)
	table.Subscribe(second)

	table.Unsubscribe(first)
	h := table.Insert(1, "x")
	table.Forget(h)

	assert.Empty(t, first.events)
	assert.Len(t, second.events, 2)
}

func TestTable_ForgetDoesNotDrop(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}

	h := table.Insert(1, d)
	_, ok := table.Forget(h)
	require.True(t, ok)
	assert.Zero(t, d.count)
}

func TestTable_EachStops(t *testing.T) {
	table := NewTable()
	for i := 0; i < 3; i++ {
		table.Insert(1, i)
	}

	calls := 0
	table.Each(func(Handle, TypeID, any) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}

func TestTable_Close(t *testing.T) {
	table := NewTable()
	a, b := &dropCounter{}, &dropCounter{}
	table.Insert(1, a)
	h := table.Insert(1, b)
	table.Forget(h)

	require.NoError(t, table.Close())
	assert.Equal(t, 1, a.count)
	assert.Zero(t, b.count, "forgotten values are not dropped on Close")

	assert.Zero(t, table.Insert(1, "c"), "Insert must fail after Close")
	require.NoError(t, table.Close())
	assert.Equal(t, 1, a.count, "second Close is a no-op")
}

// selfForgetter mimics a value that leaves the table from its own Drop.
type selfForgetter struct {
	table  *Table
	handle Handle
	drops  int
}

func (s *selfForgetter) Drop() {
	s.drops++
	s.table.Forget(s.handle)
}

func TestTable_CloseWithReentrantForget(t *testing.T) {
	table := NewTable()
	s := &selfForgetter{table: table}
	s.handle = table.Insert(1, s)

	require.NoError(t, table.Close())
	assert.Equal(t, 1, s.drops)
}

func TestTable_ConcurrentInsertForget(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h := table.Insert(1, j)
				table.Forget(h)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, table.Len())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "created", EventCreated.String())
	assert.Equal(t, "dropped", EventDropped.String())
	assert.Equal(t, "unknown", EventType(9).String())
}
