package lww

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raj/lww/pkg/clock"
)

func newManualSet[T comparable]() (*Set[T], *clock.Manual) {
	clk := clock.NewManual(epoch, time.Second)
	return New[T](clk), clk
}

func mustAdd[T comparable](t *testing.T, s *Set[T], value T, stamp Stamp) {
	t.Helper()
	_, err := s.Add(value, stamp)
	require.NoError(t, err)
}

func mustRemove[T comparable](t *testing.T, s *Set[T], value T, stamp Stamp) {
	t.Helper()
	_, err := s.Remove(value, stamp)
	require.NoError(t, err)
}

func TestSet_Basic(t *testing.T) {
	setup := func(t *testing.T) *Set[any] {
		s := New[any](clock.NewManual(epoch, time.Second))
		mustAdd[any](t, s, "test", Now())
		return s
	}

	t.Run("add single", func(t *testing.T) {
		s := setup(t)
		require.True(t, s.Get().Equal(NewValues[any]("test")))
		require.True(t, s.Exists("test"))
		require.False(t, s.Exists(34))
	})

	t.Run("add multiple", func(t *testing.T) {
		s := setup(t)
		mustAdd[any](t, s, "another", Now())
		mustAdd[any](t, s, 34, Now())
		mustAdd[any](t, s, "another", Now())
		require.True(t, s.Get().Equal(NewValues[any]("test", "another", 34)))
		require.True(t, s.Exists(34))
	})

	t.Run("unhashable values are rejected", func(t *testing.T) {
		s := setup(t)
		_, err := s.Add([]int{1, 2, 3}, Now())
		require.ErrorIs(t, err, ErrUnhashable)
		_, err = s.Remove(map[string]int{}, Now())
		require.ErrorIs(t, err, ErrUnhashable)
		require.False(t, s.Exists([]string{"item"}))

		adds, removes := s.Len()
		require.Equal(t, 1, adds)
		require.Equal(t, 0, removes)
	})

	t.Run("remove single", func(t *testing.T) {
		s := setup(t)
		mustAdd[any](t, s, "another", Now())
		mustRemove[any](t, s, "test", Now())
		require.True(t, s.Get().Equal(NewValues[any]("another")))
	})

	t.Run("remove of an absent value is recorded", func(t *testing.T) {
		s := setup(t)
		mustRemove[any](t, s, 345, Now())
		require.True(t, s.Get().Equal(NewValues[any]("test")))

		_, removes := s.Len()
		require.Equal(t, 1, removes)
	})

	t.Run("add after remove", func(t *testing.T) {
		s := setup(t)
		mustAdd[any](t, s, 34, Now())
		mustRemove[any](t, s, 34, Now())
		mustAdd[any](t, s, 34, Now())
		require.True(t, s.Get().Equal(NewValues[any]("test", 34)))
	})

	t.Run("chaining", func(t *testing.T) {
		s := setup(t)
		_, err := chain(s.Add("another", Now())).Add("and another", Now())
		require.NoError(t, err)
		require.True(t, s.Get().Equal(NewValues[any]("test", "another", "and another")))
	})
}

// chain fails loudly so that a chained call can be written inline.
func chain[T comparable](s *Set[T], err error) *Set[T] {
	if err != nil {
		panic(err)
	}
	return s
}

func TestSet_Stamps(t *testing.T) {
	t.Run("idempotent add", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "x", At(at(5)))
		mustAdd(t, s, "x", At(at(5)))

		history, ok := s.AddHistory("x")
		require.True(t, ok)
		require.Equal(t, []time.Time{at(5)}, history)
	})

	t.Run("remove wins on equal timestamps", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "x", At(at(5)))
		mustRemove(t, s, "x", At(at(5)))
		require.False(t, s.Exists("x"))
		require.Zero(t, s.Get().Len())
	})

	t.Run("late add with an older timestamp does not resurrect", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "x", At(at(1)))
		mustRemove(t, s, "x", At(at(3)))
		mustAdd(t, s, "x", At(at(2)))
		require.False(t, s.Exists("x"))
	})

	t.Run("history is unioned", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "x", At(at(4)))
		mustAdd(t, s, "x", WithHistory(at(2), at(4), at(6)))

		history, ok := s.AddHistory("x")
		require.True(t, ok)
		require.Equal(t, []time.Time{at(2), at(4), at(6)}, history)
	})

	t.Run("empty history is rejected", func(t *testing.T) {
		s, _ := newManualSet[string]()
		_, err := s.Add("x", WithHistory())
		require.ErrorIs(t, err, ErrEmptyHistory)

		adds, _ := s.Len()
		require.Zero(t, adds)
	})

	t.Run("now reads the injected clock", func(t *testing.T) {
		s, clk := newManualSet[string]()
		expected := clk.Peek()
		mustAdd(t, s, "x", Now())

		history, _ := s.AddHistory("x")
		require.Equal(t, []time.Time{expected}, history)
	})

	t.Run("default clock is strictly increasing", func(t *testing.T) {
		s := New[int](nil)
		for i := 0; i < 100; i++ {
			mustAdd(t, s, 1, Now())
		}

		history, _ := s.AddHistory(1)
		require.Len(t, history, 100)
	})
}

func TestSet_TimeTravel(t *testing.T) {
	t.Run("existence at a past instant", func(t *testing.T) {
		s, clk := newManualSet[string]()
		for _, v := range []string{"a", "b", "c"} {
			mustAdd(t, s, v, Now())
		}
		retrieval := clk.Now()
		for _, v := range []string{"d", "e", "f"} {
			mustAdd(t, s, v, Now())
		}

		for _, v := range []string{"a", "b", "c"} {
			require.True(t, s.ExistsAt(v, retrieval), v)
		}
		for _, v := range []string{"d", "e", "f"} {
			require.False(t, s.ExistsAt(v, retrieval), v)
		}
		for _, v := range []string{"a", "b", "c", "d", "e", "f"} {
			require.True(t, s.Exists(v), v)
		}
		require.True(t, s.GetAt(retrieval).Equal(NewValues("a", "b", "c")))
	})

	t.Run("removal after the queried instant is invisible", func(t *testing.T) {
		s, clk := newManualSet[string]()
		for _, v := range []string{"a", "b", "c"} {
			mustAdd(t, s, v, Now())
		}
		retrieval := clk.Now()
		mustAdd(t, s, "d", Now())
		mustRemove(t, s, "a", Now())
		mustAdd(t, s, "e", Now())

		require.True(t, s.ExistsAt("a", retrieval))
		require.False(t, s.Exists("a"))
		require.True(t, s.GetAt(retrieval).Equal(NewValues("a", "b", "c")))
		require.True(t, s.Get().Equal(NewValues("b", "c", "d", "e")))
	})

	t.Run("add remove add timeline", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "x", At(at(1)))
		mustRemove(t, s, "x", At(at(2)))
		mustAdd(t, s, "x", At(at(3)))

		require.False(t, s.ExistsAt("x", at(0)))
		require.True(t, s.ExistsAt("x", at(1)))
		require.False(t, s.ExistsAt("x", at(2)))
		require.True(t, s.ExistsAt("x", at(3)))
		require.True(t, s.Exists("x"))
	})

	t.Run("queries before the first event see an empty set", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "x", At(at(10)))
		require.Zero(t, s.GetAt(at(9)).Len())
	})
}

func TestSet_Merge(t *testing.T) {
	t.Run("merge of two replicas with history", func(t *testing.T) {
		clk := clock.NewManual(epoch, time.Second)
		one := New[string](clk)
		two := New[string](clk)

		for _, v := range []string{"a", "b", "c"} {
			mustAdd(t, one, v, Now())
		}
		beforeFirstAdd := clk.Now()
		for _, v := range []string{"c", "d", "e"} {
			mustAdd(t, two, v, Now())
		}
		beforeFirstRemove := clk.Now()
		mustRemove(t, two, "a", Now())
		beforeSecondAdd := clk.Now()
		mustAdd(t, two, "a", Now())

		_, err := one.Merge(two)
		require.NoError(t, err)

		require.True(t, one.Get().Equal(NewValues("a", "b", "c", "d", "e")))
		require.True(t, one.GetAt(beforeFirstAdd).Equal(NewValues("a", "b", "c")))
		require.True(t, one.GetAt(beforeFirstRemove).Equal(NewValues("a", "b", "c", "d", "e")))
		require.True(t, one.GetAt(beforeSecondAdd).Equal(NewValues("b", "c", "d", "e")))
		require.True(t, one.Get().Equal(two.Get()))
		require.Equal(t, one.State(), two.State())
	})

	t.Run("remove present on one side only is copied with its timestamps", func(t *testing.T) {
		a, _ := newManualSet[string]()
		b, _ := newManualSet[string]()
		mustAdd(t, a, "x", At(at(1)))
		mustRemove(t, b, "x", At(at(2)))

		_, err := a.Merge(b)
		require.NoError(t, err)

		require.False(t, a.Exists("x"))
		require.False(t, b.Exists("x"))

		history, ok := a.RemoveHistory("x")
		require.True(t, ok)
		require.Equal(t, []time.Time{at(2)}, history)

		history, ok = b.AddHistory("x")
		require.True(t, ok)
		require.Equal(t, []time.Time{at(1)}, history)
	})

	t.Run("merge with itself or nil is a no-op", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "x", At(at(1)))
		before := s.State()

		_, err := s.Merge(s)
		require.NoError(t, err)
		_, err = s.Merge(nil)
		require.NoError(t, err)
		require.Equal(t, before, s.State())
	})

	t.Run("concurrent merges in opposite directions", func(t *testing.T) {
		a, _ := newManualSet[int]()
		b, _ := newManualSet[int]()
		for i := 0; i < 50; i++ {
			mustAdd(t, a, i, At(at(i)))
			mustAdd(t, b, i+50, At(at(i)))
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = a.Merge(b)
			}()
			go func() {
				defer wg.Done()
				_, _ = b.Merge(a)
			}()
		}
		wg.Wait()

		require.Equal(t, 100, a.Get().Len())
		require.Equal(t, a.State(), b.State())
	})
}

func TestSet_CRDTProperties(t *testing.T) {
	// three replicas with overlapping, conflicting histories
	build := func(t *testing.T) (*Set[string], *Set[string], *Set[string]) {
		a, _ := newManualSet[string]()
		b, _ := newManualSet[string]()
		c, _ := newManualSet[string]()

		mustAdd(t, a, "e1", At(at(1)))
		mustRemove(t, a, "e2", At(at(4)))

		mustAdd(t, b, "e2", At(at(2)))
		mustAdd(t, b, "e1", At(at(5)))

		mustAdd(t, c, "e1", At(at(3)))
		mustRemove(t, c, "e1", At(at(5)))
		mustAdd(t, c, "e3", At(at(6)))

		return a, b, c
	}

	t.Run("commutativity", func(t *testing.T) {
		a, b, _ := build(t)
		require.Equal(t, Union(a, b).State(), Union(b, a).State())
	})

	t.Run("associativity", func(t *testing.T) {
		a, b, c := build(t)
		left := Union(Union(a, b), c)
		right := Union(a, Union(b, c))
		require.Equal(t, left.State(), right.State())
		require.True(t, left.Get().Equal(NewValues("e3")))
	})

	t.Run("idempotence", func(t *testing.T) {
		a, _, _ := build(t)
		require.Equal(t, a.State(), Union(a, a).State())
	})

	t.Run("union leaves its inputs untouched", func(t *testing.T) {
		a, b, _ := build(t)
		beforeA, beforeB := a.State(), b.State()
		_ = Union(a, b)
		require.Equal(t, beforeA, a.State())
		require.Equal(t, beforeB, b.State())
	})

	t.Run("merge and union agree", func(t *testing.T) {
		a, b, _ := build(t)
		union := Union(a, b)

		_, err := a.Merge(b)
		require.NoError(t, err)
		require.Equal(t, union.State(), a.State())
		require.Equal(t, union.State(), b.State())
	})

	t.Run("eventual convergence", func(t *testing.T) {
		a, b, c := build(t)
		for _, pair := range [][2]*Set[string]{{a, b}, {b, c}, {a, b}} {
			_, err := pair[0].Merge(pair[1])
			require.NoError(t, err)
		}

		require.Equal(t, a.State(), b.State())
		require.Equal(t, b.State(), c.State())
		require.True(t, a.Get().Equal(NewValues("e3")))
	})

	t.Run("logs only grow", func(t *testing.T) {
		a, b, _ := build(t)
		beforeAdds, beforeRemoves := a.Len()
		_, err := a.Merge(b)
		require.NoError(t, err)

		adds, removes := a.Len()
		require.GreaterOrEqual(t, adds, beforeAdds)
		require.GreaterOrEqual(t, removes, beforeRemoves)
	})
}

func TestSet_State(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		s, clk := newManualSet[string]()
		mustAdd(t, s, "a", At(at(1)))
		mustRemove(t, s, "b", At(at(2)))

		restored, err := FromState(s.State(), clk)
		require.NoError(t, err)
		require.Equal(t, s.State(), restored.State())
		require.True(t, restored.Get().Equal(NewValues("a")))
	})

	t.Run("exported state is detached", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "a", At(at(1)))

		st := s.State()
		st.Adds["a"][0] = at(100)
		st.Adds["z"] = []time.Time{at(1)}

		history, _ := s.AddHistory("a")
		require.Equal(t, []time.Time{at(1)}, history)
		require.False(t, s.Exists("z"))
	})

	t.Run("apply only modifies the receiver", func(t *testing.T) {
		s, _ := newManualSet[string]()
		mustAdd(t, s, "a", At(at(1)))

		err := s.Apply(State[string]{
			Adds:    map[string][]time.Time{"a": {at(3)}, "b": {at(2)}},
			Removes: map[string][]time.Time{"a": {at(2)}},
		})
		require.NoError(t, err)
		require.True(t, s.Get().Equal(NewValues("a", "b")))

		history, _ := s.AddHistory("a")
		require.Equal(t, []time.Time{at(1), at(3)}, history)
	})

	t.Run("invalid state is rejected atomically", func(t *testing.T) {
		s, _ := newManualSet[string]()
		err := s.Apply(State[string]{
			Adds:    map[string][]time.Time{"a": {at(1)}},
			Removes: map[string][]time.Time{"b": {}},
		})
		require.ErrorIs(t, err, ErrEmptyHistory)

		adds, removes := s.Len()
		require.Zero(t, adds)
		require.Zero(t, removes)
	})
}

func TestSet_String(t *testing.T) {
	s, _ := newManualSet[string]()
	mustAdd(t, s, "b", At(at(1)))
	mustAdd(t, s, "a", At(at(0)))
	mustRemove(t, s, "a", At(at(2)))

	expected := fmt.Sprintf("LWW Set{adds: [%s, %s], removes: [%s]}",
		"(value: a, timestamps: [2024-03-01T12:00:00Z])",
		"(value: b, timestamps: [2024-03-01T12:00:01Z])",
		"(value: a, timestamps: [2024-03-01T12:00:02Z])",
	)
	require.Equal(t, expected, s.String())
}

func TestSet_ConcurrentWriters(t *testing.T) {
	s := New[int](nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = s.Add(w*100+i, Now())
				if i%2 == 0 {
					_, _ = s.Remove(w*100+i, Now())
				}
				_ = s.Exists(w*100 + i)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 400, s.Get().Len())
}
