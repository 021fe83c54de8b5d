package events

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueue_EmptyPop(t *testing.T) {
	q := NewQueue()

	e, ok := q.TryPop()
	require.False(t, ok)
	require.Equal(t, Event{}, e)
	require.Nil(t, q.Drain())
	require.Equal(t, 0, q.Len())
}

func TestQueue_PushPopOrder(t *testing.T) {
	q := NewQueue()
	q.Push(Stdout("a"))
	q.Push(Stderr("b"))
	q.Push(System("c"))

	require.Equal(t, 3, q.Len())

	e, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, Stdout("a"), e)

	rest := q.Drain()
	require.Equal(t, []Event{Stderr("b"), System("c")}, rest)
	require.Equal(t, 0, q.Len())
}

func TestQueue_DrainResetsQueue(t *testing.T) {
	q := NewQueue()
	q.Push(Stdout("first"))
	require.Len(t, q.Drain(), 1)

	q.Push(Stdout("second"))
	require.Equal(t, []Event{Stdout("second")}, q.Drain())
}

// TestQueue_PerProducerFIFO pushes from several goroutines concurrently and
// checks each producer's events come out in the order it pushed them.
func TestQueue_PerProducerFIFO(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		producers := rapid.IntRange(1, 6).Draw(r, "producers")
		perProducer := rapid.IntRange(0, 200).Draw(r, "perProducer")

		q := NewQueue()
		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					q.Push(Stdout(fmt.Sprintf("%d:%d", p, i)))
				}
			}(p)
		}

		// Consume concurrently with producers, mixing both pop styles.
		var got []Event
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
	consume:
		for {
			select {
			case <-done:
				got = append(got, q.Drain()...)
				break consume
			default:
				if e, ok := q.TryPop(); ok {
					got = append(got, e)
				}
			}
		}

		require.Len(r, got, producers*perProducer)

		next := make([]int, producers)
		for _, e := range got {
			parts := strings.SplitN(e.Content, ":", 2)
			p, err := strconv.Atoi(parts[0])
			require.NoError(r, err)
			i, err := strconv.Atoi(parts[1])
			require.NoError(r, err)
			require.Equal(r, next[p], i, "producer %d out of order", p)
			next[p]++
		}
	})
}

func TestEventConstructors(t *testing.T) {
	require.Equal(t, Event{Content: "hello\n", Tag: TagStdinEcho}, Echo("hello"))
	require.Equal(t, Event{Content: "[System] Process is not running.\n", Tag: TagSystem}, System("Process is not running."))
}

func TestTagString(t *testing.T) {
	tests := []struct {
		tag  Tag
		want string
	}{
		{TagStdout, "stdout"},
		{TagStderr, "stderr"},
		{TagStdinEcho, "stdin"},
		{TagSystem, "system"},
		{Tag(99), "unknown"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.tag.String())
	}
}
