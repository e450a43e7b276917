package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerSignalResolvesWait(t *testing.T) {
	b := NewBroker()
	w := b.Register("payerfsp",
		Endpoint{Method: "put", URL: "/parties/MSISDN/123"},
		Endpoint{Method: "put", URL: "/parties/MSISDN/123/error"},
		time.Second)
	assert.Equal(t, 2, b.Pending())

	ok := b.Signal("payerfsp", "PUT", "/parties/MSISDN/123", map[string]string{"Content-Type": "application/json"}, map[string]any{"name": "x"})
	require.True(t, ok)

	msg, err := w.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "x"}, msg.Body)
	assert.Equal(t, "application/json", msg.Headers["Content-Type"])

	// error listener and timer are gone
	assert.Equal(t, 0, b.Pending())
}

func TestBrokerErrorCallbackRejects(t *testing.T) {
	b := NewBroker()
	w := b.Register("",
		Endpoint{Method: "PUT", URL: "/quotes/1"},
		Endpoint{Method: "PUT", URL: "/quotes/1/error"},
		time.Second)

	require.True(t, b.Signal("", "PUT", "/quotes/1/error", nil, map[string]any{"errorInformation": "bad"}))

	msg, err := w.Wait(context.Background())
	require.Error(t, err)

	var cbErr *CallbackError
	require.True(t, errors.As(err, &cbErr))
	assert.Equal(t, map[string]any{"errorInformation": "bad"}, cbErr.Callback.Body)
	assert.Equal(t, msg, cbErr.Callback)
	assert.Equal(t, 0, b.Pending())
}

func TestBrokerTimeoutRemovesListeners(t *testing.T) {
	b := NewBroker()
	start := time.Now()
	w := b.Register("",
		Endpoint{Method: "PUT", URL: "/transfers/1"},
		Endpoint{Method: "PUT", URL: "/transfers/1/error"},
		50*time.Millisecond)

	_, err := w.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, b.Pending())

	// a late callback finds nobody
	assert.False(t, b.Signal("", "PUT", "/transfers/1", nil, nil))
}

func TestBrokerNoDoubleResolve(t *testing.T) {
	b := NewBroker()
	w := b.Register("",
		Endpoint{Method: "PUT", URL: "/a"},
		Endpoint{Method: "PUT", URL: "/a/error"},
		time.Second)

	assert.True(t, b.Signal("", "PUT", "/a", nil, "first"))
	assert.False(t, b.Signal("", "PUT", "/a/error", nil, "second"))
	assert.False(t, w.Cancel(nil))

	msg, err := w.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Body)
}

func TestBrokerConcurrentSignalsSettleOnce(t *testing.T) {
	b := NewBroker()
	w := b.Register("",
		Endpoint{Method: "PUT", URL: "/race"},
		Endpoint{Method: "PUT", URL: "/race/error"},
		time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				b.Signal("", "PUT", "/race", nil, i)
			} else {
				b.Signal("", "PUT", "/race/error", nil, i)
			}
		}(i)
	}
	wg.Wait()

	select {
	case <-w.Done():
	default:
		t.Fatal("wait not settled")
	}
	assert.Equal(t, 0, b.Pending())
}

func TestBrokerCounterpartIsolation(t *testing.T) {
	b := NewBroker()
	wa := b.Register("fspA", Endpoint{Method: "PUT", URL: "/parties/1"}, Endpoint{}, time.Second)
	wb := b.Register("fspB", Endpoint{Method: "PUT", URL: "/parties/1"}, Endpoint{}, time.Second)

	require.True(t, b.Signal("fspA", "PUT", "/parties/1", nil, "a"))

	msg, err := wa.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", msg.Body)

	select {
	case <-wb.Done():
		t.Fatal("other counterpart settled")
	default:
	}
	assert.Equal(t, 1, b.Pending())
	wb.Cancel(nil)
	assert.Equal(t, 0, b.Pending())
}

func TestBrokerSameKeyDeliversToAll(t *testing.T) {
	b := NewBroker()
	w1 := b.Register("", Endpoint{Method: "PUT", URL: "/same"}, Endpoint{}, time.Second)
	w2 := b.Register("", Endpoint{Method: "PUT", URL: "/same"}, Endpoint{}, time.Second)

	require.True(t, b.Signal("", "PUT", "/same", nil, "x"))

	m1, err := w1.Wait(context.Background())
	require.NoError(t, err)
	m2, err := w2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestBrokerUnexpectedSignalDropped(t *testing.T) {
	b := NewBroker()
	assert.False(t, b.Signal("", "POST", "/nobody", nil, nil))
}

func TestWaitContextCancel(t *testing.T) {
	b := NewBroker()
	w := b.Register("", Endpoint{Method: "PUT", URL: "/ctx"}, Endpoint{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Pending())
}

func TestAwait(t *testing.T) {
	b := NewBroker()
	go func() {
		for b.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		b.Signal("", "put", "/await/", nil, "done")
	}()

	msg, err := b.Await(context.Background(), "", "PUT", "/await", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", msg.Body)
}
