// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	enabled bool
	err     error
	got     []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingNotifier) Enabled() bool { return r.enabled }

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
		return Notification{}
	}
}

func TestNew(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	a := New("t", "b", TagReminder, at)
	b := New("t", "b", TagReminder, at)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, at, a.Time)
}

func TestHub_FanOut(t *testing.T) {
	h := NewHub(nil)
	one, unsubOne := h.Subscribe(4)
	two, unsubTwo := h.Subscribe(4)
	defer unsubTwo()
	assert.Equal(t, 2, h.Subscribers())

	n := New("hello", "world", TagMilestone, time.Now())
	require.NoError(t, h.Notify(context.Background(), n))
	assert.Equal(t, n, receive(t, one))
	assert.Equal(t, n, receive(t, two))

	unsubOne()
	unsubOne()
	assert.Equal(t, 1, h.Subscribers())
	_, open := <-one
	assert.False(t, open)
}

func TestHub_DropsForFullSubscriber(t *testing.T) {
	h := NewHub(nil)
	slow, unsub := h.Subscribe(1)
	defer unsub()

	ctx := context.Background()
	require.NoError(t, h.Notify(ctx, New("a", "", "", time.Now())))
	require.NoError(t, h.Notify(ctx, New("b", "", "", time.Now())))

	assert.Equal(t, "a", receive(t, slow).Title)
	assert.Equal(t, int64(1), h.Dropped())
}

func TestHub_Enabled(t *testing.T) {
	h := NewHub(nil)
	assert.True(t, h.Enabled())
	h.SetEnabled(false)
	assert.False(t, h.Enabled())
}

func TestMulti(t *testing.T) {
	on := &recordingNotifier{enabled: true}
	off := &recordingNotifier{}
	failing := &recordingNotifier{enabled: true, err: errors.New("boom")}

	m := Multi{on, off}
	assert.True(t, m.Enabled())
	require.NoError(t, m.Notify(context.Background(), New("x", "", "", time.Now())))
	assert.Len(t, on.got, 1)
	assert.Empty(t, off.got)

	m = Multi{failing, on}
	err := m.Notify(context.Background(), New("y", "", "", time.Now()))
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, on.got, 2, "later notifiers still run")

	assert.False(t, Multi{off}.Enabled())
	assert.False(t, Multi{}.Enabled())
}

func TestLogNotifier(t *testing.T) {
	l := NewLogNotifier(nil)
	assert.True(t, l.Enabled())
	assert.NoError(t, l.Notify(context.Background(), New("x", "y", TagReminder, time.Now())))
}
