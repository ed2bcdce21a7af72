package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	published []message
	flushed   int
	err       error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, message{subject, data})
	return nil
}

func (c *fakeConn) Flush() error {
	c.flushed++
	return nil
}

func TestNATSPublisher_Publish(t *testing.T) {
	now := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	conn := &fakeConn{}
	p := NewPublisher(conn, "soundings", WithClock(clockwork.NewFakeClockAt(now)))

	init := time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)
	err := p.Publish(Event{
		Action:   ActionAdded,
		Archive:  "/data/archive",
		Site:     "KMSO",
		Type:     "GFS",
		InitTime: init,
		FileName: "2024-04-26T1200Z_GFS_KMSO.gz",
	})
	require.NoError(t, err)
	require.Len(t, conn.published, 1)
	assert.Equal(t, "soundings.added", conn.published[0].subject)

	var got Event
	require.NoError(t, json.Unmarshal(conn.published[0].data, &got))
	assert.Equal(t, ActionAdded, got.Action)
	assert.Equal(t, "KMSO", got.Site)
	assert.Equal(t, "GFS", got.Type)
	assert.True(t, init.Equal(got.InitTime))
	assert.True(t, now.Equal(got.At))
}

func TestNATSPublisher_KeepsExplicitTime(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "wx", WithClock(clockwork.NewFakeClock()))

	at := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(Event{Action: ActionRemoved, At: at}))

	var got Event
	require.NoError(t, json.Unmarshal(conn.published[0].data, &got))
	assert.Equal(t, "wx.removed", conn.published[0].subject)
	assert.True(t, at.Equal(got.At))
}

func TestNATSPublisher_Errors(t *testing.T) {
	conn := &fakeConn{err: errors.New("connection closed")}
	p := NewPublisher(conn, "soundings")

	err := p.Publish(Event{Action: ActionAdded, FileName: "x.gz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.gz")
}

func TestNATSPublisher_CloseFlushes(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "soundings")
	require.NoError(t, p.Close())
	assert.Equal(t, 1, conn.flushed)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(Event{Action: ActionAdded}))
	assert.NoError(t, p.Close())
}
