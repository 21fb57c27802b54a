package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

type fakeProcess struct {
	cancels atomic.Int32
}

func (p *fakeProcess) Cancel() { p.cancels.Add(1) }

func newTestHub() (*Registry, *Broadcaster) {
	reg := NewRegistry(zap.NewNop())
	return reg, NewBroadcaster(reg, zap.NewNop())
}

func drain(sink *ChanSink) []int {
	var seqs []int
	for rec := range sink.C() {
		seqs = append(seqs, rec.Seq)
	}
	return seqs
}

func TestRegistryCreateGetDelete(t *testing.T) {
	reg, _ := newTestHub()
	proc := &fakeProcess{}

	assert.Nil(t, reg.Get("e1"))
	sess := reg.Create("e1", proc)
	assert.Same(t, sess, reg.Get("e1"))
	assert.Equal(t, domain.SessionStatusRunning, sess.Status())
	assert.Equal(t, 1, reg.Len())
	assert.Len(t, reg.Running(), 1)

	replacement := reg.Create("e1", nil)
	assert.Same(t, replacement, reg.Get("e1"), "create overwrites")

	reg.Delete("e1")
	assert.Nil(t, reg.Get("e1"))
	assert.Equal(t, int32(0), proc.cancels.Load(), "only the held process is cancelled")

	reg.Create("e2", proc)
	reg.Delete("e2")
	assert.Equal(t, int32(1), proc.cancels.Load())

	reg.Delete("missing")
}

func TestBroadcastUnknownSessionIsNoop(t *testing.T) {
	_, b := newTestHub()
	assert.False(t, b.Broadcast("ghost", domain.Message{Content: "late"}))
}

func TestBroadcastFansOutInOrder(t *testing.T) {
	reg, b := newTestHub()
	sess := reg.Create("e1", &fakeProcess{})

	s1, s2 := NewChanSink(16), NewChanSink(16)
	_, live := sess.Attach(s1)
	require.True(t, live)
	sess.Attach(s2)

	for i := 0; i < 5; i++ {
		require.True(t, b.Broadcast("e1", domain.Message{Role: "assistant", Content: "x"}))
	}
	sess.CloseSinks()

	want := []int{0, 1, 2, 3, 4}
	assert.Empty(t, cmp.Diff(want, drain(s1)))
	assert.Empty(t, cmp.Diff(want, drain(s2)))
	assert.Equal(t, 5, sess.Info().EventCount)
}

func TestAttachReplaysThenGoesLive(t *testing.T) {
	reg, b := newTestHub()
	reg.Create("e1", &fakeProcess{})

	for i := 0; i < 3; i++ {
		b.Broadcast("e1", domain.Log{Line: "before"})
	}

	sink := NewChanSink(16)
	sess, replay, live, err := b.AttachSink(context.Background(), "e1", sink)
	require.NoError(t, err)
	require.True(t, live)
	require.Len(t, replay, 3)

	b.Broadcast("e1", domain.Log{Line: "after"})
	sess.CloseSinks()

	var got []int
	for _, rec := range replay {
		got = append(got, rec.Seq)
	}
	got = append(got, drain(sink)...)
	assert.Empty(t, cmp.Diff([]int{0, 1, 2, 3}, got))
}

// Attaching while another goroutine broadcasts must yield every event
// exactly once across replay and live delivery.
func TestAttachConcurrentWithBroadcast(t *testing.T) {
	reg, b := newTestHub()
	sess := reg.Create("e1", &fakeProcess{})
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			b.Broadcast("e1", domain.Log{Line: "x"})
		}
	}()

	type result struct {
		replay []Record
		sink   *ChanSink
	}
	var results []result
	for i := 0; i < 10; i++ {
		sink := NewChanSink(total)
		replay, live := sess.Attach(sink)
		require.True(t, live)
		results = append(results, result{replay: replay, sink: sink})
		time.Sleep(time.Millisecond)
	}
	wg.Wait()
	sess.CloseSinks()

	want := make([]int, total)
	for i := range want {
		want[i] = i
	}
	for _, r := range results {
		var got []int
		for _, rec := range r.replay {
			got = append(got, rec.Seq)
		}
		got = append(got, drain(r.sink)...)
		assert.Empty(t, cmp.Diff(want, got))
	}
}

func TestAttachToTerminalSessionDoesNotGoLive(t *testing.T) {
	reg, b := newTestHub()
	proc := &fakeProcess{}
	sess := reg.Create("e3", proc)
	b.Broadcast("e3", domain.Error{Message: "bad"})
	require.True(t, sess.Finish(proc, Outcome{
		Status:   domain.SessionStatusFailed,
		ExitCode: domain.IntPtr(1),
		Final:    domain.Done{ExitCode: domain.IntPtr(1), Status: domain.SessionStatusFailed},
	}))

	sink := NewChanSink(4)
	_, replay, live, err := b.AttachSink(context.Background(), "e3", sink)
	require.NoError(t, err)
	assert.False(t, live)
	assert.Len(t, replay, 2)
	assert.Equal(t, 0, sess.Info().SinkCount)

	done := sess.TerminalEvent()
	assert.Equal(t, domain.SessionStatusFailed, done.Status)
	assert.Equal(t, 1, *done.ExitCode)
}

func TestAttachSinkNotFound(t *testing.T) {
	_, b := newTestHub()
	_, _, _, err := b.AttachSink(context.Background(), "nope", NewChanSink(1))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFinishClosesSinksExactlyOnce(t *testing.T) {
	reg, _ := newTestHub()
	proc := &fakeProcess{}
	sess := reg.Create("e1", proc)
	sink := NewChanSink(8)
	sess.Attach(sink)

	out := Outcome{Status: domain.SessionStatusAborted, Final: domain.Error{Message: "aborted"}}
	assert.True(t, sess.Finish(nil, out))
	assert.False(t, sess.Finish(nil, out))

	assert.True(t, sink.Closed())
	assert.Equal(t, []int{0}, drain(sink))
	info := sess.Info()
	assert.Equal(t, domain.SessionStatusAborted, info.Status)
	assert.Equal(t, 0, info.SinkCount)
	assert.Equal(t, 1, info.EventCount)
	assert.Nil(t, sess.Process())
}

func TestFinishRejectsStaleOwner(t *testing.T) {
	reg, _ := newTestHub()
	oldProc, newProc := &fakeProcess{}, &fakeProcess{}
	sess := reg.Create("e1", oldProc)
	require.True(t, sess.SetProcess(newProc))

	assert.False(t, sess.Finish(oldProc, Outcome{Status: domain.SessionStatusCompleted}))
	_, ok := sess.PublishFrom(oldProc, domain.Log{Line: "stale"})
	assert.False(t, ok)

	_, ok = sess.PublishFrom(newProc, domain.Log{Line: "fresh"})
	assert.True(t, ok)
	assert.True(t, sess.Finish(newProc, Outcome{Status: domain.SessionStatusCompleted}))
	assert.False(t, sess.SetProcess(oldProc))
}

func TestSlowSinkIsEvicted(t *testing.T) {
	reg, b := newTestHub()
	sess := reg.Create("e1", &fakeProcess{})
	slow, fast := NewChanSink(1), NewChanSink(8)
	sess.Attach(slow)
	sess.Attach(fast)

	b.Broadcast("e1", domain.Log{Line: "1"})
	b.Broadcast("e1", domain.Log{Line: "2"})

	assert.True(t, slow.Closed())
	assert.False(t, fast.Closed())
	assert.Equal(t, 1, sess.Info().SinkCount)
	assert.ErrorIs(t, slow.Send(Record{}), ErrSinkClosed)

	var got []Record
	for rec := range slow.C() {
		got = append(got, rec)
	}
	require.Len(t, got, 2)
	assert.Equal(t, domain.Log{Line: "1"}, got[0].Event)
	notice, ok := got[1].Event.(domain.Error)
	require.True(t, ok, "last frame is an error notice")
	assert.Contains(t, notice.Message, "missed events from seq 1")
	assert.Contains(t, string(got[1].Data), `"type":"error"`)
	assert.Len(t, sess.Log(), 2, "notice is not part of the log")
}

func TestAttachDetachesWhenContextEnds(t *testing.T) {
	reg, _ := newTestHub()
	sess := reg.Create("e1", &fakeProcess{})
	ctx, cancel := context.WithCancel(context.Background())
	sink := NewChanSink(4)

	_, live := AttachTo(ctx, sess, sink)
	require.True(t, live)
	assert.Equal(t, 1, sess.Info().SinkCount)

	cancel()
	assert.Eventually(t, func() bool {
		return sess.Info().SinkCount == 0 && sink.Closed()
	}, time.Second, 5*time.Millisecond)
}

func TestAgentToken(t *testing.T) {
	reg, _ := newTestHub()
	sess := reg.Create("e1", nil)
	sess.SetAgentToken("")
	assert.Empty(t, sess.AgentToken())
	sess.SetAgentToken("s1")
	assert.Equal(t, "s1", sess.Info().AgentToken)
}
