package actor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqs(list []Status) []uint64 {
	out := make([]uint64, len(list))
	for i, s := range list {
		out[i] = s.Seq
	}
	return out
}

func TestBoardCoalescesIntermediateReports(t *testing.T) {
	b := NewBoard()
	act := Dock()
	b.Report(Status{Ship: "A", State: Idle, Seq: 1})
	b.Report(Status{Ship: "A", State: Working, Action: act, Seq: 2})
	b.Report(Status{Ship: "A", State: Idle, Action: act, Seq: 3})
	b.Report(Status{Ship: "A", State: OnCooldown, Seq: 4})

	got := b.Drain()
	require.Equal(t, []uint64{3, 4}, seqs(got))
	assert.Equal(t, Idle, got[0].State)
	assert.Equal(t, OnCooldown, got[1].State)
	assert.Empty(t, b.Drain())
}

func TestBoardKeepsEveryOutcome(t *testing.T) {
	b := NewBoard()
	act := Orbit()
	for i, st := range []State{Working, Idle, Working, Error, Idle} {
		s := Status{Ship: "A", State: st, Action: act, Seq: uint64(i + 1)}
		if st == Error {
			s.Err = errors.New("boom")
		}
		b.Report(s)
	}
	got := b.Drain()
	assert.Equal(t, []uint64{2, 4, 5}, seqs(got))
}

func TestBoardIgnoresStaleReports(t *testing.T) {
	b := NewBoard()
	act := Dock()
	b.Report(Status{Ship: "A", State: Working, Action: act, Seq: 5})
	b.Report(Status{Ship: "A", State: Idle, Action: act, Seq: 3})
	got := b.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, Working, got[0].State)
}

func TestBoardOrdersShipsAndForgets(t *testing.T) {
	b := NewBoard()
	b.Report(Status{Ship: "B", State: Idle, Seq: 9})
	b.Report(Status{Ship: "A", State: Idle, Seq: 1})
	got := b.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Ship)
	assert.Equal(t, "B", got[1].Ship)

	b.Forget("B")
	b.Report(Status{Ship: "B", State: Idle, Seq: 1})
	got = b.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Seq)
}
