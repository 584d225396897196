package txpool

import (
	"testing"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name string
		from Stage
		kind lib.CommandKind
		ours bool
		to   Stage
		ok   bool
	}{
		{"new to local only", StageNew, lib.CmdLocalOnly, false, StageLocalOnly, true},
		{"new to prepared", StageNew, lib.CmdPrepare, false, StagePrepared, true},
		{"prepared requires ours", StagePrepared, lib.CmdLocalPrepare, false, StagePrepared, false},
		{"prepared to local prepared", StagePrepared, lib.CmdLocalPrepare, true, StageLocalPrepared, true},
		{"local prepared to all prepared", StageLocalPrepared, lib.CmdAllPrepare, false, StageAllPrepared, true},
		{"local prepared to some prepared", StageLocalPrepared, lib.CmdSomePrepare, false, StageSomePrepared, true},
		{"all prepared to local accepted", StageAllPrepared, lib.CmdLocalAccept, false, StageLocalAccepted, true},
		{"some prepared to local accepted", StageSomePrepared, lib.CmdLocalAccept, false, StageLocalAccepted, true},
		{"local accepted to all accepted", StageLocalAccepted, lib.CmdAllAccept, false, StageAllAccepted, true},
		{"local accepted to some accepted", StageLocalAccepted, lib.CmdSomeAccept, false, StageSomeAccepted, true},
		{"unrecognized stays put", StageNew, lib.CmdAllAccept, false, StageNew, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			to, ok := Transition(c.from, c.kind, c.ours)
			require.Equal(t, c.ok, ok)
			require.Equal(t, c.to, to)
		})
	}
}

func TestIsAcceptedTerminalStages(t *testing.T) {
	require.True(t, StageAllAccepted.IsAccepted())
	require.True(t, StageSomeAccepted.IsAccepted())
	require.True(t, StageLocalOnly.IsAccepted())
	require.False(t, StageNew.IsAccepted())
	require.False(t, StageLocalAccepted.IsAccepted())
}
