package substate

import (
	"testing"

	"github.com/leet4tari/tari-dan/lib"
	"github.com/stretchr/testify/require"
)

func TestLocksCompatibilityMatrix(t *testing.T) {
	cases := []struct {
		holder, requester lib.LockType
		ok                bool
	}{
		{lib.LockRead, lib.LockRead, true},
		{lib.LockRead, lib.LockOutput, true},
		{lib.LockOutput, lib.LockRead, true},
		{lib.LockOutput, lib.LockOutput, true},
		{lib.LockRead, lib.LockWrite, false},
		{lib.LockWrite, lib.LockRead, false},
		{lib.LockWrite, lib.LockWrite, false},
		{lib.LockOutput, lib.LockWrite, false},
	}
	for _, c := range cases {
		require.Equal(t, c.ok, compatible(c.holder, c.requester))
	}
}

func TestLocksAcquireConflict(t *testing.T) {
	l := NewLocks()
	require.NoError(t, l.Acquire(&Lock{BlockID: lib.HexBytes("b1"), TxID: "tx1", SubstateID: "s1", Version: 1, LockType: lib.LockRead}))
	require.NoError(t, l.Acquire(&Lock{BlockID: lib.HexBytes("b2"), TxID: "tx2", SubstateID: "s1", Version: 1, LockType: lib.LockRead}))
	err := l.Acquire(&Lock{BlockID: lib.HexBytes("b3"), TxID: "tx3", SubstateID: "s1", Version: 1, LockType: lib.LockWrite})
	require.Error(t, err)
}

func TestLocksReleaseForBlockFreesHolders(t *testing.T) {
	l := NewLocks()
	b1 := lib.HexBytes("b1")
	require.NoError(t, l.Acquire(&Lock{BlockID: b1, TxID: "tx1", SubstateID: "s1", Version: 1, LockType: lib.LockWrite}))
	l.ReleaseForBlock(b1)
	require.NoError(t, l.Acquire(&Lock{BlockID: lib.HexBytes("b2"), TxID: "tx2", SubstateID: "s1", Version: 1, LockType: lib.LockWrite}))
}
