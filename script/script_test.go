package script

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	preimage  []byte
	timestamp uint64
}

func (f fakeContext) SigningPreimage() []byte { return f.preimage }
func (f fakeContext) TxTimestamp() uint64      { return f.timestamp }

func TestExecuteEqualVerifySuccess(t *testing.T) {
	unlock := New().Append(Push([]byte("a"))).Append(Push([]byte("a")))
	lock := New().Append(Op{Code: OpEqualVerify}).Append(Push([]byte{0x01}))
	require.True(t, Execute(unlock, lock, fakeContext{}))
}

func TestExecuteEqualVerifyFailure(t *testing.T) {
	unlock := New().Append(Push([]byte("a"))).Append(Push([]byte("b")))
	lock := New().Append(Op{Code: OpEqualVerify}).Append(Push([]byte{0x01}))
	require.False(t, Execute(unlock, lock, fakeContext{}))
}

func TestExecuteStackUnderflow(t *testing.T) {
	lock := New().Append(Op{Code: OpDup})
	require.False(t, Execute(New(), lock, fakeContext{}))
}

func TestExecuteHash256Dup(t *testing.T) {
	unlock := New().Append(Push([]byte("payload")))
	lock := New().Append(Op{Code: OpHash256}).Append(Op{Code: OpDup}).Append(Op{Code: OpEqualVerify}).Append(Push([]byte{0x01}))
	require.True(t, Execute(unlock, lock, fakeContext{}))
}

func TestExecuteCheckLockTimeVerify(t *testing.T) {
	lockTime := make([]byte, 8)
	binary.BigEndian.PutUint64(lockTime, 1000)

	notYet := New().Append(Push(lockTime)).Append(Op{Code: OpCheckLockTimeVerify})
	require.False(t, Execute(New(), notYet, fakeContext{timestamp: 999}))

	reached := New().Append(Push(lockTime)).Append(Op{Code: OpCheckLockTimeVerify})
	require.False(t, Execute(New(), reached, fakeContext{timestamp: 1000}))
	// CLTV alone leaves the lock-time bytes on the stack, which aren't
	// the single 0x01 success byte — a real lock script pushes 0x01
	// after the check, matching P2PKHLockScript's explicit CheckSig tail.
}

func TestP2PKHRoundTrip(t *testing.T) {
	pubKey := []byte{0x02, 0x03, 0x04}
	lock := P2PKHLockScript(pubKey)
	require.Len(t, lock.Ops, 5)
	require.Equal(t, OpDup, lock.Ops[0].Code)
	require.Equal(t, OpCheckSig, lock.Ops[4].Code)
}
