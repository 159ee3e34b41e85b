package wallet

import (
	"context"
	"testing"
	"time"

	"posnode/ringct"
	"posnode/types"
	"posnode/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStakeTransaction(t *testing.T) {
	s := NewSession(time.Minute, nil)
	key, err := utils.NewNodeKey("")
	require.NoError(t, err)

	tx, err := s.CreateStakeTransaction(context.Background(), 25, 2500, key.Address())
	require.NoError(t, err)
	require.Len(t, tx.Vout, 1)

	out := tx.Vout[0]
	assert.True(t, tx.IsCoinstake())
	assert.Equal(t, tx.ComputeID(), tx.TxnId)
	assert.Equal(t, uint64(2500), out.A)
	assert.True(t, ringct.VerifyClearCommitment(2500, out.P, out.C))
	assert.Len(t, out.N, 20)

	lockTime, err := utils.ParseLockTimeScript(out.S)
	require.NoError(t, err)
	assert.Greater(t, lockTime, time.Now().Unix())
}

func TestCreateStakeTransactionRejectsBadAddress(t *testing.T) {
	s := NewSession(0, nil)
	_, err := s.CreateStakeTransaction(context.Background(), 1, 1, "not-an-address")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.CreateStakeTransaction(ctx, 1, 1, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNotifyTracksOwnOutputs(t *testing.T) {
	s := NewSession(time.Minute, nil)
	mine, err := s.CreateStakeTransaction(context.Background(), 25, 2500, "")
	require.NoError(t, err)
	other, err := NewSession(time.Minute, nil).CreateStakeTransaction(context.Background(), 25, 900, "")
	require.NoError(t, err)

	s.Notify([]types.Transaction{*other, *mine})
	assert.Equal(t, uint64(2500), s.Balance())
	require.Len(t, s.Outputs(), 1)
	assert.Equal(t, mine.TxnId, s.Outputs()[0].TxnId)

	// 重复通知不会重复记账
	s.Notify([]types.Transaction{*mine})
	assert.Equal(t, uint64(2500), s.Balance())
}
