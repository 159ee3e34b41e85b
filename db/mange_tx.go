package db

import (
	"errors"
	"posnode/interfaces"
	"posnode/types"

	"github.com/dgraph-io/badger/v2"
)

// GetTransaction 通过交易索引找到所在区块再取出交易
func (manager *Manager) GetTransaction(id types.Hash) (*types.Transaction, *types.TxBlockIndex, error) {
	db, err := manager.db()
	if err != nil {
		return nil, nil, err
	}
	var (
		tx  *types.Transaction
		idx types.TxBlockIndex
	)
	err = db.View(func(txn *badger.Txn) error {
		if err := getDecoded(txn, KeyTxIndex(id), &idx); err != nil {
			return err
		}
		block := &types.Block{}
		if err := getDecoded(txn, KeyBlockData(idx.Block), block); err != nil {
			return err
		}
		for i := range block.Txs {
			if block.Txs[i].TxnId == id {
				tx = &block.Txs[i]
				return nil
			}
		}
		return interfaces.ErrNotFound
	})
	if err != nil {
		return nil, nil, err
	}
	return tx, &idx, nil
}

// KeyImageExists key image 是否已在链上
func (manager *Manager) KeyImageExists(image []byte) (bool, error) {
	_, err := manager.Read(KeyKeyImage(image))
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetOutput 按承诺查找链上输出
func (manager *Manager) GetOutput(commitment []byte) (*types.Vout, error) {
	val, err := manager.Read(KeyOutput(commitment))
	if err != nil {
		return nil, err
	}
	out := &types.Vout{}
	if err := types.Unmarshal(val, out); err != nil {
		return nil, err
	}
	return out, nil
}
