package db

import (
	"errors"
	"fmt"
	"posnode/interfaces"
	"posnode/types"
	"strconv"

	"github.com/dgraph-io/badger/v2"
)

// PutBlock 在一个事务里写入区块、高度映射、交易索引、key image 和输出。
// 该高度已有区块时返回 false，不做任何修改。
func (manager *Manager) PutBlock(block *types.Block) (bool, error) {
	db, err := manager.db()
	if err != nil {
		return false, err
	}
	saved := false
	err = db.Update(func(txn *badger.Txn) error {
		if _, err := getValue(txn, KeyHeight(block.Height)); err == nil {
			return nil
		} else if !errors.Is(err, interfaces.ErrNotFound) {
			return err
		}

		if err := setEncoded(txn, KeyBlockData(block.Hash), block); err != nil {
			return err
		}
		if err := txn.Set([]byte(KeyHeight(block.Height)), block.Hash.Bytes()); err != nil {
			return err
		}
		for i := range block.Txs {
			tx := &block.Txs[i]
			idx := types.TxBlockIndex{TxnId: tx.TxnId, Height: block.Height, Block: block.Hash}
			if err := setEncoded(txn, KeyTxIndex(tx.TxnId), &idx); err != nil {
				return err
			}
			for _, image := range tx.KeyImages() {
				if err := txn.Set([]byte(KeyKeyImage(image)), tx.TxnId.Bytes()); err != nil {
					return err
				}
			}
			for j := range tx.Vout {
				if err := setEncoded(txn, KeyOutput(tx.Vout[j].C), &tx.Vout[j]); err != nil {
					return err
				}
			}
		}
		if err := addBlockCount(txn, 1); err != nil {
			return err
		}
		saved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("put block %s: %w", block.Hash.Short(), err)
	}
	if saved {
		manager.Logger.Debug("[DB] saved block height=%d hash=%s txs=%d", block.Height, block.Hash.Short(), len(block.Txs))
	}
	return saved, nil
}

// DeleteBlock 删除区块及其全部索引
func (manager *Manager) DeleteBlock(hash types.Hash) error {
	db, err := manager.db()
	if err != nil {
		return err
	}
	err = db.Update(func(txn *badger.Txn) error {
		block := &types.Block{}
		if err := getDecoded(txn, KeyBlockData(hash), block); err != nil {
			return err
		}
		for i := range block.Txs {
			tx := &block.Txs[i]
			if err := txn.Delete([]byte(KeyTxIndex(tx.TxnId))); err != nil {
				return err
			}
			for _, image := range tx.KeyImages() {
				if err := txn.Delete([]byte(KeyKeyImage(image))); err != nil {
					return err
				}
			}
			for j := range tx.Vout {
				if err := txn.Delete([]byte(KeyOutput(tx.Vout[j].C))); err != nil {
					return err
				}
			}
		}
		if err := txn.Delete([]byte(KeyHeight(block.Height))); err != nil {
			return err
		}
		if err := txn.Delete([]byte(KeyBlockData(hash))); err != nil {
			return err
		}
		return addBlockCount(txn, -1)
	})
	if err != nil {
		return fmt.Errorf("delete block %s: %w", hash.Short(), err)
	}
	manager.Logger.Debug("[DB] deleted block hash=%s", hash.Short())
	return nil
}

func addBlockCount(txn *badger.Txn, delta int64) error {
	var count int64
	val, err := getValue(txn, KeyBlockCount())
	switch {
	case err == nil:
		count, err = strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return err
		}
	case !errors.Is(err, interfaces.ErrNotFound):
		return err
	}
	count += delta
	if count < 0 {
		count = 0
	}
	return txn.Set([]byte(KeyBlockCount()), []byte(strconv.FormatInt(count, 10)))
}

// GetBlock 根据区块哈希获取
func (manager *Manager) GetBlock(hash types.Hash) (*types.Block, error) {
	db, err := manager.db()
	if err != nil {
		return nil, err
	}
	block := &types.Block{}
	err = db.View(func(txn *badger.Txn) error {
		return getDecoded(txn, KeyBlockData(hash), block)
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// GetBlockByHeight 根据高度获取
func (manager *Manager) GetBlockByHeight(height uint64) (*types.Block, error) {
	db, err := manager.db()
	if err != nil {
		return nil, err
	}
	block := &types.Block{}
	err = db.View(func(txn *badger.Txn) error {
		raw, err := getValue(txn, KeyHeight(height))
		if err != nil {
			return err
		}
		hash, err := types.HashFromBytes(raw)
		if err != nil {
			return err
		}
		return getDecoded(txn, KeyBlockData(hash), block)
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// GetBlocks 高度 [from, from+count)
func (manager *Manager) GetBlocks(from, count uint64) ([]*types.Block, error) {
	db, err := manager.db()
	if err != nil {
		return nil, err
	}
	blocks := make([]*types.Block, 0, count)
	err = db.View(func(txn *badger.Txn) error {
		for h := from; h < from+count; h++ {
			raw, err := getValue(txn, KeyHeight(h))
			if errors.Is(err, interfaces.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			hash, err := types.HashFromBytes(raw)
			if err != nil {
				return err
			}
			block := &types.Block{}
			if err := getDecoded(txn, KeyBlockData(hash), block); err != nil {
				return err
			}
			blocks = append(blocks, block)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// FindBlock 从最高的区块往回找
func (manager *Manager) FindBlock(match func(*types.Block) bool) (*types.Block, error) {
	db, err := manager.db()
	if err != nil {
		return nil, err
	}
	var found *types.Block
	err = db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, PrefixHeight(), true, func(_ string, val []byte) (bool, error) {
			hash, err := types.HashFromBytes(val)
			if err != nil {
				return false, err
			}
			block := &types.Block{}
			if err := getDecoded(txn, KeyBlockData(hash), block); err != nil {
				return false, err
			}
			if match(block) {
				found = block
				return false, nil
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, interfaces.ErrNotFound
	}
	return found, nil
}

// BlockCount 已存储的区块数
func (manager *Manager) BlockCount() (uint64, error) {
	val, err := manager.Read(KeyBlockCount())
	if errors.Is(err, interfaces.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(val), 10, 64)
}

// BlockHeight 最高区块的高度；空库返回 ErrNotFound
func (manager *Manager) BlockHeight() (uint64, error) {
	db, err := manager.db()
	if err != nil {
		return 0, err
	}
	var (
		height uint64
		found  bool
	)
	err = db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, PrefixHeight(), true, func(key string, _ []byte) (bool, error) {
			h, err := strconv.ParseUint(key[len(PrefixHeight()):], 10, 64)
			if err != nil {
				return false, err
			}
			height, found = h, true
			return false, nil
		})
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, interfaces.ErrNotFound
	}
	return height, nil
}
