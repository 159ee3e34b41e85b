package db

import (
	"posnode/types"

	"github.com/dgraph-io/badger/v2"
)

// PutBlockGraph 按轮次保存 BlockGraph
func (manager *Manager) PutBlockGraph(graph *types.BlockGraph) error {
	db, err := manager.db()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return setEncoded(txn, KeyBlockGraph(graph.Round(), graph.ID()), graph)
	})
}

// GetBlockGraphs 某轮的全部 BlockGraph
func (manager *Manager) GetBlockGraphs(round uint64) ([]*types.BlockGraph, error) {
	db, err := manager.db()
	if err != nil {
		return nil, err
	}
	var graphs []*types.BlockGraph
	err = db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, PrefixBlockGraph(round), false, func(_ string, val []byte) (bool, error) {
			g := &types.BlockGraph{}
			if err := types.Unmarshal(val, g); err != nil {
				return false, err
			}
			graphs = append(graphs, g)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return graphs, nil
}

// DeleteBlockGraphs 清理某轮
func (manager *Manager) DeleteBlockGraphs(round uint64) error {
	db, err := manager.db()
	if err != nil {
		return err
	}
	var keys []string
	err = db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, PrefixBlockGraph(round), false, func(key string, _ []byte) (bool, error) {
			keys = append(keys, key)
			return true, nil
		})
	})
	if err != nil || len(keys) == 0 {
		return err
	}
	wb := db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete([]byte(k)); err != nil {
			wb.Cancel()
			return err
		}
	}
	return wb.Flush()
}
