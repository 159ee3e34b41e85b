package db

import (
	"posnode/types"

	"github.com/dgraph-io/badger/v2"
)

// GetAllNodeInfos 读取持久化的对端列表
func (manager *Manager) GetAllNodeInfos() ([]types.Peer, error) {
	db, err := manager.db()
	if err != nil {
		return nil, err
	}
	var nodes []types.Peer
	err = db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, PrefixNode(), false, func(_ string, val []byte) (bool, error) {
			var node types.Peer
			if err := types.Unmarshal(val, &node); err != nil {
				return false, err
			}
			nodes = append(nodes, node)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// SaveNodeInfo 经写队列保存对端信息
func (manager *Manager) SaveNodeInfo(node types.Peer) error {
	data, err := types.Marshal(&node)
	if err != nil {
		return err
	}
	manager.EnqueueSet(KeyNode(node.ID), data)
	return nil
}

func (manager *Manager) DeleteNodeInfo(id types.NodeID) {
	manager.EnqueueDelete(KeyNode(id))
}
