package types

import (
	"encoding/binary"
	"fmt"
)

// Topic 广播主题，对应对端的 HTTP 路径 /<topic>
type Topic string

const (
	TopicTx         Topic = "tx"
	TopicBlockGraph Topic = "blockgraph"
	TopicPeer       Topic = "peer" // 节点宣告自身地址与区块数
)

// GossipPayload 节点间广播的负载
type GossipPayload struct {
	Topic  Topic
	Sender NodeID
	Body   []byte // msgpack 编码的交易或 BlockGraph
}

var gossipWireMagic = [4]byte{'P', 'S', 'N', '1'}

const gossipWireHeaderLen = 13 // 4 bytes magic + 8 bytes sender + 1 byte topic length

func EncodeGossipPayload(payload *GossipPayload) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("nil gossip payload")
	}
	if len(payload.Body) == 0 {
		return nil, fmt.Errorf("gossip payload missing body")
	}
	if len(payload.Topic) == 0 || len(payload.Topic) > 255 {
		return nil, fmt.Errorf("invalid gossip topic %q", payload.Topic)
	}

	data := make([]byte, gossipWireHeaderLen+len(payload.Topic)+len(payload.Body))
	copy(data[:4], gossipWireMagic[:])
	binary.BigEndian.PutUint64(data[4:12], uint64(payload.Sender))
	data[12] = byte(len(payload.Topic))
	n := copy(data[gossipWireHeaderLen:], payload.Topic)
	copy(data[gossipWireHeaderLen+n:], payload.Body)

	return data, nil
}

func DecodeGossipPayload(data []byte) (*GossipPayload, error) {
	if len(data) < gossipWireHeaderLen {
		return nil, fmt.Errorf("gossip payload too short: got %d bytes", len(data))
	}
	if data[0] != gossipWireMagic[0] || data[1] != gossipWireMagic[1] || data[2] != gossipWireMagic[2] || data[3] != gossipWireMagic[3] {
		return nil, fmt.Errorf("unsupported gossip payload wire format")
	}
	sender := NodeID(binary.BigEndian.Uint64(data[4:12]))
	topicLen := int(data[12])
	if topicLen == 0 || len(data) < gossipWireHeaderLen+topicLen {
		return nil, fmt.Errorf("gossip payload truncated topic")
	}
	topic := Topic(data[gossipWireHeaderLen : gossipWireHeaderLen+topicLen])
	body := data[gossipWireHeaderLen+topicLen:]
	if len(body) == 0 {
		return nil, fmt.Errorf("gossip payload missing body")
	}

	return &GossipPayload{
		Topic:  topic,
		Sender: sender,
		Body:   append([]byte(nil), body...),
	}, nil
}
