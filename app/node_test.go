package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"posnode/config"
	"posnode/handlers"
	"posnode/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Node.DataDir = t.TempDir()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Network.AdvertiseAddr = "127.0.0.1:6100"
	cfg.Staking.Enabled = false
	return cfg
}

func TestNodeLifecycle(t *testing.T) {
	cfg := testConfig(t)
	n, err := NewNode(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, n.Start())

	height, err := n.Store.BlockHeight()
	require.NoError(t, err)
	assert.Zero(t, height)

	me, err := n.SelfPeer()
	require.NoError(t, err)
	assert.Equal(t, n.Key.NodeID(), me.ID)
	assert.Equal(t, uint64(1), me.BlockCount)
	assert.Equal(t, n.Key.Address(), cfg.Node.RewardAddress)

	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st handlers.StatusResponse
	require.NoError(t, types.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, n.Key.NodeID(), st.Node)

	require.NoError(t, n.Stop())
	require.NoError(t, n.Stop())
}

func TestNodeKeyPersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	first, err := NewNode(cfg, nil)
	require.NoError(t, err)
	id := first.Key.NodeID()
	require.NoError(t, first.Stop())

	cfg2 := testConfig(t)
	cfg2.Node.DataDir = cfg.Node.DataDir
	second, err := NewNode(cfg2, nil)
	require.NoError(t, err)
	defer second.Stop()
	assert.Equal(t, id, second.Key.NodeID())

	// 创世块只写一次
	count, err := second.Store.BlockCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
