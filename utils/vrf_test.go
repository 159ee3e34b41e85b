package utils

import (
	"bytes"
	"testing"
)

// TestVRFGenerateAndVerify 测试VRF生成和验证的完整流程
func TestVRFGenerateAndVerify(t *testing.T) {
	key, err := NewNodeKey("a61a8cb51bb55a9bed37b59a94f7f6ee92b04d211179c84a1147fd30bd8c5192")
	if err != nil {
		t.Fatalf("Failed to load node key: %v", err)
	}
	vrf, err := NewVRFProvider(key.BLSPrivateKey())
	if err != nil {
		t.Fatalf("Failed to create VRF provider: %v", err)
	}

	kernel := []byte("kernel-for-round-1")
	proof, err := vrf.Prove(kernel)
	if err != nil {
		t.Fatalf("Failed to generate VRF: %v", err)
	}
	if len(proof) != VRFProofSize {
		t.Fatalf("proof length = %d, want %d", len(proof), VRFProofSize)
	}

	out1, err := vrf.Verify(vrf.PublicKey(), kernel, proof)
	if err != nil {
		t.Fatalf("VRF verification failed: %v", err)
	}
	if len(out1) != 32 {
		t.Fatalf("output length = %d, want 32", len(out1))
	}

	// 同一私钥同一消息，输出确定
	proof2, err := vrf.Prove(kernel)
	if err != nil {
		t.Fatalf("Failed to generate VRF: %v", err)
	}
	out2, err := vrf.Verify(vrf.PublicKey(), kernel, proof2)
	if err != nil {
		t.Fatalf("VRF verification failed: %v", err)
	}
	if !bytes.Equal(out1, out2) {
		t.Fatal("VRF output is not deterministic")
	}
}

// TestVRFRejectsWrongInput 错误的消息或公钥必须验证失败
func TestVRFRejectsWrongInput(t *testing.T) {
	a, err := NewVRFProvider([]byte("seed-a-0123456789abcdef0123456789"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewVRFProvider([]byte("seed-b-0123456789abcdef0123456789"))
	if err != nil {
		t.Fatal(err)
	}

	proof, err := a.Prove([]byte("msg"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Verify(a.PublicKey(), []byte("other"), proof); err == nil {
		t.Fatal("expected wrong message to fail")
	}
	if _, err := a.Verify(b.PublicKey(), []byte("msg"), proof); err == nil {
		t.Fatal("expected wrong public key to fail")
	}
	if _, err := a.Verify(a.PublicKey(), []byte("msg"), proof[:10]); err == nil {
		t.Fatal("expected truncated proof to fail")
	}
}

func TestNodeKeySignVerify(t *testing.T) {
	key, err := NewNodeKey("")
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("block-graph")
	sig, pub, err := key.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifySignature(sig, pub, msg) {
		t.Fatal("signature should verify")
	}
	if VerifySignature(sig, pub, []byte("tampered")) {
		t.Fatal("tampered message should not verify")
	}
	if NodeIDFromPublicKey(pub) != key.NodeID() {
		t.Fatal("node id mismatch")
	}
}
