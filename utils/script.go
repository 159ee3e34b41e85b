package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/txscript"
)

// LockTimeScript <locktime> OP_CHECKLOCKTIMEVERIFY
func LockTimeScript(lockTime int64) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddInt64(lockTime).
		AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		Script()
}

// ParseLockTimeScript 解析 LockTimeScript 生成的脚本，返回锁定时间
func ParseLockTimeScript(script []byte) (int64, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() {
		return 0, errors.New("lock script: missing locktime push")
	}
	lockTime, err := pushedInt(tokenizer.Opcode(), tokenizer.Data())
	if err != nil {
		return 0, err
	}
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_CHECKLOCKTIMEVERIFY {
		return 0, errors.New("lock script: expected OP_CHECKLOCKTIMEVERIFY")
	}
	if tokenizer.Next() {
		return 0, errors.New("lock script: trailing opcodes")
	}
	if err := tokenizer.Err(); err != nil {
		return 0, fmt.Errorf("lock script: %w", err)
	}
	return lockTime, nil
}

// LockTimeExpired 锁定时间已过
func LockTimeExpired(script []byte, now time.Time) bool {
	lockTime, err := ParseLockTimeScript(script)
	if err != nil {
		return false
	}
	return now.Unix() >= lockTime
}

func pushedInt(op byte, data []byte) (int64, error) {
	switch {
	case op == txscript.OP_0:
		return 0, nil
	case op == txscript.OP_1NEGATE:
		return -1, nil
	case op >= txscript.OP_1 && op <= txscript.OP_16:
		return int64(op - (txscript.OP_1 - 1)), nil
	case op >= txscript.OP_DATA_1 && op <= txscript.OP_DATA_8:
		return decodeScriptNum(data), nil
	}
	return 0, fmt.Errorf("lock script: unexpected opcode 0x%02x", op)
}

// decodeScriptNum 小端、最高位为符号位
func decodeScriptNum(v []byte) int64 {
	if len(v) == 0 {
		return 0
	}
	var result int64
	for i, b := range v {
		result |= int64(b) << uint8(8*i)
	}
	if v[len(v)-1]&0x80 != 0 {
		result &= ^(int64(0x80) << uint8(8*(len(v)-1)))
		return -result
	}
	return result
}
