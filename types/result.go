package types

// VerifyResult 所有校验函数的统一返回值
type VerifyResult int

const (
	Succeed VerifyResult = iota
	AlreadyExists
	UnableToVerify
	Invalid
	KeyImageAlreadyExists
	CommitmentNotFound
	Unknown
)

func (r VerifyResult) String() string {
	switch r {
	case Succeed:
		return "Succeed"
	case AlreadyExists:
		return "AlreadyExists"
	case UnableToVerify:
		return "UnableToVerify"
	case Invalid:
		return "Invalid"
	case KeyImageAlreadyExists:
		return "KeyImageAlreadyExists"
	case CommitmentNotFound:
		return "CommitmentNotFound"
	default:
		return "Unknown"
	}
}

// OK 只有 Succeed 算通过
func (r VerifyResult) OK() bool {
	return r == Succeed
}
