package wallet

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "BasicAgent-Console/internal/errors"
)

// VerifyPersonalSign 校验 signature 是否为 signer 对 message 的 EIP-191 personal_sign 签名。
// 签名的 V 值接受 0/1 与 27/28 两种写法。
func VerifyPersonalSign(message, signature string, signer common.Address) error {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return xerrors.Validation("签名格式无效", xerrors.WithMetadata("field", "signature"))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return xerrors.Validation("无法从签名恢复地址", xerrors.WithMetadata("field", "signature"))
	}
	if crypto.PubkeyToAddress(*pub) != signer {
		return xerrors.Validation("签名与钱包地址不匹配", xerrors.WithMetadata("field", "signature"))
	}
	return nil
}
