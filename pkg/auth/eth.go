package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/bookcast/pkg/util"
)

const messagePrefix = "bookcast-auth"

// EthVerifier accepts "<address>:<unixSeconds>:<0xsignature>" where the
// signature is a personal_sign over AuthMessage(address, unixSeconds).
// The identity is the checksummed address.
type EthVerifier struct {
	MaxAge time.Duration
	Clock  util.Clock
}

func NewEthVerifier(maxAge time.Duration) *EthVerifier {
	return &EthVerifier{MaxAge: maxAge, Clock: util.RealClock{}}
}

func AuthMessage(addr common.Address, unix int64) string {
	return fmt.Sprintf("%s:%s:%d", messagePrefix, addr.Hex(), unix)
}

// Credential builds a credential for s valid from now.
func Credential(s *Signer, now time.Time) (string, error) {
	ts := now.Unix()
	sig, err := s.SignPersonal([]byte(AuthMessage(s.Address(), ts)))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", s.Address().Hex(), ts, hexutil.Encode(sig)), nil
}

func (v *EthVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	parts := strings.Split(credential, ":")
	if len(parts) != 3 {
		return Identity{}, fmt.Errorf("%w: malformed credential", ErrUnauthorized)
	}
	if !common.IsHexAddress(parts[0]) {
		return Identity{}, fmt.Errorf("%w: bad address", ErrUnauthorized)
	}
	addr := common.HexToAddress(parts[0])

	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad timestamp", ErrUnauthorized)
	}
	if v.MaxAge > 0 {
		age := v.Clock.Now().Sub(time.Unix(ts, 0))
		if age > v.MaxAge || age < -v.MaxAge {
			return Identity{}, fmt.Errorf("%w: credential expired", ErrUnauthorized)
		}
	}

	sig, err := hexutil.Decode(parts[2])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad signature encoding", ErrUnauthorized)
	}
	signer, err := RecoverPersonal([]byte(AuthMessage(addr, ts)), sig)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if signer != addr {
		return Identity{}, fmt.Errorf("%w: signature does not match address", ErrUnauthorized)
	}
	return Identity{UserID: addr.Hex(), AccountType: "wallet"}, nil
}
