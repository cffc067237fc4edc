package api

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureHeader carries the personal_sign signature of the request body.
	SignatureHeader = "X-Oracle-Signature"

	// DefaultMaxRequestSkew bounds the distance between a signed timestamp and now.
	DefaultMaxRequestSkew = 5 * time.Minute

	maxBodyBytes = 64 << 10
)

// SignRequest signs body the way wallets sign personal messages and returns
// the hex signature for SignatureHeader.
func SignRequest(body []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(body), key)
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverSigner returns the address that produced signature over body.
// Recovery ids in both the 0/1 and 27/28 forms are accepted.
func RecoverSigner(body []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(body), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// timestamped is implemented by every authenticated request body.
type timestamped interface {
	signedAt() int64
}

// authenticate reads the body, recovers its signer and decodes it into dst.
func (s *Server) authenticate(r *http.Request, dst timestamped) (common.Address, error) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return common.Address{}, ErrMissingSignature
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	caller, err := RecoverSigner(body, signature)
	if err != nil {
		return common.Address{}, err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	skew := s.now().Sub(time.Unix(dst.signedAt(), 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.maxSkew {
		return common.Address{}, fmt.Errorf("%w: skew %s", ErrStaleRequest, skew)
	}

	expires := time.Unix(dst.signedAt(), 0).Add(s.maxSkew)
	if !s.replay.accept(requestDigest(caller, body), expires, s.now()) {
		return common.Address{}, fmt.Errorf("%w: request already used", ErrStaleRequest)
	}
	return caller, nil
}

// requestDigest identifies a signed body by its signer and content. Both
// encodings of the recovery id recover the same signer, so re-encoding a
// signature does not yield a new digest.
func requestDigest(signer common.Address, body []byte) common.Hash {
	return crypto.Keccak256Hash(signer.Bytes(), body)
}

// replayGuard remembers accepted request digests until their timestamp falls
// out of the skew window.
type replayGuard struct {
	mu   sync.Mutex
	seen map[common.Hash]time.Time
}

func newReplayGuard() *replayGuard {
	return &replayGuard{seen: make(map[common.Hash]time.Time)}
}

// accept records digest and reports whether it was unseen.
func (g *replayGuard) accept(digest common.Hash, expires, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for d, exp := range g.seen {
		if exp.Before(now) {
			delete(g.seen, d)
		}
	}
	if _, ok := g.seen[digest]; ok {
		return false
	}
	g.seen[digest] = expires
	return true
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
