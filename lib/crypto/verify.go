package crypto

import (
	"encoding/hex"
	"sync"

	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
	"github.com/drand/kyber/sign"
	"github.com/drand/kyber/sign/bdn"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	BLS12381PubKeySize    = 48
	BLS12381SignatureSize = 96
)

// ThresholdVerifier is the black-box QC-signature boundary. The consensus
// engine never touches curve arithmetic directly — it asks a ThresholdVerifier
// whether an aggregate signature over signBytes meets the committee's
// quorum threshold, per spec §6 "QC signature verification is delegated".
type ThresholdVerifier interface {
	// Verify returns true if the aggregate signature over signBytes was produced
	// by signers holding >= minVotingPower out of totalVotingPower, drawn only
	// from the committee members list. The bitmap maps committee index -> signed.
	Verify(signBytes, aggregateSignature, bitmap []byte, committee [][]byte, signerPower []uint64, minVotingPower, totalVotingPower uint64) (ok bool, isPartial bool, err error)

	// Aggregate combines the per-signer signatures selected by bitmap into a
	// single aggregate signature, the leader-side counterpart to Verify used
	// once a vote quorum has been individually verified.
	Aggregate(signatures [][]byte, bitmap []byte, committee [][]byte) ([]byte, error)
}

var _ ThresholdVerifier = &BLSThresholdVerifier{}

// BLSThresholdVerifier verifies BLS12-381 aggregate signatures with the
// drand/kyber library, grounded on the teacher's lib/crypto/bls.go
// (BLS12381MultiPublicKey, sign/bdn scheme). A ristretto cache avoids
// re-verifying the same (signBytes, aggregateSignature) pair, mirroring the
// teacher's SignatureCache in lib/crypto/key_batch.go.
type BLSThresholdVerifier struct {
	scheme *bdn.Scheme
	cache  *ristretto.Cache[string, bool]
	mu     sync.Mutex
}

func NewBLSThresholdVerifier() *BLSThresholdVerifier {
	cache, _ := ristretto.NewCache[string, bool](&ristretto.Config[string, bool]{
		NumCounters: 1_000_000,
		MaxCost:     100_000,
		BufferItems: 64,
	})
	return &BLSThresholdVerifier{scheme: bdn.NewSchemeOnG2(newBLSSuite()), cache: cache}
}

func newBLSSuite() pairing.Suite { return bls12381.NewBLS12381Suite() }

func (v *BLSThresholdVerifier) Verify(signBytes, aggregateSignature, bitmap []byte, committee [][]byte, signerPower []uint64, minVotingPower, totalVotingPower uint64) (ok, isPartial bool, err error) {
	cacheKey := hex.EncodeToString(Hash(append(append(append([]byte{}, signBytes...), aggregateSignature...), bitmap...)))
	if v.cache != nil {
		if cached, found := v.cache.Get(cacheKey); found {
			return cached, false, nil
		}
	}
	points := make([]kyber.Point, 0, len(committee))
	for _, pk := range committee {
		p := bls12381.NewBLS12381Suite().G1().Point()
		if e := p.UnmarshalBinary(pk); e != nil {
			return false, false, e
		}
		points = append(points, p)
	}
	mask, err := sign.NewMask(newBLSSuite(), points, nil)
	if err != nil {
		return false, false, err
	}
	if err = mask.SetMask(bitmap); err != nil {
		return false, false, err
	}
	aggPub, err := v.scheme.AggregatePublicKeys(mask)
	if err != nil {
		return false, false, err
	}
	if verr := v.scheme.Verify(aggPub, signBytes, aggregateSignature); verr != nil {
		return false, false, nil
	}
	votedPower := uint64(0)
	maskBytes := mask.Mask()
	for i := range committee {
		signed := maskBytes[i/8]&(byte(1)<<uint(i&7)) != 0
		if signed {
			votedPower += signerPower[i]
		}
	}
	ok = votedPower >= minVotingPower
	isPartial = !ok
	if v.cache != nil && ok {
		v.cache.Set(cacheKey, ok, 1)
	}
	return ok, isPartial, nil
}

// Aggregate combines signatures (ordered to match bitmap's set bits, in
// committee order) into a single 96-byte BLS aggregate signature, mirroring
// the teacher's BLS12381MultiPublicKey.AggregateSignatures.
func (v *BLSThresholdVerifier) Aggregate(signatures [][]byte, bitmap []byte, committee [][]byte) ([]byte, error) {
	points := make([]kyber.Point, 0, len(committee))
	for _, pk := range committee {
		p := bls12381.NewBLS12381Suite().G1().Point()
		if e := p.UnmarshalBinary(pk); e != nil {
			return nil, e
		}
		points = append(points, p)
	}
	mask, err := sign.NewMask(newBLSSuite(), points, nil)
	if err != nil {
		return nil, err
	}
	if err := mask.SetMask(bitmap); err != nil {
		return nil, err
	}
	agg, err := v.scheme.AggregateSignatures(signatures, mask)
	if err != nil {
		return nil, err
	}
	return agg.MarshalBinary()
}
