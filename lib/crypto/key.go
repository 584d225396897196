package crypto

import (
	"encoding/hex"
	"os"

	"github.com/drand/kyber"
	"github.com/drand/kyber/sign/bdn"
	"github.com/drand/kyber/util/random"
)

/*
PrivateKey is the signing half of the black-box crypto boundary (§1: "the
core assumes black-box... signers"). It is grounded on the teacher's
BLS12381PrivateKey (lib/crypto/bls.go) — same drand/kyber scheme, trimmed
to the methods a Controller actually needs: Sign and PublicKey bytes.
*/
type PrivateKey struct {
	scalar kyber.Scalar
	scheme *bdn.Scheme
	pub    []byte
}

// NewBLSPrivateKey generates a fresh BLS12-381 key, the default signer for
// a Controller implementation wiring consensus.Engine together.
func NewBLSPrivateKey() (*PrivateKey, error) {
	suite := newBLSSuite()
	scalar := suite.G2().Scalar().Pick(random.New())
	pub := suite.G1().Point().Mul(scalar, suite.G1().Point().Base())
	pubBz, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{scalar: scalar, scheme: bdn.NewSchemeOnG2(suite), pub: pubBz}, nil
}

func (p *PrivateKey) Sign(msg []byte) ([]byte, error) { return p.scheme.Sign(p.scalar, msg) }

func (p *PrivateKey) PublicKey() []byte { return p.pub }

func (p *PrivateKey) Bytes() ([]byte, error) { return p.scalar.MarshalBinary() }

func (p *PrivateKey) String() string { b, _ := p.Bytes(); return hex.EncodeToString(b) }

// PrivateKeyFromBytes reconstructs a PrivateKey from its scalar encoding,
// mirroring the teacher's NewBLSPrivateKeyFromBytes (lib/crypto/helpers.go).
func PrivateKeyFromBytes(bz []byte) (*PrivateKey, error) {
	suite := newBLSSuite()
	scalar := suite.G2().Scalar()
	if err := scalar.UnmarshalBinary(bz); err != nil {
		return nil, err
	}
	pub := suite.G1().Point().Mul(scalar, suite.G1().Point().Base())
	pubBz, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{scalar: scalar, scheme: bdn.NewSchemeOnG2(suite), pub: pubBz}, nil
}

// PrivateKeyFromFile reads a hex-encoded scalar from filepath, mirroring
// the teacher's NewBLSPrivateKeyFromFile.
func PrivateKeyFromFile(filepath string) (*PrivateKey, error) {
	bz, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	dec, err := hex.DecodeString(string(bz))
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromBytes(dec)
}

// PrivateKeyToFile writes key's hex-encoded scalar to filepath, mirroring
// the teacher's PrivateKeyToFile.
func PrivateKeyToFile(key *PrivateKey, filepath string) error {
	return os.WriteFile(filepath, []byte(key.String()), 0600)
}
