package sharing

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/share"
)

// ShareTypeShamirEd25519 tags shares produced by the Shamir codec over the
// edwards25519 scalar field.
const ShareTypeShamirEd25519 = "shamir-ed25519"

// scalarLen is the marshaled size of an edwards25519 scalar.
const scalarLen = 32

// ShamirCodec secret-shares values with Shamir polynomial sharing over the
// edwards25519 scalar field. Shares are linear, so nodes can evaluate
// affine programs share-wise and return genuine result shares.
type ShamirCodec struct {
	suite *edwards25519.SuiteEd25519
}

// NewShamirCodec creates the default Shamir share codec.
func NewShamirCodec() *ShamirCodec {
	return &ShamirCodec{suite: edwards25519.NewBlakeSHA256Ed25519()}
}

// Split implements Codec. Values must be non-negative integers (bools encode
// as 0/1); the scalar field has no canonical encoding for negatives.
func (c *ShamirCodec) Split(value ClearValue, nodeCount, threshold int) (ShareSet, error) {
	if threshold < 1 {
		return nil, &EncodingError{Reason: "threshold must be at least 1"}
	}
	if nodeCount < threshold {
		return nil, &EncodingError{Reason: fmt.Sprintf("node count %d below threshold %d", nodeCount, threshold)}
	}

	var clear int64
	switch value.Kind {
	case KindInt:
		clear = value.Int
	case KindBool:
		if value.Bool {
			clear = 1
		}
	default:
		return nil, &EncodingError{Reason: "unsupported value kind " + value.Kind.String()}
	}
	if clear < 0 {
		return nil, &EncodingError{Reason: "negative values are not representable as field elements"}
	}

	secret := c.suite.Scalar().SetInt64(clear)
	poly := share.NewPriPoly(c.suite, threshold, secret, c.suite.RandomStream())

	priShares := poly.Shares(nodeCount)
	set := make(ShareSet, 0, nodeCount)
	for _, ps := range priShares {
		data, err := ps.V.MarshalBinary()
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal share scalar")
		}
		set = append(set, Share{
			ShareType: ShareTypeShamirEd25519,
			Index:     ps.I,
			Data:      data,
		})
	}

	return set, nil
}

// Combine implements Codec.
func (c *ShamirCodec) Combine(shares []Share, threshold int) (ClearValue, error) {
	valid := make([]*share.PriShare, 0, len(shares))
	n := 0
	for _, s := range shares {
		if s.ShareType != ShareTypeShamirEd25519 {
			return ClearValue{}, &TypeMismatchError{Want: ShareTypeShamirEd25519, Got: s.ShareType}
		}
		if len(s.Data) != scalarLen {
			// Malformed shares do not count towards the quorum.
			continue
		}
		v := c.suite.Scalar()
		if err := v.UnmarshalBinary(s.Data); err != nil {
			continue
		}
		valid = append(valid, &share.PriShare{I: s.Index, V: v})
		if s.Index+1 > n {
			n = s.Index + 1
		}
	}

	if len(valid) < threshold {
		return ClearValue{}, &InsufficientSharesError{Got: len(valid), Threshold: threshold}
	}

	secret, err := share.RecoverSecret(c.suite, valid, threshold, n)
	if err != nil {
		return ClearValue{}, errors.Wrap(err, "failed to recover secret")
	}

	clear, err := scalarToInt64(secret)
	if err != nil {
		return ClearValue{}, err
	}

	return IntValue(clear), nil
}

// scalarToInt64 decodes a scalar that is known to hold a small non-negative
// integer. edwards25519 scalars marshal little-endian.
func scalarToInt64(s kyber.Scalar) (int64, error) {
	b, err := s.MarshalBinary()
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal recovered scalar")
	}
	if len(b) != scalarLen {
		return 0, errors.Errorf("unexpected scalar length %d", len(b))
	}
	for _, hi := range b[8:] {
		if hi != 0 {
			return 0, errors.New("recovered value does not fit in int64")
		}
	}
	v := binary.LittleEndian.Uint64(b[:8])
	if v > 1<<63-1 {
		return 0, errors.New("recovered value does not fit in int64")
	}
	return int64(v), nil
}
