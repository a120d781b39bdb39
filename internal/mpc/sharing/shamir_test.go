package sharing

import (
	"bytes"
	"testing"
)

func TestShamirCodec_SplitAndCombine(t *testing.T) {
	codec := NewShamirCodec()

	value := IntValue(42)
	threshold := 2
	nodeCount := 3

	shares, err := codec.Split(value, nodeCount, threshold)
	if err != nil {
		t.Fatalf("Failed to split value: %v", err)
	}

	if len(shares) != nodeCount {
		t.Fatalf("Expected %d shares, got %d", nodeCount, len(shares))
	}
	for i, s := range shares {
		if s.Index != i {
			t.Errorf("Share %d carries index %d", i, s.Index)
		}
		if s.ShareType != ShareTypeShamirEd25519 {
			t.Errorf("Share %d carries type %q", i, s.ShareType)
		}
	}

	// All shares reconstruct the value.
	recovered, err := codec.Combine(shares, threshold)
	if err != nil {
		t.Fatalf("Failed to combine all shares: %v", err)
	}
	if recovered.Int != 42 {
		t.Errorf("Recovered %d, want 42", recovered.Int)
	}

	// Exactly threshold shares also reconstruct the value.
	recovered, err = codec.Combine(shares[:threshold], threshold)
	if err != nil {
		t.Fatalf("Failed to combine threshold shares: %v", err)
	}
	if recovered.Int != 42 {
		t.Errorf("Recovered %d from threshold shares, want 42", recovered.Int)
	}

	// threshold-1 shares must fail.
	_, err = codec.Combine(shares[:threshold-1], threshold)
	if err == nil {
		t.Fatal("Expected error when combining insufficient shares, got nil")
	}
	if _, ok := err.(*InsufficientSharesError); !ok {
		t.Errorf("Expected InsufficientSharesError, got %T", err)
	}
}

func TestShamirCodec_CombineDifferentShareSubsets(t *testing.T) {
	codec := NewShamirCodec()

	shares, err := codec.Split(IntValue(123456789), 5, 3)
	if err != nil {
		t.Fatalf("Failed to split value: %v", err)
	}

	testCases := [][]int{
		{0, 1, 2},
		{0, 1, 3},
		{2, 3, 4},
		{0, 2, 4},
	}

	for i, indices := range testCases {
		subset := make([]Share, len(indices))
		for j, idx := range indices {
			subset[j] = shares[idx]
		}

		recovered, err := codec.Combine(subset, 3)
		if err != nil {
			t.Errorf("Test case %d: failed to combine shares: %v", i, err)
			continue
		}
		if recovered.Int != 123456789 {
			t.Errorf("Test case %d: recovered %d, want 123456789", i, recovered.Int)
		}
	}
}

func TestShamirCodec_RandomizedShareContent(t *testing.T) {
	codec := NewShamirCodec()

	first, err := codec.Split(IntValue(7), 3, 2)
	if err != nil {
		t.Fatalf("Failed to split value: %v", err)
	}
	second, err := codec.Split(IntValue(7), 3, 2)
	if err != nil {
		t.Fatalf("Failed to split value: %v", err)
	}

	same := true
	for i := range first {
		if !bytes.Equal(first[i].Data, second[i].Data) {
			same = false
			break
		}
	}
	if same {
		t.Error("Two splits of the same value produced identical shares; randomness reused")
	}
}

func TestShamirCodec_SplitValidation(t *testing.T) {
	codec := NewShamirCodec()

	if _, err := codec.Split(IntValue(1), 2, 3); err == nil {
		t.Error("Expected error for node count below threshold")
	}
	if _, err := codec.Split(IntValue(-5), 3, 2); err == nil {
		t.Error("Expected error for negative value")
	}
	if _, err := codec.Split(IntValue(1), 3, 0); err == nil {
		t.Error("Expected error for zero threshold")
	}
}

func TestShamirCodec_BoolRoundTrip(t *testing.T) {
	codec := NewShamirCodec()

	shares, err := codec.Split(BoolValue(true), 3, 2)
	if err != nil {
		t.Fatalf("Failed to split bool: %v", err)
	}
	recovered, err := codec.Combine(shares, 2)
	if err != nil {
		t.Fatalf("Failed to combine bool shares: %v", err)
	}
	if recovered.Int != 1 {
		t.Errorf("Recovered %d for true, want 1", recovered.Int)
	}
}

func TestShamirCodec_CombineTypeMismatch(t *testing.T) {
	codec := NewShamirCodec()

	shares, err := codec.Split(IntValue(9), 3, 2)
	if err != nil {
		t.Fatalf("Failed to split value: %v", err)
	}
	shares[1].ShareType = "feldman-vss"

	_, err = codec.Combine(shares, 2)
	if err == nil {
		t.Fatal("Expected error for mixed share types, got nil")
	}
	if _, ok := err.(*TypeMismatchError); !ok {
		t.Errorf("Expected TypeMismatchError, got %T", err)
	}
}

func TestCoerceClearValue(t *testing.T) {
	if v, err := CoerceClearValue("x", 25); err != nil || v.Int != 25 {
		t.Errorf("int coercion failed: %v %v", v, err)
	}
	if v, err := CoerceClearValue("x", int64(17)); err != nil || v.Int != 17 {
		t.Errorf("int64 coercion failed: %v %v", v, err)
	}
	if v, err := CoerceClearValue("x", true); err != nil || v.Kind != KindBool || !v.Bool {
		t.Errorf("bool coercion failed: %v %v", v, err)
	}
	if _, err := CoerceClearValue("x", "not-a-number"); err == nil {
		t.Error("Expected EncodingError for string secret")
	} else if _, ok := err.(*EncodingError); !ok {
		t.Errorf("Expected EncodingError, got %T", err)
	}
}
