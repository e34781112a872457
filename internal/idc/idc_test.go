package idc

import (
	"bytes"
	"testing"
)

func TestRoundTripFeatureFile(t *testing.T) {
	w := NewWriter("feature_extraction")
	w.SetAlgorithm("SIFT_GPU", "1.1", nil)
	w.SetDescriptorSchema(DescriptorSchema{
		DescriptorDim:     128,
		DescriptorDtype:   "uint8",
		QuantizationScale: 512.0,
	})

	kp := []float32{
		10, 20, 1.5, 0.0,
		30, 40, 2.0, 1.57,
		50, 60, 1.8, 3.14,
	}
	desc := make([]byte, 3*128)
	for i := range desc {
		desc[i] = byte(i % 256)
	}

	if err := w.AddBlob("keypoints", "float32", []int{3, 4}, EncodeF32(kp)); err != nil {
		t.Fatalf("AddBlob keypoints: %v", err)
	}
	if err := w.AddBlob("descriptors", "uint8", []int{3, 128}, desc); err != nil {
		t.Fatalf("AddBlob descriptors: %v", err)
	}

	raw, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	if raw[0] != 0x49 || raw[1] != 0x53 || raw[2] != 0x41 || raw[3] != 0x54 {
		t.Fatalf("unexpected magic bytes: % x", raw[:4])
	}

	r, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if r.PayloadOffset()%Alignment != 0 {
		t.Fatalf("payload offset %d not 8-aligned", r.PayloadOffset())
	}

	gotKP, err := r.ReadBlobF32("keypoints")
	if err != nil {
		t.Fatalf("ReadBlobF32: %v", err)
	}
	if len(gotKP) != len(kp) {
		t.Fatalf("keypoints length mismatch: got %d want %d", len(gotKP), len(kp))
	}
	for i := range kp {
		if gotKP[i] != kp[i] {
			t.Fatalf("keypoint[%d] = %v, want %v", i, gotKP[i], kp[i])
		}
	}

	gotDesc, err := r.ReadBlobU8("descriptors")
	if err != nil {
		t.Fatalf("ReadBlobU8: %v", err)
	}
	if !bytes.Equal(gotDesc, desc) {
		t.Fatalf("descriptor bytes not round-tripped")
	}

	ds := r.Descriptor().DescriptorSchema
	if ds == nil || ds.QuantizationScale != 512.0 {
		t.Fatalf("descriptor_schema not round-tripped: %+v", ds)
	}
}

func TestAlignmentAcrossJSONSizes(t *testing.T) {
	for extra := 0; extra < 16; extra++ {
		w := NewWriter("feature_extraction")
		// Pad out the metadata to exercise every json_size mod 8 remainder.
		w.SetMetadataField("pad", string(bytes.Repeat([]byte("x"), extra)))
		raw, err := w.Bytes()
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		r, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if r.PayloadOffset()%Alignment != 0 {
			t.Fatalf("extra=%d: payload offset %d not 8-aligned", extra, r.PayloadOffset())
		}
		if r.PayloadOffset() < headerSize {
			t.Fatalf("extra=%d: payload offset %d before header", extra, r.PayloadOffset())
		}
	}
}

func TestBadMagicRejected(t *testing.T) {
	raw := make([]byte, 32)
	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected error for zeroed header")
	}
}

func TestMissingBlobReturnsEmpty(t *testing.T) {
	w := NewWriter("feature_extraction")
	raw, _ := w.Bytes()
	r, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := r.ReadBlobBytes("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != nil {
		t.Fatalf("expected nil for missing blob, got %v", b)
	}
}
