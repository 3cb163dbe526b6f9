package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 25},
		{"default bucket size for negative", -1, 25},
		{"custom bucket size", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "downloading") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		percent float64
		phase   string
		want    bool
	}{
		{0, "downloading", true},
		{10, "downloading", false},
		{26, "downloading", true},
		{30, "downloading", false},
		{100, "downloading", true},
		{150, "downloading", false},
		{5, "uploading", true},
		{-1, "uploading", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.phase); got != step.want {
			t.Fatalf("step %d: ShouldLog(%v, %q) = %v, want %v", i, step.percent, step.phase, got, step.want)
		}
	}
	s.Reset()
	if !s.ShouldLog(10, "uploading") {
		t.Fatal("expected emit after reset")
	}
}
