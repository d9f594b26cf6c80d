package observability

import "testing"

func TestSampleRatio(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"", 0.1},
		{"not-a-number", 0.1},
		{"0.5", 0.5},
		{"-2", 0},
		{"7", 1},
	}
	for _, tc := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", tc.raw)
		if got := sampleRatio(); got != tc.want {
			t.Fatalf("sampleRatio(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestOtlpHeaders(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization=Bearer abc, x-tenant=docs ,broken,=novalue")
	headers := otlpHeaders()
	if len(headers) != 2 {
		t.Fatalf("headers = %v, want 2 entries", headers)
	}
	if headers["authorization"] != "Bearer abc" || headers["x-tenant"] != "docs" {
		t.Fatalf("unexpected headers: %v", headers)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")
	if headers := otlpHeaders(); headers != nil {
		t.Fatalf("empty env should yield nil, got %v", headers)
	}
}
