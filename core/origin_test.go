package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalOrigin(t *testing.T) {
	cases := []struct {
		name string
		in   Origin
		want Origin
	}{
		{"legacy domain", "https://foo.icp0.io", "https://foo.ic0.app"},
		{"legacy raw domain", "https://foo.raw.icp0.io", "https://foo.raw.ic0.app"},
		{"label with dashes", "https://rdmx6-jaaaa-aaaaa-aaadq-cai.icp0.io", "https://rdmx6-jaaaa-aaaaa-aaadq-cai.ic0.app"},
		{"already canonical", "https://foo.ic0.app", "https://foo.ic0.app"},
		{"unrelated host", "https://example.com", "https://example.com"},
		{"nested label", "https://foo.bar.icp0.io", "https://foo.bar.icp0.io"},
		{"http scheme", "http://foo.icp0.io", "http://foo.icp0.io"},
		{"trailing path", "https://foo.icp0.io/path", "https://foo.icp0.io/path"},
		{"explicit port", "https://foo.icp0.io:8080", "https://foo.icp0.io:8080"},
		{"malformed", "not-an-origin", "not-an-origin"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanonicalOrigin(tc.in))
		})
	}
}

func TestEffectiveOrigin(t *testing.T) {
	t.Run("request origin by default", func(t *testing.T) {
		got := EffectiveOrigin("", "https://app.icp0.io")
		assert.Equal(t, Origin("https://app.ic0.app"), got)
	})

	t.Run("derivation origin wins", func(t *testing.T) {
		got := EffectiveOrigin("https://other.icp0.io", "https://app.example.com")
		assert.Equal(t, Origin("https://other.ic0.app"), got)
	})

	t.Run("non-legacy derivation origin passes through", func(t *testing.T) {
		got := EffectiveOrigin("https://wallet.example.com", "https://app.example.com")
		assert.Equal(t, Origin("https://wallet.example.com"), got)
	})
}
