package service

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":       "255712345678",
		"+255 712 345 678": "255712345678",
		"255-654-321-000":  "255654321000",
		"712345678":        "255712345678",
	}
	for in, want := range cases {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizePhoneRejects(t *testing.T) {
	for _, in := range []string{"", "12345", "254712345678", "0812345678", "25571234567x"} {
		_, err := NormalizePhone(in)
		assert.ErrorIs(t, err, ErrInvalidPhoneNumber, in)
	}
}

func TestNewOrderReference(t *testing.T) {
	alnum := regexp.MustCompile(`^[A-Z0-9]+$`)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := NewOrderReference("CRED", 1234567)
		assert.True(t, strings.HasPrefix(ref, "CRED"))
		assert.True(t, strings.HasSuffix(ref, "234567"))
		assert.Regexp(t, alnum, ref)
		assert.False(t, seen[ref], "duplicate %s", ref)
		seen[ref] = true
	}
}

func TestNewOrderReferenceConcurrentUnique(t *testing.T) {
	var (
		seen sync.Map
		wg   sync.WaitGroup
		dups atomic.Int32
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if _, loaded := seen.LoadOrStore(NewOrderReference("POUT", 42), true); loaded {
					dups.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, dups.Load())
}
