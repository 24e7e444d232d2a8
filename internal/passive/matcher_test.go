package passive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherAcceptsOnlyProperSubdomains(t *testing.T) {
	m, err := NewMatcher("example.com")
	require.NoError(t, err)

	accepted := []string{"a.example.com", "b.a.example.com", "x-1.example.com", "A.example.com"}
	for _, h := range accepted {
		assert.True(t, m.Match(h), h)
	}

	rejected := []string{
		"example.com",
		"",
		".example.com",
		"a.example.com.evil.net",
		"aexample.com",
		"a.exampleXcom",
		"a.EXAMPLE.COM",
		"a_b.example.com",
		"a.example.com\n",
		"a.example.org",
	}
	for _, h := range rejected {
		assert.False(t, m.Match(h), h)
	}
}

func TestMatcherEscapesDomain(t *testing.T) {
	m, err := NewMatcher("a+b.com")
	require.NoError(t, err)
	assert.True(t, m.Match("www.a+b.com"))
	assert.False(t, m.Match("www.aab.com"))
}

func TestNewMatcherRejectsEmptyDomain(t *testing.T) {
	_, err := NewMatcher("")
	assert.Error(t, err)
}

func TestCollectDedupsAndExcludesApex(t *testing.T) {
	m, err := NewMatcher("example.com")
	require.NoError(t, err)

	set := m.Collect([]Record{
		{Hostname: "a.example.com"},
		{Hostname: "b.a.example.com"},
		{Hostname: "example.com"},
		{Hostname: "a.example.com"},
		{Hostname: ""},
		{Hostname: "other.net"},
	})
	assert.Equal(t, []string{"a.example.com", "b.a.example.com"}, set.Sorted())
}

func TestSubdomainSet(t *testing.T) {
	s := NewSubdomainSet()
	assert.True(t, s.Add("z.example.com"))
	assert.True(t, s.Add("a.example.com"))
	assert.False(t, s.Add("a.example.com"))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("z.example.com"))
	assert.Equal(t, []string{"a.example.com", "z.example.com"}, s.Sorted())

	s.Retain([]string{"z.example.com", "missing.example.com"})
	assert.Equal(t, []string{"z.example.com"}, s.Sorted())
	assert.Empty(t, NewSubdomainSet().Sorted())
}
