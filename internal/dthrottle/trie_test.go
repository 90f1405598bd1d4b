package dthrottle

import "testing"

func TestTrie_DefaultIsTotal(t *testing.T) {
	t.Parallel()

	trie := NewTrie[int]()
	trie.Insert("", 7)

	for _, tag := range []string{"", "anything", "192.168.1.1"} {
		value, ok := trie.Lookup(tag)
		if !ok || value != 7 {
			t.Fatalf("Lookup(%q) = (%d, %v), want (7, true)", tag, value, ok)
		}
	}
}

func TestTrie_LongestPrefixWins(t *testing.T) {
	t.Parallel()

	trie := NewTrie[int]()
	trie.Insert("", 0)
	trie.Insert("192.", 1)
	trie.Insert("172.", 2)
	trie.Insert("172.1.1.9", 3)
	trie.Insert("10.12.", 4)

	cases := map[string]int{
		"192.168.1.1": 1,
		"172.12.1.1":  2,
		"172.1.1.9":   3,
		"172.1.1.90":  3,
		"204.112.1.1": 0,
		"10.12.0.1":   4,
	}
	for tag, want := range cases {
		got, ok := trie.Lookup(tag)
		if !ok || got != want {
			t.Errorf("Lookup(%q) = (%d, %v), want (%d, true)", tag, got, ok, want)
		}
	}
}

func TestTrie_InsertOverwritesSilently(t *testing.T) {
	t.Parallel()

	trie := NewTrie[string]()
	trie.Insert("1-206-", "first")
	trie.Insert("1-206-", "second")

	got, ok := trie.Lookup("1-206-4567")
	if !ok || got != "second" {
		t.Fatalf("Lookup = (%q, %v), want (%q, true)", got, ok, "second")
	}
}

func TestTrie_FallsOffAtMissingEdge(t *testing.T) {
	t.Parallel()

	trie := NewTrie[int]()
	trie.Insert("", -1)
	trie.Insert("abc", 1)

	got, ok := trie.Lookup("abd")
	if !ok || got != -1 {
		t.Fatalf("Lookup(abd) = (%d, %v), want (-1, true)", got, ok)
	}
}
