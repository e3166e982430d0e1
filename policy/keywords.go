package policy

import (
	"sort"
	"strings"
	"sync"
)

// DefaultKeywords seeds a tenant's banned set on first touch when the tenant
// never configured one.
var DefaultKeywords = []string{
	"credit card dump",
	"ddos",
	"jailbreak",
	"keylogger",
	"malware",
	"phishing",
	"ransomware",
	"spam",
}

// KeywordStore holds per-tenant banned keyword sets, keyed by tenant scope.
// Keywords are lowercase substrings of at most 100 characters; matching is
// case-insensitive.
type KeywordStore struct {
	mu      sync.RWMutex
	byScope map[string][]string
}

func NewKeywordStore() *KeywordStore {
	return &KeywordStore{byScope: make(map[string][]string)}
}

// Match scans text for the tenant's banned keywords and returns the first
// match in sorted keyword order so the result is deterministic. Populates
// the defaults on the tenant's first touch.
func (s *KeywordStore) Match(tenantScope, text string) (string, bool) {
	keywords := s.keywords(tenantScope)
	lowered := strings.ToLower(text)
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			return keyword, true
		}
	}
	return "", false
}

// Set replaces the tenant's banned set. Keywords are lowercased, truncated
// to 100 characters and sorted.
func (s *KeywordStore) Set(tenantScope string, keywords []string) {
	normalized := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if len(keyword) > 100 {
			keyword = keyword[:100]
		}
		normalized = append(normalized, keyword)
	}
	sort.Strings(normalized)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byScope[tenantScope] = normalized
}

// List returns the tenant's banned set, populating defaults on first touch.
func (s *KeywordStore) List(tenantScope string) []string {
	keywords := s.keywords(tenantScope)
	out := make([]string, len(keywords))
	copy(out, keywords)
	return out
}

func (s *KeywordStore) keywords(tenantScope string) []string {
	s.mu.RLock()
	keywords, ok := s.byScope[tenantScope]
	s.mu.RUnlock()
	if ok {
		return keywords
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if keywords, ok := s.byScope[tenantScope]; ok {
		return keywords
	}
	defaults := make([]string, len(DefaultKeywords))
	copy(defaults, DefaultKeywords)
	sort.Strings(defaults)
	s.byScope[tenantScope] = defaults
	return defaults
}
