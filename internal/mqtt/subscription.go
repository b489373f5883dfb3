package mqtt

import (
	"strings"
	"sync"

	"github.com/rrrd/rrr/internal/rrrerr"
	"github.com/rrrd/rrr/istrings"
)

// ValidateFilter checks a subscription filter for wildcard placement:
// '#' may only appear alone as the final token, '+' must occupy a whole
// token.
func ValidateFilter(filter string) error {
	if filter == "" {
		return rrrerr.New(rrrerr.Soft, "mqtt: empty topic filter")
	}
	tokens := strings.Split(filter, "/")
	for i, tok := range tokens {
		if strings.Contains(tok, "#") {
			if tok != "#" || i != len(tokens)-1 {
				return rrrerr.Newf(rrrerr.Soft, "mqtt: '#' must be the final token in %q", filter)
			}
		}
		if strings.Contains(tok, "+") && tok != "+" {
			return rrrerr.Newf(rrrerr.Soft, "mqtt: '+' must occupy a whole token in %q", filter)
		}
	}
	return nil
}

// MatchTopic walks filter and topic token-by-token: '+' matches exactly
// one token, '#' matches zero or more trailing tokens.
func MatchTopic(filter, topic string) bool {
	ftoks := strings.Split(filter, "/")
	ttoks := strings.Split(topic, "/")

	for i, ftok := range ftoks {
		if ftok == "#" {
			return i == len(ftoks)-1
		}
		if i >= len(ttoks) {
			return false
		}
		if ftok != "+" && ftok != ttoks[i] {
			return false
		}
	}
	return len(ftoks) == len(ttoks)
}

// subscription is one filter held by a connection. Tokens are interned:
// matching runs per published packet and topic level names repeat
// heavily across filters.
type subscription struct {
	filter string
	tokens []istrings.IString
	qos    uint8
}

// SubscriptionCollection holds one connection's filters.
type SubscriptionCollection struct {
	mu   sync.Mutex
	subs []*subscription
}

// Add inserts or replaces a filter. Replacement keeps SUBSCRIBE
// idempotent for a client that re-subscribes with a new max QoS.
func (c *SubscriptionCollection) Add(filter string, qos uint8) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	toks := strings.Split(filter, "/")
	interned := make([]istrings.IString, len(toks))
	for i, t := range toks {
		interned[i] = istrings.Get(t)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		if s.filter == filter {
			s.qos = qos
			return nil
		}
	}
	c.subs = append(c.subs, &subscription{filter: filter, tokens: interned, qos: qos})
	return nil
}

// Remove deletes a filter; reports whether it was present.
func (c *SubscriptionCollection) Remove(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.filter == filter {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of held filters.
func (c *SubscriptionCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Match calls fn once per filter that matches topic, passing the filter
// string and its granted QoS. fn returns false to stop early.
func (c *SubscriptionCollection) Match(topic string, fn func(filter string, qos uint8) bool) {
	ttoks := strings.Split(topic, "/")
	c.mu.Lock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		if matchTokens(s.tokens, ttoks) {
			if !fn(s.filter, s.qos) {
				return
			}
		}
	}
}

func matchTokens(ftoks []istrings.IString, ttoks []string) bool {
	for i := range ftoks {
		ftok := ftoks[i].String()
		if ftok == "#" {
			return i == len(ftoks)-1
		}
		if i >= len(ttoks) {
			return false
		}
		if ftok != "+" && ftok != ttoks[i] {
			return false
		}
	}
	return len(ftoks) == len(ttoks)
}
