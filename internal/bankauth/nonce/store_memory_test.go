package nonce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"giro/pkg/platform/sentinel"
)

type NonceStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func (s *NonceStoreSuite) SetupTest() {
	s.store = NewInMemoryStore(5 * time.Minute)
}

func TestNonceStoreSuite(t *testing.T) {
	suite.Run(t, new(NonceStoreSuite))
}

func (s *NonceStoreSuite) TestIssue() {
	s.Run("value carries the domain tag as prefix", func() {
		c, err := s.store.Issue(context.Background(), "0xabc", DomainBank)
		s.Require().NoError(err)
		s.Require().NoError(ParseValue(c.Value, DomainBank))
		s.Error(ParseValue(c.Value, DomainIdentity))
	})

	s.Run("values are unique across issues", func() {
		a, err := s.store.Issue(context.Background(), "0xabc", DomainBank)
		s.Require().NoError(err)
		b, err := s.store.Issue(context.Background(), "0xabc", DomainBank)
		s.Require().NoError(err)
		s.NotEqual(a.Value, b.Value)
	})
}

func (s *NonceStoreSuite) TestConsume() {
	ctx := context.Background()

	s.Run("returns bound subject and domain", func() {
		c, err := s.store.Issue(ctx, "0xholder", DomainBank)
		s.Require().NoError(err)

		consumed, err := s.store.Consume(ctx, c.Value)
		s.Require().NoError(err)
		s.Equal("0xholder", consumed.Subject)
		s.Equal(DomainBank, consumed.Domain)
	})

	s.Run("second consume reports already used", func() {
		c, err := s.store.Issue(ctx, "0xholder", DomainBank)
		s.Require().NoError(err)

		_, err = s.store.Consume(ctx, c.Value)
		s.Require().NoError(err)

		_, err = s.store.Consume(ctx, c.Value)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("unknown value reports not found", func() {
		_, err := s.store.Consume(ctx, "bank:never-issued")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("expired value reports expired", func() {
		store := NewInMemoryStore(-time.Second)
		c, err := store.Issue(ctx, "0xholder", DomainBank)
		s.Require().NoError(err)

		_, err = store.Consume(ctx, c.Value)
		s.Require().ErrorIs(err, sentinel.ErrExpired)
	})
}

// TestConcurrentConsume exercises the single-use guarantee: any number of
// concurrent callers, at most one success.
func (s *NonceStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	c, err := s.store.Issue(ctx, "0xholder", DomainBank)
	s.Require().NoError(err)

	const callers = 32
	var wg sync.WaitGroup
	successes := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Consume(ctx, c.Value); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	s.Len(successes, 1)
}
