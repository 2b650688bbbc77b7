package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type widget struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (w widget) Key() string { return w.ID }

type MemoryTableTestSuite struct {
	suite.Suite
	ctx   context.Context
	table *MemoryTable[widget]
}

func (s *MemoryTableTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.table = NewMemoryTable[widget]()
}

func (s *MemoryTableTestSuite) TestGet_NotFound() {
	_, err := s.table.Get(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryTableTestSuite) TestPutThenGet() {
	s.Require().NoError(s.table.Put(s.ctx, widget{ID: "w1", Label: "first"}))

	got, err := s.table.Get(s.ctx, "w1")
	s.Require().NoError(err)
	s.Equal("first", got.Label)
}

func (s *MemoryTableTestSuite) TestPut_Overwrites() {
	s.Require().NoError(s.table.Put(s.ctx, widget{ID: "w1", Label: "first"}))
	s.Require().NoError(s.table.Put(s.ctx, widget{ID: "w1", Label: "second"}))

	got, err := s.table.Get(s.ctx, "w1")
	s.Require().NoError(err)
	s.Equal("second", got.Label)
	s.Equal(1, s.table.Len())
}

func (s *MemoryTableTestSuite) TestPutIfAbsent() {
	s.Require().NoError(s.table.PutIfAbsent(s.ctx, widget{ID: "w1", Label: "first"}))
	s.ErrorIs(s.table.PutIfAbsent(s.ctx, widget{ID: "w1", Label: "second"}), ErrAlreadyExists)

	got, err := s.table.Get(s.ctx, "w1")
	s.Require().NoError(err)
	s.Equal("first", got.Label)
}

func (s *MemoryTableTestSuite) TestScan_OrderedByKey() {
	for _, id := range []string{"c", "a", "b"} {
		s.Require().NoError(s.table.Put(s.ctx, widget{ID: id}))
	}

	rows, err := s.table.Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal([]string{"a", "b", "c"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
}

func (s *MemoryTableTestSuite) TestScan_EmptyIsNotNil() {
	rows, err := s.table.Scan(s.ctx)
	s.Require().NoError(err)
	s.NotNil(rows)
	s.Empty(rows)
}

func (s *MemoryTableTestSuite) TestConcurrentPutIfAbsent_SingleWinner() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.table.PutIfAbsent(s.ctx, widget{ID: "race"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
}

func TestMemoryTableTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryTableTestSuite))
}
