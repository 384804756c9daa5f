//go:build integration

package trigger

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/suite"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"

	"auction_watcher/internal/domain"
)

type NATSIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcnats.NATSContainer
	url       string
	logger    *slog.Logger
}

func (s *NATSIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := tcnats.Run(s.ctx, "nats:2.10-alpine")
	s.Require().NoError(err)
	s.container = container

	url, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)
	s.url = url
}

func (s *NATSIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestNATSIntegrationSuite(t *testing.T) {
	suite.Run(t, new(NATSIntegrationSuite))
}

func (s *NATSIntegrationSuite) connect() *nats.Conn {
	conn, err := nats.Connect(s.url)
	s.Require().NoError(err)
	s.T().Cleanup(conn.Close)
	return conn
}

func (s *NATSIntegrationSuite) TestRemoteChangeReachesOtherProcess() {
	subject := "test.watch.remote"

	var (
		mu       sync.Mutex
		received []domain.WatchConfiguration
	)
	listener := NewNATSBridge(s.connect(), subject, func(cfg domain.WatchConfiguration) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, cfg)
	}, s.logger)
	s.Require().NoError(listener.Start())
	defer listener.Close()

	announcer := NewNATSBridge(s.connect(), subject, func(domain.WatchConfiguration) {}, s.logger)
	announcer.Announce(domain.WatchConfiguration{SearchTerms: []string{"gitarr"}, Blacklist: []string{"1"}})

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"gitarr"}, received[0].SearchTerms)
	s.Equal([]string{"1"}, received[0].Blacklist)
}

func (s *NATSIntegrationSuite) TestOwnAnnouncementsAreIgnored() {
	subject := "test.watch.self"
	conn := s.connect()

	calls := 0
	var mu sync.Mutex
	bridge := NewNATSBridge(conn, subject, func(domain.WatchConfiguration) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, s.logger)
	s.Require().NoError(bridge.Start())
	defer bridge.Close()

	bridge.Announce(domain.WatchConfiguration{SearchTerms: []string{"gitarr"}})
	s.Require().NoError(conn.Flush())

	s.Never(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, 300*time.Millisecond, 20*time.Millisecond)
}
