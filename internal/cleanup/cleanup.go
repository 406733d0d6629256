// Package cleanup garbage-collects rooms that have gone cold: no live
// connections and nothing drawn in them. Room codes are cheap to mint,
// so abandoned ones are not worth keeping.
package cleanup

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/easeldraw/easel/backend/internal/db"
)

type Config struct {
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: 10 * time.Minute}
}

// Occupancy reports whether a room currently has live connections; the
// hub provides it.
type Occupancy interface {
	HasClients(roomID int64) bool
}

type Service struct {
	database  *db.Database
	occupancy Occupancy
	config    Config
	logger    zerolog.Logger
	stop      chan struct{}
	wg        sync.WaitGroup
}

func New(database *db.Database, occupancy Occupancy, config Config, logger zerolog.Logger) *Service {
	return &Service{
		database:  database,
		occupancy: occupancy,
		config:    config,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info().Dur("interval", s.config.Interval).Msg("room cleanup service started")
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Info().Msg("room cleanup service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep deletes every room that is both unoccupied and empty.
func (s *Service) Sweep() {
	roomIDs, err := s.database.ListRoomIDs()
	if err != nil {
		s.logger.Error().Err(err).Msg("cleanup: failed to list rooms")
		return
	}

	removed := 0
	for _, roomID := range roomIDs {
		if s.occupancy.HasClients(roomID) {
			continue
		}
		count, err := s.database.CountEntitiesInRoom(roomID)
		if err != nil || count > 0 {
			continue
		}
		if err := s.database.DeleteRoom(roomID); err != nil {
			s.logger.Error().Int64("room", roomID).Err(err).Msg("cleanup: failed to delete room")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("rooms", removed).Msg("cleanup: removed abandoned rooms")
	}
}
