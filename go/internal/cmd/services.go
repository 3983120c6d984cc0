package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/kalimahplay/kalimah/go/internal/eventbus"
	"github.com/kalimahplay/kalimah/go/internal/gateway"
	"github.com/kalimahplay/kalimah/go/internal/points"
	"github.com/kalimahplay/kalimah/go/internal/room"
	"github.com/kalimahplay/kalimah/go/internal/roomsync"
	"github.com/kalimahplay/kalimah/go/internal/storage/postgres"
)

type Services struct {
	Bus         *eventbus.Bus
	Rooms       *room.App
	Sessions    *gateway.SessionManager
	Connections *gateway.ConnectionManager
	Bridge      *gateway.Bridge
	Handler     *gateway.Handler
}

func setupServices(pool *pgxpool.Pool, bus *eventbus.Bus, gameCfg roomsync.Config) *Services {
	// Database layer -> repository -> app layer -> gateway.
	repo := postgres.NewRepository(pool)
	clock := clockwork.NewRealClock()

	ledger := points.NewApp(repo)
	rooms := room.NewApp(repo, bus, clock)
	sessions := gateway.NewSessionManager(repo, bus, ledger, clock, gameCfg)

	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	connections.OnRoomEmpty(sessions.ReleaseRoom)
	bridge := gateway.NewBridge(bus, connections)
	handler := gateway.NewHandler(rooms, sessions, connections, bridge)

	return &Services{
		Bus:         bus,
		Rooms:       rooms,
		Sessions:    sessions,
		Connections: connections,
		Bridge:      bridge,
		Handler:     handler,
	}
}
