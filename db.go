// db.go
//
// Session store selection for the server.
//   - HUNT_DB empty: in-memory store; unfinished games are lost on restart.
//   - HUNT_DB set: SQLite file (created with its directory if missing,
//     WAL, migrations applied), so unfinished games survive a restart.

package main

import (
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wolfsheep/internal/store"
)

// openStore returns the configured store and a func that releases it.
func openStore(dsn string) (store.Store, func(), error) {
	if dsn == "" {
		log.Info().Msg("sessions kept in memory (HUNT_DB not set)")
		return store.NewMemoryStore(), func() {}, nil
	}
	db, err := store.OpenDB(dsn)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("db", dsn).Msg("sessions persisted to sqlite")
	return store.NewSQLiteStore(db), func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("close db")
		}
	}, nil
}
