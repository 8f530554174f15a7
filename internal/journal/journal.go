package journal

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

const Interval = 5 * time.Minute

const schema = `
CREATE TABLE IF NOT EXISTS telemetry (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	sampled_at TIMESTAMP NOT NULL,
	soil_dryness INTEGER NOT NULL,
	brightness INTEGER NOT NULL,
	temperature REAL NOT NULL,
	humidity REAL NOT NULL,
	reservoir_full INTEGER NOT NULL
);`

// Journal is a write-only diagnostics log of telemetry samples. The
// device never reads it back; behavior across a power cycle never
// depends on it. Each boot gets a fresh session id so rows from
// different runs can be told apart.
type Journal struct {
	db      *sql.DB
	session string
}

func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{db: db, session: uuid.NewString()}
	log.Info().Str("path", path).Str("session", j.session).Msg("Telemetry journal opened")
	return j, nil
}

func (j *Journal) Task(st *model.DeviceState) *scheduler.Task {
	return scheduler.NewTask("journal", Interval, func(now time.Time) {
		if err := j.Record(now, st); err != nil {
			log.Error().Err(err).Msg("failed to journal telemetry")
		}
	})
}

func (j *Journal) Record(now time.Time, st *model.DeviceState) error {
	_, err := j.db.Exec(
		`INSERT INTO telemetry (session, recorded_at, sampled_at, soil_dryness, brightness, temperature, humidity, reservoir_full)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.session, now, st.Telemetry.SampledAt,
		st.Telemetry.SoilDryness, st.Telemetry.Brightness,
		st.Telemetry.Temperature, st.Telemetry.Humidity,
		st.Telemetry.ReservoirFull)
	return err
}

func (j *Journal) Close() error {
	return j.db.Close()
}
