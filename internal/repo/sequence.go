package repo

import "gorm.io/gorm"

// uidSequenceLock is the advisory lock id guarding the accounts uid sequence.
const uidSequenceLock = 0x61636374

// sequencer serializes and compacts the accounts uid sequence. Both calls run
// inside the caller's transaction.
type sequencer interface {
	lock(tx *gorm.DB) error
	compact(tx *gorm.DB) error
}

func sequencerFor(dialect string) sequencer {
	if dialect == "postgres" {
		return postgresSequencer{}
	}
	return sqliteSequencer{}
}

type sqliteSequencer struct{}

// sqlite holds a database-wide write lock for the whole transaction.
func (sqliteSequencer) lock(*gorm.DB) error { return nil }

func (sqliteSequencer) compact(tx *gorm.DB) error {
	return tx.Exec(`UPDATE sqlite_sequence SET seq = (SELECT IFNULL(MAX(uid), 0) FROM accounts) WHERE name = 'accounts'`).Error
}

type postgresSequencer struct{}

func (postgresSequencer) lock(tx *gorm.DB) error {
	return tx.Exec(`SELECT pg_advisory_xact_lock(?)`, uidSequenceLock).Error
}

func (postgresSequencer) compact(tx *gorm.DB) error {
	return tx.Exec(`SELECT setval(pg_get_serial_sequence('accounts', 'uid'), COALESCE((SELECT MAX(uid) FROM accounts), 0) + 1, false)`).Error
}
