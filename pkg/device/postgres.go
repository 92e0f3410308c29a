package device

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/gosimple/slug"
	"github.com/lib/pq"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// Postgres is a device which stores blocks as rows of a table keyed by
// block index. Missing rows read as zeros.
type Postgres struct {
	db     *sql.DB
	table  string
	blocks uint64
}

// OpenPostgresEnv connects using the `PG_*` environment variables and
// stores blocks in a table named after the volume.
func OpenPostgresEnv(volume string, blocks uint64) (*Postgres, error) {
	return OpenPostgres(
		fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("PG_HOST", "localhost"),
			getEnv("PG_PORT", "5432"),
			getEnv("PG_USER", "postgres"),
			getEnv("PG_PASS", ""),
			getEnv("PG_DB_NAME", "postgres"),
			getEnv("PG_SSL_MODE", "disable"),
		),
		volume,
		blocks,
	)
}

// OpenPostgres connects to the database described by `dsn`.
func OpenPostgres(dsn, volume string, blocks uint64) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres database: %w", err)
	}

	return NewPostgres(db, volume, blocks), nil
}

func NewPostgres(db *sql.DB, volume string, blocks uint64) *Postgres {
	return &Postgres{
		db:     db,
		table:  "blocks_" + slug.Make(volume),
		blocks: blocks,
	}
}

func getEnv(env, def string) string {
	x := os.Getenv(env)
	if x == "" {
		return def
	}
	return x
}

func (d *Postgres) Len() uint64 { return d.blocks }

func (d *Postgres) EnsureTable() error {
	if _, err := d.db.Exec(
		"CREATE TABLE IF NOT EXISTS " + pq.QuoteIdentifier(d.table) + " (" +
			"idx BIGINT NOT NULL PRIMARY KEY, " +
			"data BYTEA NOT NULL)",
	); err != nil {
		return fmt.Errorf("creating `%s` postgres table: %w", d.table, err)
	}
	return nil
}

func (d *Postgres) DropTable() error {
	if _, err := d.db.Exec(
		"DROP TABLE IF EXISTS " + pq.QuoteIdentifier(d.table),
	); err != nil {
		return fmt.Errorf("dropping table `%s`: %w", d.table, err)
	}
	return nil
}

func (d *Postgres) ReadBlock(index uint64, b *[DeviceBlockSize]byte) error {
	if err := checkIndex(d, index); err != nil {
		return fmt.Errorf("reading postgres device: %w", err)
	}

	var data []byte
	if err := d.db.QueryRow(
		"SELECT data FROM "+pq.QuoteIdentifier(d.table)+" WHERE idx = $1",
		int64(index),
	).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			zero(b)
			return nil
		}
		return fmt.Errorf(
			"reading postgres device block `%d` from table `%s`: %w",
			index,
			d.table,
			err,
		)
	}

	if len(data) != len(b) {
		return fmt.Errorf(
			"reading postgres device block `%d` from table `%s`: "+
				"wanted `%d` bytes; found `%d`",
			index,
			d.table,
			len(b),
			len(data),
		)
	}
	copy(b[:], data)
	return nil
}

func (d *Postgres) WriteBlock(index uint64, b *[DeviceBlockSize]byte) error {
	if err := checkIndex(d, index); err != nil {
		return fmt.Errorf("writing postgres device: %w", err)
	}

	if _, err := d.db.Exec(
		"INSERT INTO "+pq.QuoteIdentifier(d.table)+" (idx, data) "+
			"VALUES ($1, $2) "+
			"ON CONFLICT (idx) DO UPDATE SET data = EXCLUDED.data",
		int64(index),
		b[:],
	); err != nil {
		return fmt.Errorf(
			"writing postgres device block `%d` to table `%s`: %w",
			index,
			d.table,
			err,
		)
	}
	return nil
}

func (d *Postgres) Close() error { return d.db.Close() }
