package store

import (
	"database/sql"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dvo/proxypool/app"
	"github.com/dvo/proxypool/pxy"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// unexported unit test shim
var now = time.Now

var createStmt = `
	create table if not exists proxies (
		protocol text not null,
		host text not null,
		port integer not null,
		is_working boolean not null default 1,
		fail_count integer not null default 0,
		last_checked timestamp not null default current_timestamp,
		unique(host, port)
	);
`

type Record struct {
	Proxy       pxy.Proxy
	Working     bool
	FailCount   int
	LastChecked time.Time
	LatencyMs   int64
}

// Pool is the only shared mutable resource of the whole service. Every
// other component goes through this narrow contract, so that the
// uniqueness and failure-count invariants stay enforced in one place.
type Pool struct {
	db             *sql.DB
	usageThreshold int
}

func NewPool() *Pool {
	return &Pool{
		usageThreshold: 2,
	}
}

func (p *Pool) Configure(c app.Config) error {
	loc := c.StrOr("path", "$HOME/.$APP/pool.db")
	p.usageThreshold = c.IntOr("usage_threshold", 2)
	if loc != ":memory:" {
		err := os.MkdirAll(filepath.Dir(loc), 0700)
		if err != nil {
			return errors.Wrap(err, "state folder")
		}
		loc = "file:" + loc
	} else {
		loc = "file::memory:"
	}
	db, err := sql.Open("sqlite3", loc+"?_busy_timeout=5000")
	if err != nil {
		return errors.Wrap(err, "open pool db")
	}
	// sqlite serializes writers anyway, one connection avoids
	// SQLITE_BUSY races between concurrent validation batches
	db.SetMaxOpenConns(1)
	p.db = db
	return p.bootstrap()
}

func (p *Pool) bootstrap() error {
	_, err := p.db.Exec(createStmt)
	if err != nil {
		return errors.Wrap(err, "create tables")
	}
	// latency_ms arrived after the first released schema
	err = p.ensureColumn("latency_ms", "latency_ms integer not null default 0")
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`create index if not exists proxies_ranking
		on proxies(is_working, latency_ms)`)
	return errors.Wrap(err, "create index")
}

func (p *Pool) ensureColumn(name, ddl string) error {
	rows, err := p.db.Query(`select name from pragma_table_info('proxies')`)
	if err != nil {
		return errors.Wrap(err, "table info")
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err = rows.Scan(&col); err != nil {
			return errors.Wrap(err, "table info")
		}
		if col == name {
			return nil
		}
	}
	if err = rows.Err(); err != nil {
		return errors.Wrap(err, "table info")
	}
	_, err = p.db.Exec("alter table proxies add column " + ddl)
	return errors.Wrapf(err, "add column %s", name)
}

func (p *Pool) Close() error {
	return p.db.Close()
}

// UpsertWorking records a successful probe. Prior failures are
// forgiven, consecutive counts only.
func (p *Pool) UpsertWorking(c pxy.Proxy, latency time.Duration) error {
	_, err := p.db.Exec(`
		insert into proxies (protocol, host, port, is_working, fail_count, last_checked, latency_ms)
		values (?, ?, ?, 1, 0, ?, ?)
		on conflict (host, port) do update set
			protocol = excluded.protocol,
			is_working = 1,
			fail_count = 0,
			last_checked = excluded.last_checked,
			latency_ms = excluded.latency_ms`,
		string(c.Proto), c.Host, c.Port, now(), latency.Milliseconds())
	return errors.Wrapf(err, "upsert %s", c.Addr())
}

// MarkFailed is a no-op for proxies that were never seen working,
// there is no point in tracking the graveyard of a large feed.
func (p *Pool) MarkFailed(host string, port uint16) error {
	_, err := p.db.Exec(`
		update proxies set
			fail_count = fail_count + 1,
			is_working = 0,
			last_checked = ?
		where host = ? and port = ?`,
		now(), host, port)
	return errors.Wrapf(err, "mark failed %s:%d", host, port)
}

// RecordUsageFailure weighs heavier than a probe failure: a proxy that
// broke under live traffic stops being served once it accumulates
// usageThreshold consecutive failures.
func (p *Pool) RecordUsageFailure(proxyURL string) error {
	c, ok := pxy.Parse(proxyURL)
	if !ok {
		return errors.Errorf("malformed proxy url: %s", app.Shrink(proxyURL))
	}
	_, err := p.db.Exec(`
		update proxies set
			fail_count = fail_count + 1,
			last_checked = ?,
			is_working = case
				when fail_count + 1 >= ? then 0
				else is_working
			end
		where host = ? and port = ?`,
		now(), p.usageThreshold, c.Host, c.Port)
	return errors.Wrapf(err, "usage failure %s", c.Addr())
}

const recordColumns = `protocol, host, port, is_working, fail_count, last_checked, latency_ms`

func scanRecord(rows interface{ Scan(...any) error }) (r Record, err error) {
	var proto string
	err = rows.Scan(&proto, &r.Proxy.Host, &r.Proxy.Port,
		&r.Working, &r.FailCount, &r.LastChecked, &r.LatencyMs)
	r.Proxy.Proto = pxy.Proto(proto)
	return
}

// SelectBest returns the fastest working proxy, or nil when the pool
// has nothing to offer. The latter is a normal outcome, not an error.
func (p *Pool) SelectBest() (*Record, error) {
	row := p.db.QueryRow(`
		select ` + recordColumns + ` from proxies
		where is_working = 1
		order by latency_ms asc
		limit 1`)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select best")
	}
	return &r, nil
}

// Working returns all working proxies, fastest first. Used to rebuild
// the round-robin snapshot after a refresh cycle.
func (p *Pool) Working() ([]Record, error) {
	return p.query(`
		select ` + recordColumns + ` from proxies
		where is_working = 1
		order by latency_ms asc`)
}

func (p *Pool) Snapshot() ([]Record, error) {
	return p.query(`
		select ` + recordColumns + ` from proxies
		order by is_working desc, latency_ms asc`)
}

func (p *Pool) query(q string) (out []Record, err error) {
	rows, err := p.db.Query(q)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "query records")
}

// EvictDead permanently removes everything past the failure threshold
// and reports the count removed, for observability.
func (p *Pool) EvictDead(threshold int) (int, error) {
	res, err := p.db.Exec(`delete from proxies where fail_count > ?`, threshold)
	if err != nil {
		return 0, errors.Wrap(err, "evict dead")
	}
	removed, err := res.RowsAffected()
	return int(removed), errors.Wrap(err, "evict dead")
}

func (p *Pool) Remove(host string, port uint16) error {
	_, err := p.db.Exec(`delete from proxies where host = ? and port = ?`,
		host, port)
	return errors.Wrapf(err, "remove %s:%d", host, port)
}

func (p *Pool) HttpGet(_ *http.Request) (interface{}, error) {
	return p.Snapshot()
}

func (p *Pool) HttpDeleteByID(id string, _ *http.Request) (interface{}, error) {
	c, ok := pxy.Parse(id)
	if !ok {
		return nil, app.NotFound("not a host:port pair: " + id)
	}
	return nil, p.Remove(c.Host, c.Port)
}
