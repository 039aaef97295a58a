package backend

import (
	"database/sql"
	"sync"

	"github.com/hbollon/go-edlib"
	"github.com/mattn/go-sqlite3"
)

const sqliteDriverName = "sqlite3_duck_link"

var registerSQLite sync.Once

// stringFunctions are the string metrics the sqlite dialect calls by name.
// NULL on either side yields NULL, matching the native functions of the
// other engines.
var stringFunctions = map[string]func(a, b string) any{
	"levenshtein": func(a, b string) any {
		return int64(edlib.LevenshteinDistance(a, b))
	},
	"damerau_levenshtein": func(a, b string) any {
		return int64(edlib.DamerauLevenshteinDistance(a, b))
	},
	"jaro_sim": func(a, b string) any {
		return float64(edlib.JaroSimilarity(a, b))
	},
	"jaro_winkler": func(a, b string) any {
		return float64(edlib.JaroWinklerSimilarity(a, b))
	},
}

func nullable(fn func(a, b string) any) func(a, b any) any {
	return func(a, b any) any {
		as, ok := text(a)
		if !ok {
			return nil
		}
		bs, ok := text(b)
		if !ok {
			return nil
		}
		return fn(as, bs)
	}
}

func text(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		if s == nil {
			return "", false
		}
		return string(s), true
	}
	return "", false
}

func openSQLite(dsn string) (*sql.DB, error) {
	registerSQLite.Do(func() {
		sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				for name, fn := range stringFunctions {
					if err := conn.RegisterFunc(name, nullable(fn), true); err != nil {
						return err
					}
				}
				return nil
			},
		})
	})
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	// An in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}
