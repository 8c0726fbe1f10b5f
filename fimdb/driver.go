package fimdb

import (
	"database/sql"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mattn/go-sqlite3"
)

// DriverName is the SQLite driver registered with the path_glob function
const DriverName = "sqlite3_fim"

var globCache, _ = lru.New[string, glob.Glob](256)

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// Usage: path_glob('/etc/**', path)
			return conn.RegisterFunc("path_glob", pathGlob, true)
		},
	})
}

// compileGlob compiles a path pattern where '*' stops at '/' and '**' does not.
func compileGlob(pattern string) (glob.Glob, error) {
	if g, ok := globCache.Get(pattern); ok {
		return g, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	globCache.Add(pattern, g)
	return g, nil
}

func pathGlob(pattern, path string) (bool, error) {
	g, err := compileGlob(pattern)
	if err != nil {
		return false, err
	}
	return g.Match(path), nil
}
