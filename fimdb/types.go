package fimdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Monitoring modes a file entry can be tracked under
const (
	ModeScheduled = "scheduled"
	ModeRealtime  = "realtime"
	ModeWhodata   = "whodata"
)

// Sync event names passed to the SyncNotifier
const (
	EventFileAdded            = "file_added"
	EventFileModified         = "file_modified"
	EventFileRemoved          = "file_removed"
	EventIntegrityCheckGlobal = "integrity_check_global"
	EventIntegrityClear       = "integrity_clear"
)

// Component tags every payload produced by this package
const Component = "fim_file"

// Operation names carried inside state payloads
const (
	OpInsert = "insert"
	OpModify = "modify"
	OpDelete = "delete"
)

var (
	ErrNotFound          = errors.New("file entry not found")
	ErrFileLimitReached  = errors.New("file limit reached")
	ErrInvalidEntry      = errors.New("invalid file entry")
	ErrClosed            = errors.New("fim database is closed")
	ErrInvalidPathFilter = errors.New("invalid path pattern")
)

// FileEntry is the stored state of one monitored file.
type FileEntry struct {
	Path       string `db:"path" msgpack:"path" json:"path"`
	Mode       string `db:"mode" msgpack:"mode" json:"mode"`
	Size       int64  `db:"size" msgpack:"size" json:"size"`
	Perm       string `db:"perm" msgpack:"perm" json:"perm"`
	Attributes string `db:"attributes" msgpack:"attributes" json:"attributes,omitempty"`
	UID        string `db:"uid" msgpack:"uid" json:"uid"`
	GID        string `db:"gid" msgpack:"gid" json:"gid"`
	UserName   string `db:"user_name" msgpack:"user_name" json:"user_name,omitempty"`
	GroupName  string `db:"group_name" msgpack:"group_name" json:"group_name,omitempty"`
	Inode      int64  `db:"inode" msgpack:"inode" json:"inode"`
	Dev        int64  `db:"dev" msgpack:"dev" json:"dev"`
	MTime      int64  `db:"mtime" msgpack:"mtime" json:"mtime"`
	HashMD5    string `db:"hash_md5" msgpack:"hash_md5" json:"hash_md5,omitempty"`
	HashSHA1   string `db:"hash_sha1" msgpack:"hash_sha1" json:"hash_sha1,omitempty"`
	HashSHA256 string `db:"hash_sha256" msgpack:"hash_sha256" json:"hash_sha256,omitempty"`
	LastEvent  int64  `db:"last_event" msgpack:"last_event" json:"last_event"`
	Scanned    bool   `db:"scanned" msgpack:"-" json:"-"`
	Checksum   string `db:"checksum" msgpack:"checksum" json:"checksum"`
}

// Change describes what UpdateFile did with an entry
type Change int

const (
	ChangeNone Change = iota
	ChangeAdded
	ChangeModified
)

func (c Change) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	default:
		return "none"
	}
}

// normalize validates e and fills defaults. Path must be non-empty.
func (e *FileEntry) normalize() error {
	if strings.TrimSpace(e.Path) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidEntry)
	}
	switch e.Mode {
	case "":
		e.Mode = ModeScheduled
	case ModeScheduled, ModeRealtime, ModeWhodata:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidEntry, e.Mode)
	}
	if e.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidEntry)
	}
	return nil
}

// ComputeChecksum returns the xxhash64 of the attribute tuple as 16 hex digits.
// Path, mode, scan bookkeeping and LastEvent are excluded so that an unchanged
// file rescanned later keeps the same checksum. Each field is length-prefixed
// so separators inside values cannot shift bytes between fields.
func (e *FileEntry) ComputeChecksum() string {
	h := xxhash.New()
	fields := []string{
		strconv.FormatInt(e.Size, 10),
		e.Perm,
		e.Attributes,
		e.UID,
		e.GID,
		e.UserName,
		e.GroupName,
		strconv.FormatInt(e.MTime, 10),
		strconv.FormatInt(e.Inode, 10),
		strconv.FormatInt(e.Dev, 10),
		e.HashMD5,
		e.HashSHA1,
		e.HashSHA256,
	}
	var prefix [binary.MaxVarintLen64]byte
	for _, f := range fields {
		n := binary.PutUvarint(prefix[:], uint64(len(f)))
		h.Write(prefix[:n])
		h.WriteString(f)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// changedAttributes lists the attribute names that differ between old and cur.
func changedAttributes(old, cur *FileEntry) []string {
	var changed []string
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	add("mode", old.Mode != cur.Mode)
	add("size", old.Size != cur.Size)
	add("permission", old.Perm != cur.Perm)
	add("attributes", old.Attributes != cur.Attributes)
	add("uid", old.UID != cur.UID)
	add("gid", old.GID != cur.GID)
	add("user_name", old.UserName != cur.UserName)
	add("group_name", old.GroupName != cur.GroupName)
	add("mtime", old.MTime != cur.MTime)
	add("inode", old.Inode != cur.Inode)
	add("device", old.Dev != cur.Dev)
	add("md5", old.HashMD5 != cur.HashMD5)
	add("sha1", old.HashSHA1 != cur.HashSHA1)
	add("sha256", old.HashSHA256 != cur.HashSHA256)
	return changed
}

// StatePayload is the msgpack body of file_added, file_modified and file_removed.
type StatePayload struct {
	Component string    `msgpack:"component"`
	Type      string    `msgpack:"type"`
	Operation string    `msgpack:"op"`
	Timestamp int64     `msgpack:"ts"`
	Changed   []string  `msgpack:"changed,omitempty"`
	Data      FileEntry `msgpack:"data"`
}

// IntegrityPayload is the msgpack body of integrity_check_global and integrity_clear.
type IntegrityPayload struct {
	Component string `msgpack:"component"`
	Type      string `msgpack:"type"`
	ID        int64  `msgpack:"id"`
	Begin     string `msgpack:"begin,omitempty"`
	End       string `msgpack:"end,omitempty"`
	Checksum  string `msgpack:"checksum,omitempty"`
	Count     int    `msgpack:"count"`
}
