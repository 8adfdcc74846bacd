package dayfile

import (
	"path/filepath"
	"sort"

	uuid "github.com/satori/go.uuid"
	"github.com/spf13/afero"

	"github.com/barshanhassan/enexory-parquet-export/internal/cdcerr"
	"github.com/barshanhassan/enexory-parquet-export/internal/collapse"
)

// Store performs the read-modify-write cycle against one base directory of
// day files. Filesystem access goes through afero.Fs (not bare os calls),
// the way arkiliandb-Arkilian and wilhg-orch abstract their storage
// backends, so tests can exercise the atomic-replace path against
// afero.NewMemMapFs().
type Store struct {
	fs      afero.Fs
	baseDir string
}

// NewStore creates a Store rooted at baseDir on fs.
func NewStore(fs afero.Fs, baseDir string) *Store {
	return &Store{fs: fs, baseDir: baseDir}
}

// Result describes the outcome of applying one day's effect set.
type Result struct {
	// Touched is false if the effect set was empty and the store didn't
	// touch disk at all (spec.md §4.3 step 2).
	Touched bool
	// Removed is true if the day file was deleted because the resulting
	// table was empty.
	Removed bool
	// RowCount is the row count of the file after the write (0 if Removed).
	RowCount int
}

func (s *Store) path(day string) string {
	return filepath.Join(s.baseDir, day+"."+Ext)
}

// Apply loads the existing day file (if any), applies effect's deletes,
// then updates, then inserts, and rewrites or removes the file accordingly.
// It is the exact algorithm of spec.md §4.3.
func (s *Store) Apply(day string, effect collapse.DayEffect) (Result, error) {
	if len(effect.Inserts) == 0 && len(effect.Updates) == 0 && len(effect.Deletes) == 0 {
		return Result{Touched: false}, nil
	}

	path := s.path(day)

	table, err := s.load(path)
	if err != nil {
		return Result{}, err
	}

	for pk := range effect.Deletes {
		delete(table, pk)
	}
	for pk, ev := range effect.Updates {
		if _, exists := table[pk]; exists {
			table[pk] = FromEvent(ev)
		}
		// UPDATE against a pk not in this day's partition is a no-op.
	}
	for pk, ev := range effect.Inserts {
		table[pk] = FromEvent(ev)
	}

	if len(table) == 0 {
		removed, err := s.removeIfExists(path)
		if err != nil {
			return Result{}, err
		}
		return Result{Touched: true, Removed: removed, RowCount: 0}, nil
	}

	if err := s.writeAtomic(path, table); err != nil {
		return Result{}, err
	}
	return Result{Touched: true, RowCount: len(table)}, nil
}

// load reads path into a pk->RowValue map. A missing file is not an error:
// it yields an empty table, per spec.md §7.
func (s *Store) load(path string) (map[int64]RowValue, error) {
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return nil, cdcerr.Errorf(cdcerr.IOErr, err, "stat %s", path)
	}
	if !exists {
		return make(map[int64]RowValue), nil
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, cdcerr.Errorf(cdcerr.IOErr, err, "read %s", path)
	}

	rows, err := decode(data)
	if err != nil {
		return nil, cdcerr.Errorf(cdcerr.IOErr, err, "decode %s", path)
	}

	table := make(map[int64]RowValue, len(rows))
	for _, r := range rows {
		table[r.ID] = r
	}
	return table, nil
}

// writeAtomic renders table to bytes and replaces path with them via a
// write-temp-fsync-rename discipline: on any error, the original file is
// left untouched. Grounded on arkiliandb-Arkilian's internal/index/lookup.go
// temp-path -> os.Rename pattern.
func (s *Store) writeAtomic(path string, table map[int64]RowValue) error {
	rows := make([]RowValue, 0, len(table))
	for _, r := range table {
		rows = append(rows, r)
	}
	// Sorted by id: keeps id unique-and-ordered on disk, and makes repeated
	// runs over the same net state byte-identical (spec.md §8 convergence).
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	data := encode(rows)

	tmpPath := path + ".tmp-" + uuid.NewV4().String()

	f, err := s.fs.Create(tmpPath)
	if err != nil {
		return cdcerr.Errorf(cdcerr.IOErr, err, "create temp file for %s", path)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return cdcerr.Errorf(cdcerr.IOErr, err, "write temp file for %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return cdcerr.Errorf(cdcerr.IOErr, err, "fsync temp file for %s", path)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return cdcerr.Errorf(cdcerr.IOErr, err, "close temp file for %s", path)
	}

	if err := s.fs.Rename(tmpPath, path); err != nil {
		s.fs.Remove(tmpPath)
		return cdcerr.Errorf(cdcerr.IOErr, err, "rename temp file into %s", path)
	}
	return nil
}

// removeIfExists removes path if present. It reports whether a file was
// actually removed.
func (s *Store) removeIfExists(path string) (bool, error) {
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, cdcerr.Errorf(cdcerr.IOErr, err, "stat %s", path)
	}
	if !exists {
		return false, nil
	}
	if err := s.fs.Remove(path); err != nil {
		return false, cdcerr.Errorf(cdcerr.IOErr, err, "remove %s", path)
	}
	return true, nil
}
