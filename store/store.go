package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/halvar/credkeeper/pkg/checksum"
	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/rs/zerolog/log"
)

const (
	cookiesFile   = "cookies.json"
	snapshotFile  = "storage.json"
	metaFile      = "meta.json"
	checksumsFile = "checksums.json"

	// defaultAccount is the directory key used when a service has a single
	// implicit account.
	defaultAccount = "default"

	// BackupTimeFormat names backup directories and is the spelling shown
	// to (and accepted from) operators when addressing a backup.
	BackupTimeFormat = "20060102-150405"
)

// Store persists auth state envelopes and timestamped backups on the
// filesystem. Writes for a given (service, account) key are mutually
// exclusive; distinct keys are fully independent.
type Store struct {
	stateDir  string
	backupDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// BackupHandle identifies one immutable timestamped backup.
type BackupHandle struct {
	Service   string
	Account   string
	Timestamp time.Time
	Dir       string
}

// New creates a Store rooted at the given state and backup directories,
// creating them if needed.
func New(stateDir, backupDir string) (*Store, error) {
	for _, dir := range []string{stateDir, backupDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to create store directory %s", dir), err)
		}
	}
	return &Store{
		stateDir:  stateDir,
		backupDir: backupDir,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex serializing access to one (service, account) key.
func (s *Store) lockFor(service, account string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := service + "/" + accountKey(account)
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func accountKey(account string) string {
	if account == "" {
		return defaultAccount
	}
	return account
}

func (s *Store) statePath(service, account string) string {
	return filepath.Join(s.stateDir, service, accountKey(account))
}

func (s *Store) backupRoot(service, account string) string {
	return filepath.Join(s.backupDir, service, accountKey(account))
}

// Load reads the current auth state for a target. A missing envelope is not
// an error: it returns (nil, nil). A present envelope without a readable
// timestamp sidecar is also treated as absent, since an auth state without
// last_refreshed_at carries no usable freshness signal.
func (s *Store) Load(service, account string) (*AuthState, error) {
	lock := s.lockFor(service, account)
	lock.Lock()
	defer lock.Unlock()
	return s.loadLocked(service, account)
}

func (s *Store) loadLocked(service, account string) (*AuthState, error) {
	dir := s.statePath(service, account)

	metaBytes, err := os.ReadFile(filepath.Join(dir, metaFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to read state metadata for %s/%s", service, accountKey(account)), err)
	}
	var m meta
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		return nil, clierr.New(clierr.Storage, fmt.Sprintf("corrupted state metadata for %s/%s", service, accountKey(account)), err)
	}

	state := &AuthState{LastRefreshedAt: m.LastRefreshedAt}

	cookieBytes, err := os.ReadFile(filepath.Join(dir, cookiesFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to read cookies for %s/%s", service, accountKey(account)), err)
	}
	if err == nil {
		if err := json.Unmarshal(cookieBytes, &state.Cookies); err != nil {
			return nil, clierr.New(clierr.Storage, fmt.Sprintf("corrupted cookie file for %s/%s", service, accountKey(account)), err)
		}
	}

	snapBytes, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to read storage snapshot for %s/%s", service, accountKey(account)), err)
	}
	if err == nil {
		var snap StorageSnapshot
		if err := json.Unmarshal(snapBytes, &snap); err != nil {
			return nil, clierr.New(clierr.Storage, fmt.Sprintf("corrupted storage snapshot for %s/%s", service, accountKey(account)), err)
		}
		state.Snapshot = &snap
	}

	return state, nil
}

// Save replaces the envelope for a target. If a prior state exists it is
// backed up first, then both representations plus the timestamp sidecar are
// written to temp files and renamed into place, so a crash mid-write can
// never leave a partial envelope as the only copy.
func (s *Store) Save(service, account string, state *AuthState) error {
	if state == nil {
		return clierr.New(clierr.Storage, "refusing to save nil auth state", nil)
	}
	if state.LastRefreshedAt.IsZero() {
		return clierr.New(clierr.Storage, "refusing to save auth state without a refresh timestamp", nil)
	}

	lock := s.lockFor(service, account)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.backupLocked(service, account); err != nil {
		return err
	}

	dir := s.statePath(service, account)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return clierr.New(clierr.Storage, fmt.Sprintf("failed to create state directory for %s/%s", service, accountKey(account)), err)
	}

	files := map[string]any{
		cookiesFile:  state.Cookies,
		snapshotFile: state.Snapshot,
		metaFile:     meta{LastRefreshedAt: state.LastRefreshedAt},
	}
	if state.Cookies == nil {
		files[cookiesFile] = []Cookie{}
	}
	if state.Snapshot == nil {
		files[snapshotFile] = &StorageSnapshot{Cookies: state.Cookies}
	}

	// Stage everything first; rename only after every temp write succeeded.
	staged := make(map[string]string, len(files))
	for name, payload := range files {
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			cleanupStaged(staged)
			return clierr.New(clierr.Storage, fmt.Sprintf("failed to encode %s for %s/%s", name, service, accountKey(account)), err)
		}
		tmp := filepath.Join(dir, name+".tmp")
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			cleanupStaged(staged)
			return clierr.New(clierr.Storage, fmt.Sprintf("failed to stage %s for %s/%s", name, service, accountKey(account)), err)
		}
		staged[tmp] = filepath.Join(dir, name)
	}

	for tmp, final := range staged {
		if err := os.Rename(tmp, final); err != nil {
			cleanupStaged(staged)
			return clierr.New(clierr.Storage, fmt.Sprintf("failed to replace %s for %s/%s", final, service, accountKey(account)), err)
		}
	}

	log.Debug().Str("service", service).Str("account", accountKey(account)).Msg("Auth state saved")
	return nil
}

func cleanupStaged(staged map[string]string) {
	for tmp := range staged {
		_ = os.Remove(tmp)
	}
}

// Backup copies the current envelope, if any, into a timestamped directory
// under the backup root. When no current state exists the call succeeds and
// returns a nil handle. Backups are never modified after creation; each one
// carries a checksum manifest so Restore can detect tampering or bit rot.
func (s *Store) Backup(service, account string) (*BackupHandle, error) {
	lock := s.lockFor(service, account)
	lock.Lock()
	defer lock.Unlock()
	return s.backupLocked(service, account)
}

func (s *Store) backupLocked(service, account string) (*BackupHandle, error) {
	srcDir := s.statePath(service, account)
	if _, err := os.Stat(filepath.Join(srcDir, metaFile)); os.IsNotExist(err) {
		return nil, nil // nothing to back up
	}

	now := time.Now().UTC()
	root := s.backupRoot(service, account)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to create backup root for %s/%s", service, accountKey(account)), err)
	}
	// Mkdir (not MkdirAll) so two attempts within the same second cannot
	// silently share a directory.
	dstDir := filepath.Join(root, now.Format(BackupTimeFormat))
	for i := 1; ; i++ {
		err := os.Mkdir(dstDir, 0o750)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to create backup directory for %s/%s", service, accountKey(account)), err)
		}
		dstDir = filepath.Join(root, fmt.Sprintf("%s.%d", now.Format(BackupTimeFormat), i))
	}

	sums := make(map[string]string)
	for _, name := range []string{cookiesFile, snapshotFile, metaFile} {
		src := filepath.Join(srcDir, name)
		data, err := os.ReadFile(src)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to read %s for backup of %s/%s", name, service, accountKey(account)), err)
		}
		dst := filepath.Join(dstDir, name)
		if err := os.WriteFile(dst, data, 0o600); err != nil {
			return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to write backup %s for %s/%s", name, service, accountKey(account)), err)
		}
		sum, err := checksum.File(dst)
		if err != nil {
			return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to checksum backup %s for %s/%s", name, service, accountKey(account)), err)
		}
		sums[name] = sum
	}

	manifest, err := json.MarshalIndent(sums, "", "  ")
	if err != nil {
		return nil, clierr.New(clierr.Storage, "failed to encode backup checksums", err)
	}
	if err := os.WriteFile(filepath.Join(dstDir, checksumsFile), manifest, 0o600); err != nil {
		return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to write backup checksums for %s/%s", service, accountKey(account)), err)
	}

	log.Debug().Str("service", service).Str("account", accountKey(account)).Str("backup", dstDir).Msg("Auth state backed up")
	return &BackupHandle{Service: service, Account: account, Timestamp: now, Dir: dstDir}, nil
}

// Backups lists the backups for a target, newest first.
func (s *Store) Backups(service, account string) ([]BackupHandle, error) {
	root := s.backupRoot(service, account)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, clierr.New(clierr.Storage, fmt.Sprintf("failed to list backups for %s/%s", service, accountKey(account)), err)
	}

	var handles []BackupHandle
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ts, err := time.Parse(BackupTimeFormat, strings.SplitN(e.Name(), ".", 2)[0])
		if err != nil {
			log.Warn().Str("dir", e.Name()).Msg("Skipping backup directory with unparseable timestamp")
			continue
		}
		handles = append(handles, BackupHandle{
			Service:   service,
			Account:   account,
			Timestamp: ts,
			Dir:       filepath.Join(root, e.Name()),
		})
	}
	sort.Slice(handles, func(i, j int) bool {
		if handles[i].Timestamp.Equal(handles[j].Timestamp) {
			return handles[i].Dir > handles[j].Dir
		}
		return handles[i].Timestamp.After(handles[j].Timestamp)
	})
	return handles, nil
}

// Restore copies a backup over the current envelope. This is an explicit
// recovery operation and is never invoked by the refresh path. The backup's
// checksum manifest is verified before anything is overwritten.
func (s *Store) Restore(service, account string, handle BackupHandle) error {
	lock := s.lockFor(service, account)
	lock.Lock()
	defer lock.Unlock()

	manifestBytes, err := os.ReadFile(filepath.Join(handle.Dir, checksumsFile))
	if err != nil {
		return clierr.New(clierr.Storage, fmt.Sprintf("failed to read backup checksums from %s", handle.Dir), err)
	}
	var sums map[string]string
	if err := json.Unmarshal(manifestBytes, &sums); err != nil {
		return clierr.New(clierr.Storage, fmt.Sprintf("corrupted backup checksum manifest in %s", handle.Dir), err)
	}
	for name, sum := range sums {
		ok, err := checksum.Verify(filepath.Join(handle.Dir, name), sum)
		if err != nil {
			return clierr.New(clierr.Storage, fmt.Sprintf("failed to verify backup file %s", name), err)
		}
		if !ok {
			return clierr.New(clierr.Storage, fmt.Sprintf("backup file %s failed checksum verification, refusing to restore", name), nil)
		}
	}

	dstDir := s.statePath(service, account)
	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return clierr.New(clierr.Storage, fmt.Sprintf("failed to create state directory for %s/%s", service, accountKey(account)), err)
	}

	for name := range sums {
		data, err := os.ReadFile(filepath.Join(handle.Dir, name))
		if err != nil {
			return clierr.New(clierr.Storage, fmt.Sprintf("failed to read backup file %s", name), err)
		}
		tmp := filepath.Join(dstDir, name+".tmp")
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return clierr.New(clierr.Storage, fmt.Sprintf("failed to stage restore of %s", name), err)
		}
		if err := os.Rename(tmp, filepath.Join(dstDir, name)); err != nil {
			return clierr.New(clierr.Storage, fmt.Sprintf("failed to restore %s", name), err)
		}
	}

	log.Info().Str("service", service).Str("account", accountKey(account)).Str("backup", handle.Dir).Msg("Auth state restored from backup")
	return nil
}

// Prune deletes backups older than the retention window. The newest backup
// for each target is always kept, even when older than the cutoff, so at
// least one rollback point survives. Safe to run concurrently with reads.
func (s *Store) Prune(olderThan time.Duration) (int, error) {
	services, err := os.ReadDir(s.backupDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, clierr.New(clierr.Storage, "failed to list backup root", err)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0

	for _, svc := range services {
		if !svc.IsDir() {
			continue
		}
		accounts, err := os.ReadDir(filepath.Join(s.backupDir, svc.Name()))
		if err != nil {
			return removed, clierr.New(clierr.Storage, fmt.Sprintf("failed to list backups for %s", svc.Name()), err)
		}
		for _, acct := range accounts {
			if !acct.IsDir() {
				continue
			}
			handles, err := s.Backups(svc.Name(), acct.Name())
			if err != nil {
				return removed, err
			}
			// handles are newest first; index 0 is always preserved
			for _, h := range handles[min(1, len(handles)):] {
				if h.Timestamp.Before(cutoff) {
					if err := os.RemoveAll(h.Dir); err != nil {
						return removed, clierr.New(clierr.Storage, fmt.Sprintf("failed to prune backup %s", h.Dir), err)
					}
					removed++
				}
			}
		}
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Pruned expired backups")
	}
	return removed, nil
}
