// Package assets manages the on-disk audio partitions (cache, permanent and
// hailing) under one storage root.
//
// The Store is the only component that writes or deletes inside the root.
// Files are write-once: a new file becomes visible only after it has been
// fully written, and replacing a file means deleting it and storing again.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
)

// File and directory permissions.
const (
	dirPermissions  = 0o750
	filePermissions = 0o640
	tempPattern     = ".incoming-*"
)

// Log formats.
const (
	logFmtDirUnavailable = "Unable to set up %s directory %s, category disabled: %v"
	logFmtDirReady       = "Audio %s directory set to %s"
	logFmtStored         = "Stored %s (%s)"
	logFmtDeleted        = "Deleted %s"
	logFmtDeleteFailed   = "Failed to delete %s: %v"
	logFmtListFailed     = "Failed to list %s directory %s: %v"
	logFmtWriteFailed    = "Failed to write %s: %v"
	logFmtPurged         = "Purged %d %s file(s) from %s"
	logFmtTempCleanup    = "Failed to remove temp file %s: %v"
	logFmtSeeded         = "Seeded default %s file %s"
	logFmtSeedFailed     = "Failed to seed default %s file %s: %v"
)

var (
	// ErrFileSystem is matched by every *FileSystemError.
	ErrFileSystem = errors.New("file system error")
	// ErrNotFound indicates that the requested asset does not exist.
	ErrNotFound = errors.New("asset not found")
	// ErrAlreadyExists indicates a store onto an existing name; delete first.
	ErrAlreadyExists = errors.New("asset already exists")
	// ErrCategoryUnavailable indicates a partition whose directory could not be created.
	ErrCategoryUnavailable = errors.New("asset category unavailable")
	// ErrEmptyAudio indicates a store of zero bytes.
	ErrEmptyAudio = errors.New("audio data cannot be empty")
	// ErrNotAudio indicates a payload recognized as some non-audio file type.
	ErrNotAudio = errors.New("payload is not audio")
	// ErrRootEmpty indicates a Store constructed without a root directory.
	ErrRootEmpty = errors.New("storage root cannot be empty")
)

// FileSystemError is the single error kind for directory, write and delete failures.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// Is makes every FileSystemError match ErrFileSystem.
func (e *FileSystemError) Is(target error) bool {
	return target == ErrFileSystem
}

// AudioAsset describes one stored file.
type AudioAsset struct {
	// Name is the filename without partition prefix and extension, for display.
	Name string
	// Filename is the on-disk name, including the partition prefix.
	Filename string
	// RelativePath is "<category-dir>/<filename>" relative to the storage root.
	RelativePath string
	Category     Category
	SizeBytes    int64
	CreatedAt    time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithDefaults sets the files copied into the permanent and hailing partitions
// when their directories are set up. fsys is laid out like the storage root,
// one directory per partition. A nil fsys disables seeding.
func WithDefaults(fsys fs.FS) Option {
	return func(s *Store) {
		s.defaults = fsys
	}
}

type categoryState struct {
	once sync.Once
	err  error
}

// Store manages the three partitions under root.
type Store struct {
	root       string
	log        *logger.Logger
	mu         sync.Mutex
	categories map[Category]*categoryState
	defaults   fs.FS
}

// New creates a Store rooted at root. Partition directories are created lazily,
// and the bundled default files are seeded into them unless WithDefaults says otherwise.
func New(root string, log *logger.Logger, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrRootEmpty
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve absolute path for %q: %w", root, err)
	}

	categories := make(map[Category]*categoryState, len(Categories()))
	for _, category := range Categories() {
		categories[category] = &categoryState{}
	}

	store := &Store{
		root:       filepath.Clean(absRoot),
		log:        log,
		categories: categories,
		defaults:   DefaultFiles(),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string {
	return s.root
}

// Path returns the absolute path a filename has (or would have) in a partition.
func (s *Store) Path(category Category, filename string) (string, error) {
	name, err := category.normalize(filename)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.root, category.Dir(), name), nil
}

// GoogleCredentialsPath is where the Google service-account file is expected.
func (s *Store) GoogleCredentialsPath() string {
	return filepath.Join(s.root, credentialsDirName, credentialsFile)
}

// Unavailable returns the error that disabled a partition, or nil.
func (s *Store) Unavailable(category Category) error {
	state, ok := s.categories[category]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return state.err
}

// Store writes data as a new file in the partition and returns its descriptor.
func (s *Store) Store(category Category, filename string, data []byte) (AudioAsset, error) {
	name, err := category.normalize(filename)
	if err != nil {
		return AudioAsset{}, err
	}

	if len(data) == 0 {
		return AudioAsset{}, ErrEmptyAudio
	}

	kind, matchErr := filetype.Match(data)
	if matchErr == nil && kind != filetype.Unknown && kind.MIME.Type != "audio" {
		return AudioAsset{}, fmt.Errorf("%w: detected %s", ErrNotAudio, kind.MIME.Value)
	}

	dir, err := s.ensureDir(category)
	if err != nil {
		return AudioAsset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	finalPath := filepath.Join(dir, name)

	_, statErr := os.Lstat(finalPath)
	if statErr == nil {
		return AudioAsset{}, fmt.Errorf("%w: %s", ErrAlreadyExists, filepath.Join(category.Dir(), name))
	}

	writeErr := s.writeAtomically(dir, finalPath, data)
	if writeErr != nil {
		s.log.Error(logFmtWriteFailed, finalPath, writeErr)

		return AudioAsset{}, writeErr
	}

	info, statErr := os.Stat(finalPath)
	if statErr != nil {
		fsErr := &FileSystemError{Op: "stat", Path: finalPath, Err: statErr}
		s.log.Error(logFmtWriteFailed, finalPath, fsErr)

		return AudioAsset{}, fsErr
	}

	s.log.Info(logFmtStored, finalPath, humanize.Bytes(uint64(info.Size())))

	return newAudioAsset(category, info), nil
}

// Replace deletes any existing file with the same name and stores data in its place.
func (s *Store) Replace(category Category, filename string, data []byte) (AudioAsset, error) {
	err := s.Delete(category, filename)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return AudioAsset{}, err
	}

	return s.Store(category, filename, data)
}

// Lookup returns the descriptor of an existing file.
func (s *Store) Lookup(category Category, filename string) (AudioAsset, error) {
	path, err := s.Path(category, filename)
	if err != nil {
		return AudioAsset{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return AudioAsset{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return AudioAsset{}, &FileSystemError{Op: "stat", Path: path, Err: err}
	}

	if !info.Mode().IsRegular() {
		return AudioAsset{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}

	return newAudioAsset(category, info), nil
}

// Exists reports whether a regular file with that name is stored in the partition.
func (s *Store) Exists(category Category, filename string) bool {
	_, err := s.Lookup(category, filename)

	return err == nil
}

// List returns the partition's files ordered by filename. Failures are logged
// and produce an empty listing.
func (s *Store) List(category Category) []AudioAsset {
	dir, err := s.ensureDir(category)
	if err != nil {
		return []AudioAsset{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Error(logFmtListFailed, category, dir, err)

		return []AudioAsset{}
	}

	listed := make([]AudioAsset, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !category.owns(entry.Name()) {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			// Removed between ReadDir and Info.
			continue
		}

		listed = append(listed, newAudioAsset(category, info))
	}

	slices.SortFunc(listed, func(a, b AudioAsset) int {
		return strings.Compare(a.Filename, b.Filename)
	})

	return listed
}

// Delete removes one file from the partition.
func (s *Store) Delete(category Category, filename string) error {
	path, err := s.Path(category, filename)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removeErr := os.Remove(path)
	if removeErr != nil {
		if errors.Is(removeErr, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		fsErr := &FileSystemError{Op: "delete", Path: path, Err: removeErr}
		s.log.Error(logFmtDeleteFailed, path, removeErr)

		return fsErr
	}

	s.log.Info(logFmtDeleted, path)

	return nil
}

// PurgeCategory deletes every file of the partition and returns how many were removed.
// Only the cache partition is purged by the restart policy; permanent and hailing
// files are removed only when a caller names their category explicitly.
//
// The cache is emptied of every regular file, including leftover temp files
// and foreign formats. Permanent and hailing purges remove listed files only.
func (s *Store) PurgeCategory(category Category) int {
	if category == Cache {
		return s.sweepCache()
	}

	deleted := 0

	for _, asset := range s.List(category) {
		err := s.Delete(category, asset.Filename)
		if err != nil {
			continue
		}

		deleted++
	}

	if category.known() {
		s.log.Info(logFmtPurged, deleted, category, filepath.Join(s.root, category.Dir()))
	}

	return deleted
}

func (s *Store) sweepCache() int {
	dir, err := s.ensureDir(Cache)
	if err != nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Error(logFmtListFailed, Cache, dir, err)

		return 0
	}

	deleted := 0

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		removeErr := os.Remove(path)
		if removeErr != nil {
			if !errors.Is(removeErr, fs.ErrNotExist) {
				s.log.Error(logFmtDeleteFailed, path, removeErr)
			}

			continue
		}

		deleted++
	}

	s.log.Info(logFmtPurged, deleted, Cache, dir)

	return deleted
}

// ApplyRestartPolicy runs the startup purge of the cache partition when policy asks for it.
func (s *Store) ApplyRestartPolicy(policy PurgePolicy) int {
	if policy != PurgeAtRestart {
		return 0
	}

	return s.PurgeCategory(Cache)
}

// ensureDir creates the partition directory once. A failure disables the
// partition for the lifetime of the Store.
func (s *Store) ensureDir(category Category) (string, error) {
	state, ok := s.categories[category]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	dir := filepath.Join(s.root, category.Dir())

	state.once.Do(func() {
		mkdirErr := os.MkdirAll(dir, dirPermissions)
		if mkdirErr != nil {
			s.mu.Lock()
			state.err = &FileSystemError{Op: "mkdir", Path: dir, Err: mkdirErr}
			s.mu.Unlock()

			s.log.Error(logFmtDirUnavailable, category, dir, mkdirErr)

			return
		}

		s.log.Info(logFmtDirReady, category, dir)
		s.seedDefaults(category, dir)
	})

	s.mu.Lock()
	stateErr := state.err
	s.mu.Unlock()

	if stateErr != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrCategoryUnavailable, category, stateErr)
	}

	return dir, nil
}

// seedDefaults copies the bundled files of a partition into dir. Existing
// files are never overwritten and failures only get logged.
func (s *Store) seedDefaults(category Category, dir string) {
	if s.defaults == nil || category == Cache {
		return
	}

	entries, err := fs.ReadDir(s.defaults, category.Dir())
	if err != nil {
		// No defaults bundled for this partition.
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !category.owns(entry.Name()) {
			continue
		}

		finalPath := filepath.Join(dir, entry.Name())

		_, statErr := os.Lstat(finalPath)
		if statErr == nil || !errors.Is(statErr, fs.ErrNotExist) {
			continue
		}

		data, readErr := fs.ReadFile(s.defaults, category.Dir()+"/"+entry.Name())
		if readErr != nil {
			s.log.Warn(logFmtSeedFailed, category, entry.Name(), readErr)

			continue
		}

		writeErr := s.writeAtomically(dir, finalPath, data)
		if writeErr != nil {
			s.log.Warn(logFmtSeedFailed, category, entry.Name(), writeErr)

			continue
		}

		s.log.Info(logFmtSeeded, category, finalPath)
	}
}

// writeAtomically writes data to a hidden temp file in dir and renames it into place,
// so readers never observe a partially written file.
func (s *Store) writeAtomically(dir, finalPath string, data []byte) error {
	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return &FileSystemError{Op: "create", Path: dir, Err: err}
	}

	tempPath := tempFile.Name()
	committed := false

	defer func() {
		if committed {
			return
		}

		removeErr := os.Remove(tempPath)
		if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			s.log.Warn(logFmtTempCleanup, tempPath, removeErr)
		}
	}()

	_, writeErr := tempFile.Write(data)
	syncErr := tempFile.Sync()
	closeErr := tempFile.Close()

	firstErr := errors.Join(writeErr, syncErr, closeErr)
	if firstErr != nil {
		return &FileSystemError{Op: "write", Path: tempPath, Err: firstErr}
	}

	chmodErr := os.Chmod(tempPath, filePermissions)
	if chmodErr != nil {
		return &FileSystemError{Op: "chmod", Path: tempPath, Err: chmodErr}
	}

	renameErr := os.Rename(tempPath, finalPath)
	if renameErr != nil {
		return &FileSystemError{Op: "rename", Path: finalPath, Err: renameErr}
	}

	committed = true

	return nil
}

func newAudioAsset(category Category, info fs.FileInfo) AudioAsset {
	return AudioAsset{
		Name:         category.displayName(info.Name()),
		Filename:     info.Name(),
		RelativePath: filepath.Join(category.Dir(), info.Name()),
		Category:     category,
		SizeBytes:    info.Size(),
		CreatedAt:    info.ModTime(),
	}
}
