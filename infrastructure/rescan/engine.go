package rescan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nordicnode/swarm/application"
)

// progressEveryN files triggers an intermediate progress event while
// walking the disk list.
const progressEveryN = 50

// Engine reconciles the on-disk tree under syncFolder against a
// FileStateRepository in one of two modes, emitting a change stream and
// triggering a downstream sync when anything changed.
type Engine struct {
	repo        application.FileStateRepository
	hasher      application.Hasher
	syncService application.SyncService
	ignore      application.IgnoreMatcher
	logger      application.Logger
	syncFolder  string
	defaultMode application.RescanMode

	events broadcaster

	runMu     sync.Mutex
	isRunning bool

	statsMu      sync.Mutex
	lastTime     time.Time
	lastDuration time.Duration
	lastChanges  int

	lifecycleMu     sync.Mutex
	intervalMinutes int
	timerCancel     context.CancelFunc
	timerDone       chan struct{}
}

func New(
	repo application.FileStateRepository,
	hasher application.Hasher,
	syncService application.SyncService,
	ignore application.IgnoreMatcher,
	logger application.Logger,
	syncFolder string,
	defaultMode application.RescanMode,
	intervalMinutes int,
) *Engine {
	return &Engine{
		repo:            repo,
		hasher:          hasher,
		syncService:     syncService,
		ignore:          ignore,
		logger:          logger,
		syncFolder:      syncFolder,
		defaultMode:     defaultMode,
		intervalMinutes: intervalMinutes,
	}
}

// Subscribe registers a set of event callbacks. Safe to call at any time,
// including while a rescan is in flight.
func (e *Engine) Subscribe(l Listeners) {
	e.events.subscribe(l)
}

func (e *Engine) LastRescanTime() time.Time {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.lastTime
}

func (e *Engine) LastRescanDurationSeconds() float64 {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.lastDuration.Seconds()
}

func (e *Engine) LastRescanChangesFound() int {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.lastChanges
}

// RescanAsync reconciles disk against the repository. If a rescan is
// already in flight, this call returns 0 immediately rather than
// overlapping with it. mode overrides the engine's default mode for this
// call only; pass nil to use the default.
func (e *Engine) RescanAsync(ctx context.Context, mode *application.RescanMode) (int, error) {
	e.runMu.Lock()
	if e.isRunning {
		e.runMu.Unlock()
		return 0, nil
	}
	e.isRunning = true
	e.runMu.Unlock()
	defer func() {
		e.runMu.Lock()
		e.isRunning = false
		e.runMu.Unlock()
	}()

	effectiveMode := e.defaultMode
	if mode != nil {
		effectiveMode = *mode
	}

	start := time.Now()
	changes, err := e.runOnce(ctx, effectiveMode)
	duration := time.Since(start)

	e.statsMu.Lock()
	e.lastTime = start
	e.lastDuration = duration
	e.lastChanges = changes
	e.statsMu.Unlock()

	if err != nil {
		return changes, err
	}

	if changes > 0 && e.syncService != nil {
		if syncErr := e.syncService.ForceSyncAsync(ctx); syncErr != nil {
			return changes, fmt.Errorf("rescan: force sync: %w", syncErr)
		}
	}
	return changes, nil
}

func (e *Engine) runOnce(ctx context.Context, mode application.RescanMode) (int, error) {
	knownSnapshot := e.repo.GetAll()
	byFold := make(map[string]application.SyncedFile, len(knownSnapshot))
	for _, sf := range knownSnapshot {
		byFold[asciiFold(sf.RelativePath)] = sf
	}
	matched := make(map[string]bool, len(knownSnapshot))

	disk, err := e.enumerateDisk()
	if err != nil {
		return 0, fmt.Errorf("rescan: enumerate disk: %w", err)
	}

	total := len(disk) + len(knownSnapshot)
	scanned := 0
	changes := 0

	e.events.progress(application.RescanProgress{Total: total, Scanned: 0, Changes: 0, IsRunning: true})

	for _, relPath := range disk {
		if ctx.Err() != nil {
			e.emitCancelled(total, scanned, changes)
			return changes, ctx.Err()
		}

		info, statErr := os.Stat(filepath.Join(e.syncFolder, relPath))
		if statErr != nil {
			if e.logger != nil {
				e.logger.Printf("rescan: stat %s: %v", relPath, statErr)
			}
			continue
		}

		fold := asciiFold(relPath)
		existing, known := byFold[fold]
		if known {
			matched[fold] = true
			changed, evt, updated, hashErr := e.reconcileKnown(ctx, mode, relPath, info, existing)
			if hashErr != nil {
				if e.logger != nil {
					e.logger.Printf("rescan: hash %s: %v", relPath, hashErr)
				}
			} else {
				e.repo.AddOrUpdate(updated)
				if changed {
					changes++
					e.events.change(evt)
				}
			}
		} else {
			var hash string
			if mode == application.DeepWithHash {
				var hashErr error
				hash, hashErr = e.hasher.HashFile(ctx, filepath.Join(e.syncFolder, relPath))
				if hashErr != nil && e.logger != nil {
					e.logger.Printf("rescan: hash %s: %v", relPath, hashErr)
				}
			}
			e.repo.AddOrUpdate(application.SyncedFile{
				RelativePath: relPath,
				FileSize:     uint64(info.Size()),
				LastModified: info.ModTime().UTC(),
				ContentHash:  hash,
			})
			changes++
			e.events.change(application.RescanChange{
				Kind:         application.NewFile,
				RelativePath: relPath,
				DetectedAt:   time.Now(),
				Actual:       &application.FileFingerprint{Size: uint64(info.Size())},
			})
		}

		scanned++
		if scanned%progressEveryN == 0 {
			e.events.progress(application.RescanProgress{Total: total, Scanned: scanned, Changes: changes, CurrentFile: relPath, IsRunning: true})
		}
	}

	if ctx.Err() != nil {
		e.emitCancelled(total, scanned, changes)
		return changes, ctx.Err()
	}

	for _, sf := range knownSnapshot {
		fold := asciiFold(sf.RelativePath)
		if matched[fold] {
			continue
		}
		e.repo.Remove(sf.RelativePath)
		changes++
		scanned++
		e.events.change(application.RescanChange{
			Kind:         application.DeletedFile,
			RelativePath: sf.RelativePath,
			DetectedAt:   time.Now(),
			Expected:     &application.FileFingerprint{Hash: sf.ContentHash, Size: sf.FileSize},
		})
	}

	e.events.progress(application.RescanProgress{Total: total, Scanned: scanned, Changes: changes, CurrentFile: "Complete", IsRunning: false})
	e.events.completed(changes)
	return changes, nil
}

// reconcileKnown compares one already-known path to its on-disk state,
// returning whether it changed, the event to emit if so, and the record
// the repository should be updated to (in both cases, to keep the
// repository's timestamps current for next time).
func (e *Engine) reconcileKnown(
	ctx context.Context,
	mode application.RescanMode,
	relPath string,
	info fs.FileInfo,
	existing application.SyncedFile,
) (bool, application.RescanChange, application.SyncedFile, error) {
	size := uint64(info.Size())
	mtime := info.ModTime().UTC()

	if mode == application.DeepWithHash {
		hash, err := e.hasher.HashFile(ctx, filepath.Join(e.syncFolder, relPath))
		if err != nil {
			return false, application.RescanChange{}, application.SyncedFile{}, err
		}
		updated := application.SyncedFile{RelativePath: relPath, FileSize: size, LastModified: mtime, ContentHash: hash}
		if strings.EqualFold(hash, existing.ContentHash) {
			return false, application.RescanChange{}, updated, nil
		}
		evt := application.RescanChange{
			Kind:         application.HashMismatch,
			RelativePath: relPath,
			DetectedAt:   time.Now(),
			Expected:     &application.FileFingerprint{Hash: existing.ContentHash, Size: existing.FileSize},
			Actual:       &application.FileFingerprint{Hash: hash, Size: size},
		}
		return true, evt, updated, nil
	}

	updated := application.SyncedFile{RelativePath: relPath, FileSize: size, LastModified: mtime, ContentHash: existing.ContentHash}
	if size == existing.FileSize && mtime.Equal(existing.LastModified) {
		return false, application.RescanChange{}, updated, nil
	}
	evt := application.RescanChange{
		Kind:         application.ModifiedFile,
		RelativePath: relPath,
		DetectedAt:   time.Now(),
		Expected:     &application.FileFingerprint{Hash: existing.ContentHash, Size: existing.FileSize},
		Actual:       &application.FileFingerprint{Size: size},
	}
	return true, evt, updated, nil
}

func (e *Engine) emitCancelled(total, scanned, changes int) {
	e.events.progress(application.RescanProgress{Total: total, Scanned: scanned, Changes: changes, CurrentFile: "Cancelled", IsRunning: false})
}

// enumerateDisk walks syncFolder recursively, returning slash-separated
// paths relative to it, skipping ignored files and directories.
func (e *Engine) enumerateDisk() ([]string, error) {
	var out []string
	err := filepath.WalkDir(e.syncFolder, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if path == e.syncFolder {
			return nil
		}
		rel, relErr := filepath.Rel(e.syncFolder, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if isIgnored(e.ignore, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnored(e.ignore, rel) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
