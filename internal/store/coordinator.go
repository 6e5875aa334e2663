package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/piggyflow/internal/archive"
	"github.com/dvloznov/piggyflow/internal/auth"
	"github.com/dvloznov/piggyflow/internal/events"
)

// Archive is the remote side of a backup. *archive.Client implements it.
type Archive interface {
	Stat(ctx context.Context) (archive.Entry, bool, error)
	Upload(ctx context.Context, localPath string) (archive.Entry, error)
	Download(ctx context.Context, destPath string) (archive.Entry, error)
	Delete(ctx context.Context) error
}

// Options tunes a Coordinator.
type Options struct {
	// StatusTTL is how long a Succeeded/Failed status stays visible before
	// reading back as Idle. Zero keeps it until the next operation.
	StatusTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator runs backup, restore and delete against the remote archive,
// closing and reopening the local database around file transfers.
// One operation runs at a time; a concurrent start fails with
// ErrAlreadyInProgress and leaves the current status alone.
type Coordinator struct {
	handle  *Handle
	remote  Archive
	session auth.Session
	bus     *events.Bus
	log     zerolog.Logger
	ttl     time.Duration
	now     func() time.Time

	busy atomic.Bool

	mu         sync.Mutex
	status     Status
	remoteInfo RemoteInfo
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(handle *Handle, remote Archive, session auth.Session, bus *events.Bus, log zerolog.Logger, opts Options) *Coordinator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		handle:  handle,
		remote:  remote,
		session: session,
		bus:     bus,
		log:     log.With().Str("component", "backup").Logger(),
		ttl:     opts.StatusTTL,
		now:     now,
		status:  Status{State: StateIdle, UpdatedAt: now()},
	}
}

// Handle returns the store handle so consumers can Acquire it.
func (c *Coordinator) Handle() *Handle {
	return c.handle
}

// Backup uploads the local database file to the remote archive.
func (c *Coordinator) Backup(ctx context.Context) (entry archive.Entry, err error) {
	if err := c.begin(OpBackup); err != nil {
		return archive.Entry{}, err
	}
	defer c.end()
	defer c.recoverPanic(ctx, OpBackup, &err)

	if err := c.requireSession(ctx); err != nil {
		return archive.Entry{}, c.fail(OpBackup, err)
	}
	path := c.handle.Path()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return archive.Entry{}, c.fail(OpBackup, fmt.Errorf("%w: %s", archive.ErrLocalFileMissing, path))
	}

	c.setInProgress(OpBackup)

	c.handle.release()
	entry, upErr := c.remote.Upload(ctx, path)
	c.resume(ctx, OpBackup)

	if upErr != nil {
		return archive.Entry{}, c.fail(OpBackup, upErr)
	}

	c.setRemote(entry, true, nil)
	if _, err := c.RefreshRemote(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Refreshing remote stat after backup")
	}
	c.bus.Publish(string(OpBackup))
	c.succeed(OpBackup, "Backup complete")
	return entry, nil
}

// Restore replaces the local database with the remote backup. A missing
// backup is reported before the local database is touched.
func (c *Coordinator) Restore(ctx context.Context) (entry archive.Entry, err error) {
	if err := c.begin(OpRestore); err != nil {
		return archive.Entry{}, err
	}
	defer c.end()
	defer c.recoverPanic(ctx, OpRestore, &err)

	if err := c.requireSession(ctx); err != nil {
		return archive.Entry{}, c.fail(OpRestore, err)
	}
	existing, ok, err := c.remote.Stat(ctx)
	if err != nil {
		c.setRemote(archive.Entry{}, false, err)
		return archive.Entry{}, c.fail(OpRestore, err)
	}
	if !ok {
		c.setRemote(archive.Entry{}, false, nil)
		return archive.Entry{}, c.fail(OpRestore, archive.NotFound("Restore", ""))
	}
	c.setRemote(existing, true, nil)

	c.setInProgress(OpRestore)

	c.handle.release()
	had, err := c.handle.keepCopy()
	if err != nil {
		_ = c.resume(ctx, OpRestore)
		return archive.Entry{}, c.fail(OpRestore, fmt.Errorf("%w: %v", ErrInternal, err))
	}
	defer c.handle.dropCopy()

	entry, dlErr := c.remote.Download(ctx, c.handle.Path())
	if dlErr != nil {
		_ = c.resume(ctx, OpRestore)
		return archive.Entry{}, c.fail(OpRestore, dlErr)
	}

	if err := c.openRestored(ctx); err != nil {
		c.log.Error().Err(err).Msg("Restored database is unusable, rolling back")
		if _, rbErr := c.handle.rollback(ctx, had); rbErr != nil {
			return archive.Entry{}, c.fail(OpRestore, fmt.Errorf("%w: open restored database: %v; rollback: %v", ErrInternal, err, rbErr))
		}
		return archive.Entry{}, c.fail(OpRestore, fmt.Errorf("%w: %v", archive.ErrInvalidBackup, err))
	}

	c.bus.Publish(string(OpRestore))
	c.succeed(OpRestore, "Restore complete")
	return entry, nil
}

// DeleteBackup removes the remote backup. The local database is not touched.
func (c *Coordinator) DeleteBackup(ctx context.Context) (err error) {
	if err := c.begin(OpDeleteBackup); err != nil {
		return err
	}
	defer c.end()
	defer c.recoverPanic(ctx, OpDeleteBackup, &err)

	if err := c.requireSession(ctx); err != nil {
		return c.fail(OpDeleteBackup, err)
	}

	c.setInProgress(OpDeleteBackup)

	delErr := c.remote.Delete(ctx)
	if _, err := c.RefreshRemote(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Refreshing remote stat after delete")
	}
	if delErr != nil {
		return c.fail(OpDeleteBackup, delErr)
	}
	c.succeed(OpDeleteBackup, "Backup deleted")
	return nil
}

// Status returns the current status. A terminal status older than the
// configured TTL reads as Idle.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.State.Terminal() && c.ttl > 0 && c.now().Sub(c.status.UpdatedAt) >= c.ttl {
		c.status = Status{State: StateIdle, UpdatedAt: c.now()}
	}
	return c.status
}

// Remote returns the last known remote stat without network I/O.
func (c *Coordinator) Remote() RemoteInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteInfo
}

// RefreshRemote stats the remote backup and caches the result. No backup
// is a normal result, not an error.
func (c *Coordinator) RefreshRemote(ctx context.Context) (RemoteInfo, error) {
	if err := c.requireSession(ctx); err != nil {
		c.setRemote(archive.Entry{}, false, err)
		return c.Remote(), err
	}
	entry, ok, err := c.remote.Stat(ctx)
	c.setRemote(entry, ok, err)
	if err != nil {
		return c.Remote(), fmt.Errorf("RefreshRemote: %w", err)
	}
	return c.Remote(), nil
}

// Close closes the store handle.
func (c *Coordinator) Close() error {
	return c.handle.Close()
}

func (c *Coordinator) begin(op Operation) error {
	if !c.busy.CompareAndSwap(false, true) {
		c.log.Info().Str("operation", string(op)).Msg("Rejected, another operation is running")
		return fmt.Errorf("%s: %w", op, ErrAlreadyInProgress)
	}
	return nil
}

func (c *Coordinator) end() {
	c.busy.Store(false)
}

func (c *Coordinator) requireSession(ctx context.Context) error {
	if c.session == nil {
		return auth.ErrNotSignedIn
	}
	if _, err := c.session.Account(ctx); err != nil {
		if errors.Is(err, auth.ErrNotSignedIn) {
			return err
		}
		return fmt.Errorf("%w: %v", auth.ErrNotSignedIn, err)
	}
	return nil
}

// resume reopens the database after a transfer. Errors are logged; the next
// Acquire retries the open.
func (c *Coordinator) resume(ctx context.Context, op Operation) error {
	if _, err := c.handle.reacquire(ctx); err != nil {
		c.log.Error().Err(err).Str("operation", string(op)).Msg("Reopening database failed")
		return err
	}
	return nil
}

// openRestored reopens the database after a download and checks that the
// new file is a sound database.
func (c *Coordinator) openRestored(ctx context.Context) error {
	db, err := c.handle.reacquire(ctx)
	if err != nil {
		return err
	}
	return quickCheck(ctx, db)
}

// recoverPanic turns a panic into a Failed status and makes sure the
// database is not left released.
func (c *Coordinator) recoverPanic(ctx context.Context, op Operation, err *error) {
	r := recover()
	if r == nil {
		return
	}
	c.log.Error().Str("operation", string(op)).Interface("panic", r).Msg("Operation panicked")
	if c.handle.isQuiesced() {
		_ = c.resume(ctx, op)
	}
	*err = c.fail(op, fmt.Errorf("%w: panic: %v", ErrInternal, r))
}

func (c *Coordinator) setInProgress(op Operation) {
	c.setStatus(Status{State: StateInProgress, Operation: op})
	c.log.Info().Str("operation", string(op)).Msg("Operation started")
}

func (c *Coordinator) succeed(op Operation, msg string) {
	c.setStatus(Status{State: StateSucceeded, Operation: op, Message: msg})
	c.log.Info().Str("operation", string(op)).Msg(msg)
}

func (c *Coordinator) fail(op Operation, err error) error {
	kind := Classify(err)
	c.setStatus(Status{State: StateFailed, Operation: op, Message: failureMessage(kind, err), Failure: kind})
	c.log.Error().Err(err).Str("operation", string(op)).Str("failure", string(kind)).Msg("Operation failed")
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.UpdatedAt = c.now()
	c.status = s
}

func (c *Coordinator) setRemote(entry archive.Entry, present bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := RemoteInfo{Present: present, CheckedAt: c.now()}
	if present {
		e := entry
		info.Entry = &e
	}
	if err != nil {
		info.Error = err.Error()
		if c.remoteInfo.Present {
			info.Present = true
			info.Entry = c.remoteInfo.Entry
		}
	}
	c.remoteInfo = info
}
