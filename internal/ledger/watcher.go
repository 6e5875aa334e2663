package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/piggyflow/internal/domain"
	"github.com/dvloznov/piggyflow/internal/events"
)

// View is the cached dashboard: this month's summary plus the latest
// transactions.
type View struct {
	Summary  domain.Summary       `json:"summary"`
	Recent   []domain.Transaction `json:"recent"`
	Version  uint64               `json:"version"`
	LoadedAt time.Time            `json:"loaded_at"`
}

// WatcherOptions tunes a Watcher.
type WatcherOptions struct {
	// RecentLimit caps View.Recent. Defaults to 20.
	RecentLimit int
	// Now defaults to time.Now; it picks the current month.
	Now func() time.Time
}

// Watcher keeps a View fresh. It reloads whenever the store is replaced
// and lazily after local mutations.
type Watcher struct {
	svc   *Service
	bus   *events.Bus
	log   zerolog.Logger
	limit int
	now   func() time.Time

	mu      sync.Mutex
	view    View
	loaded  bool
	lastSeq uint64
	// changes counts local mutations; synced is the count the view reflects.
	changes uint64
	synced  uint64
}

// NewWatcher creates a Watcher and hooks it to svc mutations.
func NewWatcher(svc *Service, bus *events.Bus, log zerolog.Logger, opts WatcherOptions) *Watcher {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	w := &Watcher{
		svc:   svc,
		bus:   bus,
		log:   log.With().Str("component", "watcher").Logger(),
		limit: opts.RecentLimit,
		now:   opts.Now,
	}
	svc.OnChange(w.MarkDirty)
	return w
}

// Run reloads the view on every store-replaced signal until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	signals, cancel := w.bus.Subscribe()
	defer cancel()

	if err := w.Reload(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Initial load failed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			w.handle(ctx, sig)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, sig events.Signal) {
	w.mu.Lock()
	seen := sig.Seq <= w.lastSeq
	if !seen {
		w.lastSeq = sig.Seq
	}
	w.mu.Unlock()
	if seen {
		return
	}

	w.log.Info().Uint64("seq", sig.Seq).Str("operation", sig.Operation).Msg("Store replaced, reloading")
	if err := w.Reload(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Reload after store replacement failed")
		w.MarkDirty()
	}
}

// MarkDirty makes the next View call reload.
func (w *Watcher) MarkDirty() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changes++
}

// Reload re-issues the queries behind the view.
func (w *Watcher) Reload(ctx context.Context) error {
	w.mu.Lock()
	changes := w.changes
	w.mu.Unlock()

	period, err := domain.MonthPeriod(w.now().Format("2006-01"))
	if err != nil {
		return fmt.Errorf("Reload: %w", err)
	}
	summary, err := w.svc.Summary(ctx, period)
	if err != nil {
		return fmt.Errorf("Reload: %w", err)
	}
	recent, err := w.svc.List(ctx, domain.TransactionFilter{Limit: w.limit})
	if err != nil {
		return fmt.Errorf("Reload: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.view = View{
		Summary:  summary,
		Recent:   recent,
		Version:  w.view.Version + 1,
		LoadedAt: w.now(),
	}
	w.loaded = true
	w.synced = changes
	return nil
}

// View returns the cached view, reloading first if it is stale.
func (w *Watcher) View(ctx context.Context) (View, error) {
	w.mu.Lock()
	stale := !w.loaded || w.changes != w.synced
	w.mu.Unlock()

	if stale {
		if err := w.Reload(ctx); err != nil {
			return View{}, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view, nil
}
