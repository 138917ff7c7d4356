package atlas

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/shared"

	"github.com/paulmach/orb"
)

type Config struct {
	DiffInterval   time.Duration
	BeaconInterval time.Duration
	StalePolicy    string
	StalePolicies  StalePolicies
	Version        string
}

func DefaultConfig() *Config {
	return &Config{
		DiffInterval:   500 * time.Millisecond,
		BeaconInterval: 5 * time.Second,
		StalePolicy:    "Immediate",
		StalePolicies:  DefaultStalePolicies(),
	}
}

// Options wires the engine to its collaborators. Any of them may be nil.
type Options struct {
	Archive  ArchiveAPI
	Missions MissionAPI
	Profiles ProfileAPI
	Sender   Sender
	Sink     RenderSink
	Notifier Notifier
	Cache    Cache
	Icons    IconSet
	Now      func() time.Time
}

// Atlas owns the feature store on a single goroutine. Public methods submit
// work to that goroutine and wait for it; network calls run on the caller's
// goroutine and their results are applied back through the same queue.
type Atlas struct {
	cfg     *Config
	db      *Database
	profile *Profile

	archive  ArchiveAPI
	missions MissionAPI
	profiles ProfileAPI
	sender   Sender
	sink     RenderSink
	notifier Notifier
	cache    Cache
	now      func() time.Time

	beaconTicker *time.Ticker

	ops       chan func()
	quit      chan struct{}
	wg        sync.WaitGroup
	started   atomic.Bool
	destroyed atomic.Bool
	once      sync.Once
}

func New(cfg *Config, opts Options) *Atlas {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.StalePolicies == nil {
		cfg.StalePolicies = DefaultStalePolicies()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sender == nil {
		opts.Sender = nopSender{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}

	profile := &Profile{Version: cfg.Version}
	return &Atlas{
		cfg:     cfg,
		profile: profile,
		db: NewDatabase(DatabaseOptions{
			Profile:  profile,
			Icons:    opts.Icons,
			Sender:   opts.Sender,
			Notifier: opts.Notifier,
			Now:      opts.Now,
		}),
		archive:  opts.Archive,
		missions: opts.Missions,
		profiles: opts.Profiles,
		sender:   opts.Sender,
		sink:     opts.Sink,
		notifier: opts.Notifier,
		cache:    opts.Cache,
		now:      opts.Now,
		ops:      make(chan func()),
		quit:     make(chan struct{}),
	}
}

// Start launches the engine goroutine and its diff and beacon tickers.
func (a *Atlas) Start() {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	a.wg.Add(1)
	go a.run()
	log.Println("[Atlas] Engine started")
}

func (a *Atlas) run() {
	defer a.wg.Done()

	diffTicker := time.NewTicker(a.cfg.DiffInterval)
	defer diffTicker.Stop()

	a.beaconTicker = time.NewTicker(a.cfg.BeaconInterval)
	defer a.beaconTicker.Stop()

	for {
		select {
		case <-a.quit:
			return
		case fn := <-a.ops:
			fn()
		case <-diffTicker.C:
			a.tick()
		case <-a.beaconTicker.C:
			a.beacon()
		}
	}
}

// do runs fn on the engine goroutine and waits for it to finish.
func (a *Atlas) do(ctx context.Context, fn func()) error {
	if a.destroyed.Load() {
		return ErrDestroyed
	}
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}
	select {
	case a.ops <- op:
	case <-a.quit:
		return ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Atlas) policy() StalePolicy {
	name := a.cfg.StalePolicy
	if a.profile.DisplayStale != "" {
		name = a.profile.DisplayStale
	}
	policy, err := a.cfg.StalePolicies.Lookup(name)
	if err != nil {
		log.Printf("[Atlas] warning: %v, falling back to %s", err, a.cfg.StalePolicy)
		policy, _ = a.cfg.StalePolicies.Lookup(a.cfg.StalePolicy)
	}
	return policy
}

// tick computes one diff and publishes it with any dirty mission views.
func (a *Atlas) tick() {
	diff := a.db.Diff(a.now(), a.policy())
	if a.sink == nil {
		return
	}
	if !diff.Empty() {
		if err := a.sink.PublishDiff(diff); err != nil {
			log.Printf("[Atlas] Failed to publish diff: %v", err)
		}
	}
	for _, guid := range sortedKeys(a.db.subscriptions) {
		sub := a.db.subscriptions[guid]
		if !sub.dirty {
			continue
		}
		sub.dirty = false
		if err := a.sink.PublishMission(guid, sub.RenderedCollection()); err != nil {
			log.Printf("[Atlas] Failed to publish mission %s: %v", guid, err)
		}
	}
}

// beacon adds the self-location CoT and sends it outward.
func (a *Atlas) beacon() {
	feat, err := a.profile.SelfFeature(a.now())
	if err != nil {
		return
	}
	if _, err := a.db.Add(feat, AddOptions{SkipSave: true}); err != nil {
		log.Printf("[Atlas] Failed to add self location: %v", err)
		return
	}
	a.sender.SendCOT(feat, shared.MessageCOT)
}

// Destroy stops the engine. Results of in-flight network calls are discarded.
func (a *Atlas) Destroy() {
	a.once.Do(func() {
		a.destroyed.Store(true)
		close(a.quit)
		a.wg.Wait()
		if closer, ok := a.sender.(interface{ Close() }); ok {
			closer.Close()
		}
		log.Println("[Atlas] Engine destroyed")
	})
}

// Init loads the profile and the archived features. A remote archive failure
// falls back to the local cache and is still returned.
func (a *Atlas) Init(ctx context.Context, token string) error {
	var rec *ontology.ProfileRecord
	if a.profiles != nil {
		r, err := a.profiles.Profile(ctx)
		if err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		rec = r
	}
	username := ""
	if rec != nil {
		username = rec.Username
	}
	if username == "" && token != "" {
		u, err := UsernameFromToken(token)
		if err != nil {
			return err
		}
		username = u
	}
	if username == "" {
		return ErrProfileNotLoaded
	}

	if err := a.do(ctx, func() {
		a.profile.Username = username
		if rec != nil {
			a.profile.Apply(*rec)
		}
		if a.profile.LocFreq > 0 {
			a.beaconTicker.Reset(a.profile.LocFreq)
		}
	}); err != nil {
		return err
	}

	return a.loadArchive(ctx)
}

func (a *Atlas) loadArchive(ctx context.Context) error {
	if a.archive == nil {
		return nil
	}

	features, remoteErr := a.archive.ListFeatures(ctx)
	if remoteErr != nil {
		remoteErr = fmt.Errorf("failed to load archive: %w", remoteErr)
		if a.cache == nil {
			return remoteErr
		}
		log.Printf("[Atlas] %v, using local cache", remoteErr)
		cached, err := a.cache.ListFeatures(ctx)
		if err != nil {
			return fmt.Errorf("%w (cache: %v)", remoteErr, err)
		}
		features = cached
	} else if a.cache != nil {
		for _, f := range features {
			if err := a.cache.SaveFeature(ctx, f); err != nil {
				log.Printf("[Atlas] Failed to cache feature %s: %v", f.ID, err)
			}
		}
	}

	if err := a.do(ctx, func() {
		for _, f := range features {
			f.Properties.Archived = true
			if _, err := a.db.Add(f, AddOptions{SkipSave: true}); err != nil {
				log.Printf("[Atlas] Failed to load archived feature %s: %v", f.ID, err)
			}
		}
	}); err != nil {
		return err
	}
	log.Printf("[Atlas] Loaded %d archived features", len(features))
	return remoteErr
}

type addOutcome struct {
	feature ontology.Feature
	persist bool
	profile *ontology.ProfileUpdate
}

// Add creates or updates a feature and persists it when it is archived.
func (a *Atlas) Add(ctx context.Context, feat ontology.Feature, opts AddOptions) (*ontology.Feature, error) {
	var out addOutcome
	var addErr error
	if err := a.do(ctx, func() {
		res, err := a.db.Add(feat, opts)
		if err != nil {
			addErr = err
			return
		}
		out = addOutcome{
			feature: res.COT.Feature(true),
			persist: res.Persist,
			profile: a.db.takeProfileUpdate(),
		}
	}); err != nil {
		return nil, err
	}
	if addErr != nil {
		return nil, addErr
	}

	if out.persist {
		if err := a.persist(ctx, out.feature); err != nil {
			return &out.feature, err
		}
	}
	if out.profile != nil && a.profiles != nil {
		if err := a.profiles.UpdateProfile(ctx, *out.profile); err != nil {
			return &out.feature, fmt.Errorf("failed to update profile: %w", err)
		}
		a.notifier.Notify(shared.EventTypeProfile, map[string]any{"callsign": a.callsign(out.profile)})
	}
	return &out.feature, nil
}

func (a *Atlas) callsign(update *ontology.ProfileUpdate) string {
	if update.TakCallsign != nil {
		return *update.TakCallsign
	}
	return ""
}

func (a *Atlas) persist(ctx context.Context, feat ontology.Feature) error {
	if a.archive != nil {
		if err := a.archive.PutFeature(ctx, feat); err != nil {
			return fmt.Errorf("failed to save feature %s: %w", feat.ID, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.SaveFeature(ctx, feat); err != nil {
			log.Printf("[Atlas] Failed to cache feature %s: %v", feat.ID, err)
		}
	}
	return nil
}

type RemoveOptions struct {
	SkipNetwork bool
}

// Remove deletes a feature. When the remote delete fails the local removal
// is rolled back and the error returned.
func (a *Atlas) Remove(ctx context.Context, id string, opts RemoveOptions) error {
	var r *removal
	var token string
	if err := a.do(ctx, func() {
		r = a.db.remove(id)
		if r != nil && r.mission != "" {
			if sub, ok := a.db.subscriptions[r.mission]; ok {
				token = sub.Token
			}
		}
	}); err != nil {
		return err
	}
	if r == nil {
		log.Printf("[Atlas] warning: cannot remove unknown feature %s", id)
		return nil
	}
	return a.finishRemoval(ctx, r, token, opts.SkipNetwork)
}

func (a *Atlas) finishRemoval(ctx context.Context, r *removal, token string, skipNetwork bool) error {
	id := r.cot.ID
	if !skipNetwork {
		var err error
		switch {
		case r.mission != "" && a.missions != nil:
			err = a.missions.DeleteMissionFeature(ctx, r.mission, id, token)
		case r.mission == "" && r.archived && a.archive != nil:
			err = a.archive.DeleteFeature(ctx, id)
		}
		if err != nil {
			if rerr := a.do(ctx, func() { a.db.restore(r) }); rerr != nil {
				log.Printf("[Atlas] Failed to restore feature %s: %v", id, rerr)
			}
			return fmt.Errorf("failed to delete feature %s: %w", id, err)
		}
	}

	if r.mission != "" {
		a.notifier.Notify(shared.EventTypeMissionChange, map[string]any{"guid": r.mission, "uid": id})
		return nil
	}
	if r.archived {
		if a.cache != nil {
			if err := a.cache.DeleteFeature(ctx, id); err != nil {
				log.Printf("[Atlas] Failed to uncache feature %s: %v", id, err)
			}
		}
		a.notifier.Notify(shared.EventTypeArchiveRemoved, map[string]any{"id": id})
	}
	return nil
}

func (a *Atlas) Hide(ctx context.Context, id string) error {
	return a.do(ctx, func() { a.db.Hide(id) })
}

func (a *Atlas) Unhide(ctx context.Context, id string) error {
	return a.do(ctx, func() { a.db.Unhide(id) })
}

// Get returns a copy of a feature, searching missions when asked.
func (a *Atlas) Get(ctx context.Context, id string, mission bool) (*ontology.Feature, error) {
	var feat *ontology.Feature
	if err := a.do(ctx, func() {
		c := a.db.Get(id)
		if c == nil && mission {
			c, _ = a.db.GetMission(id)
		}
		if c != nil {
			f := c.Feature(true)
			feat = &f
		}
	}); err != nil {
		return nil, err
	}
	if feat == nil {
		return nil, fmt.Errorf("failed to get feature %s: %w", id, ErrNotFound)
	}
	return feat, nil
}

func (a *Atlas) Filter(ctx context.Context, src string, opts FilterOptions) ([]ontology.Feature, error) {
	var out []ontology.Feature
	var filterErr error
	if err := a.do(ctx, func() {
		matched, err := a.db.Filter(src, opts)
		if err != nil {
			filterErr = err
			return
		}
		out = features(matched)
	}); err != nil {
		return nil, err
	}
	return out, filterErr
}

func (a *Atlas) Touching(ctx context.Context, poly orb.Polygon) ([]ontology.Feature, error) {
	var out []ontology.Feature
	err := a.do(ctx, func() { out = features(a.db.Touching(poly)) })
	return out, err
}

func features(cots []*COT) []ontology.Feature {
	out := make([]ontology.Feature, 0, len(cots))
	for _, c := range cots {
		out = append(out, c.Feature(true))
	}
	return out
}

// Collection is the full rendered view, used only for a renderer's first load.
func (a *Atlas) Collection(ctx context.Context) (ontology.RenderedCollection, error) {
	var out ontology.RenderedCollection
	err := a.do(ctx, func() { out = a.db.Collection() })
	return out, err
}

// Diff runs one diff outside the ticker and returns it.
func (a *Atlas) Diff(ctx context.Context) (ontology.Diff, error) {
	var out ontology.Diff
	err := a.do(ctx, func() { out = a.db.Diff(a.now(), a.policy()) })
	return out, err
}

// Clear removes connection entities, optionally keeping archived ones.
func (a *Atlas) Clear(ctx context.Context, opts ClearOptions) error {
	var removed []*removal
	if err := a.do(ctx, func() { removed = a.db.Clear(opts) }); err != nil {
		return err
	}
	return a.finishAll(ctx, removed, opts.SkipNetwork)
}

// RemovePath removes archived features under a path with one remote call.
func (a *Atlas) RemovePath(ctx context.Context, path string) error {
	var removed []*removal
	if err := a.do(ctx, func() { removed = a.db.RemovePath(path) }); err != nil {
		return err
	}
	if a.archive != nil {
		if err := a.archive.DeletePath(ctx, path); err != nil {
			_ = a.do(ctx, func() {
				for _, r := range removed {
					a.db.restore(r)
				}
			})
			return fmt.Errorf("failed to delete path %s: %w", path, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.DeletePath(ctx, path); err != nil {
			log.Printf("[Atlas] Failed to uncache path %s: %v", path, err)
		}
	}
	return nil
}

// FilterRemove removes every connection feature matching the expression.
func (a *Atlas) FilterRemove(ctx context.Context, src string) error {
	var removed []*removal
	var filterErr error
	if err := a.do(ctx, func() { removed, filterErr = a.db.FilterRemove(src) }); err != nil {
		return err
	}
	if filterErr != nil {
		return filterErr
	}
	return a.finishAll(ctx, removed, false)
}

func (a *Atlas) finishAll(ctx context.Context, removed []*removal, skipNetwork bool) error {
	var firstErr error
	for _, r := range removed {
		if err := a.finishRemoval(ctx, r, "", skipNetwork); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Profile returns a copy of the local profile.
func (a *Atlas) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	err := a.do(ctx, func() { p = *a.profile })
	return p, err
}
