// Package pipeline sequences product lookup, script writing and asset generation
// through the search → script → preview stages, holding every artifact produced
// along the way. Stage is the single source of truth for which operations are legal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shorts-studio/audio"
	"shorts-studio/authsignal"
	"shorts-studio/blob"
	"shorts-studio/generate"
	"shorts-studio/types"
	"shorts-studio/upload"
)

// Generator is the generative backend as seen by the pipeline
type Generator interface {
	LookupProduct(ctx context.Context, query string) (string, error)
	GenerateScript(ctx context.Context, productInfo string, lang types.Language) (types.Script, error)
	GenerateSpeech(ctx context.Context, fullText string, lang types.Language) ([]byte, error)
	GenerateVisual(ctx context.Context, query string) (generate.Image, error)
}

// Persister is the durable store. Every call is best effort.
type Persister interface {
	LoadSnapshot(ctx context.Context) (types.Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap types.Snapshot) error
	ClearSnapshot(ctx context.Context) error
	LoadConnected(ctx context.Context) (bool, error)
	SaveConnected(ctx context.Context, connected bool) error
}

// Publisher performs the (simulated) upload
type Publisher interface {
	Publish(ctx context.Context, runID string, meta *types.VideoMetadata) (*upload.Result, error)
}

const persistTimeout = 5 * time.Second

// Pipeline is the state machine
type Pipeline struct {
	gen        Generator
	persist    Persister
	publisher  Publisher
	registry   *blob.Registry
	logger     *log.Logger
	visibility string

	// running serializes transitions
	running sync.Mutex

	mu        sync.Mutex
	state     State
	persisted types.Snapshot
	// epoch advances on Reset; commits from an older epoch are dropped
	epoch     uint64
	cancelRun context.CancelFunc
	saveSeq   uint64
	observers map[int]func(State)
	nextObs   int
	unsubs    []func()

	// saveMu orders snapshot writes; savedSeq is the newest one written
	saveMu   sync.Mutex
	savedSeq uint64
}

// run is one in-flight transition
type run struct {
	ctx   context.Context
	epoch uint64
}

// Option customizes the pipeline.
type Option func(*Pipeline)

// WithPersister enables snapshot persistence.
func WithPersister(p Persister) Option {
	return func(pl *Pipeline) { pl.persist = p }
}

// WithPublisher sets the upload backend.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithRegistry shares a blob registry with the caller.
func WithRegistry(r *blob.Registry) Option {
	return func(pl *Pipeline) {
		if r != nil {
			pl.registry = r
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *log.Logger) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.logger = l
		}
	}
}

// WithVisibility sets the privacy status handed to the publisher.
func WithVisibility(v string) Option {
	return func(pl *Pipeline) { pl.visibility = v }
}

// New creates a pipeline at the initial search stage
func New(gen Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:        gen,
		registry:   blob.NewRegistry(),
		logger:     log.Default().WithPrefix("pipeline"),
		visibility: "private",
		state:      initialState(),
		persisted:  initialState().Snapshot(),
		observers:  make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns a copy of the current state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Registry is the blob registry backing the artifacts
func (p *Pipeline) Registry() *blob.Registry {
	return p.registry
}

// Subscribe registers fn for every committed state. The returned func removes it.
func (p *Pipeline) Subscribe(fn func(State)) (cancel func()) {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// update applies fn unconditionally
func (p *Pipeline) update(fn func(s *State)) State {
	st, _ := p.apply(nil, fn)
	return st
}

// commit applies fn only if no Reset happened since r began
func (p *Pipeline) commit(r *run, fn func(s *State)) bool {
	_, ok := p.apply(r, fn)
	return ok
}

// apply mutates the state under the lock, then writes the snapshot if it
// changed and notifies observers with the committed state, both unlocked.
func (p *Pipeline) apply(r *run, fn func(s *State)) (State, bool) {
	p.mu.Lock()
	if r != nil && r.epoch != p.epoch {
		p.mu.Unlock()
		return State{}, false
	}
	fn(&p.state)
	if err := p.state.Validate(); err != nil {
		p.logger.Error("state invariant violated", "error", err)
	}
	var seq uint64
	snap := p.state.Snapshot()
	if !sameSnapshot(snap, p.persisted) {
		p.persisted = snap
		p.saveSeq++
		seq = p.saveSeq
	}
	committed := p.state.clone()
	observers := make([]func(State), 0, len(p.observers))
	for _, obs := range p.observers {
		observers = append(observers, obs)
	}
	p.mu.Unlock()

	if seq != 0 {
		p.saveSnapshot(seq, snap)
	}
	for _, obs := range observers {
		obs(committed.clone())
	}
	return committed, true
}

func (p *Pipeline) saveSnapshot(seq uint64, snap types.Snapshot) {
	if p.persist == nil {
		return
	}
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	if seq <= p.savedSeq {
		// a newer snapshot is already on disk
		return
	}
	p.savedSeq = seq
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.persist.SaveSnapshot(ctx, snap); err != nil {
		p.logger.Warn("could not save snapshot", "error", err)
	}
}

// Restore reads the durable snapshot and connection flag once at start.
// Anything unreadable degrades to a fresh pipeline.
func (p *Pipeline) Restore(ctx context.Context) State {
	if p.persist == nil {
		return p.State()
	}

	connected, err := p.persist.LoadConnected(ctx)
	if err != nil {
		p.logger.Warn("could not read connection flag", "error", err)
	}
	snap, ok, err := p.persist.LoadSnapshot(ctx)
	if err != nil {
		p.logger.Warn("discarding unreadable snapshot, starting fresh", "error", err)
	}

	return p.update(func(s *State) {
		s.Connected = connected
		if !ok {
			return
		}
		restored := normalizeRestored(snap)
		if restored.Stage != snap.Stage {
			p.logger.Info("artifacts are not restored, returning to earlier stage", "saved", snap.Stage, "stage", restored.Stage)
		}
		s.Query = restored.Query
		s.Language = restored.Language
		s.Stage = restored.Stage
		s.ProductInfo = restored.ProductInfo
		s.Script = restored.Script
		// avoid rewriting what was just read
		p.persisted = snap
	})
}

func (p *Pipeline) begin(ctx context.Context) (*run, error) {
	if !p.running.TryLock() {
		return nil, ErrBusy
	}
	rctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	r := &run{ctx: rctx, epoch: p.epoch}
	p.cancelRun = cancel
	p.mu.Unlock()
	return r, nil
}

func (p *Pipeline) end() {
	p.mu.Lock()
	if p.cancelRun != nil {
		p.cancelRun()
		p.cancelRun = nil
	}
	p.mu.Unlock()
	p.running.Unlock()
}

func (p *Pipeline) fail(f *Failure) error {
	p.update(func(s *State) { s.LastError = f })
	return f
}

// failRun records f unless the run was reset underneath it
func (p *Pipeline) failRun(r *run, f *Failure) error {
	if !p.commit(r, func(s *State) { s.LastError = f }) {
		return ErrReset
	}
	return f
}

// Submit runs search → script: product lookup, then script generation.
// On any failure the stage stays search and LastError is set.
func (p *Pipeline) Submit(ctx context.Context, query string, lang types.Language) error {
	r, err := p.begin(ctx)
	if err != nil {
		return err
	}
	defer p.end()

	query = strings.TrimSpace(query)
	if query == "" {
		return p.failRun(r, invalid("Enter a product name to search for", nil))
	}
	if st := p.State(); st.Stage != types.StageSearch {
		return p.failRun(r, invalid(fmt.Sprintf("A run for %q is already in progress, reset first", st.Query), ErrIllegalTransition))
	}

	runID := uuid.NewString()[:8]
	logger := p.logger.With("run", runID)
	started := p.commit(r, func(s *State) {
		s.RunID = runID
		s.Query = query
		s.Language = lang
		s.ProductInfo = ""
		s.LastError = nil
	})
	if !started {
		return ErrReset
	}

	logger.Info("looking up product", "query", query)
	info, err := p.gen.LookupProduct(r.ctx, query)
	if err != nil {
		logger.Error("lookup failed", "error", err)
		return p.failRun(r, classify(err))
	}
	if !p.commit(r, func(s *State) { s.ProductInfo = info }) {
		return ErrReset
	}

	logger.Info("writing script", "language", lang)
	script, err := p.gen.GenerateScript(r.ctx, info, lang)
	if err != nil {
		logger.Error("script generation failed", "error", err)
		return p.failRun(r, classify(err))
	}

	committed := p.commit(r, func(s *State) {
		s.Script = &script
		s.Stage = types.StageScript
	})
	if !committed {
		logger.Info("run was reset, discarding script")
		return ErrReset
	}
	logger.Info("✅ script ready for review")
	return nil
}

// GenerateAssets runs script → preview. Speech and image are requested together;
// the first failure cancels the other and nothing is bound.
func (p *Pipeline) GenerateAssets(ctx context.Context) error {
	r, err := p.begin(ctx)
	if err != nil {
		return err
	}
	defer p.end()

	st := p.State()
	if st.Stage != types.StageScript || st.Script == nil {
		return p.failRun(r, invalid("Generate a script before creating assets", ErrIllegalTransition))
	}
	logger := p.logger.With("run", st.RunID)
	if !p.commit(r, func(s *State) { s.LastError = nil }) {
		return ErrReset
	}

	var (
		pcm []byte
		img generate.Image
	)
	g, gctx := errgroup.WithContext(r.ctx)
	g.Go(func() error {
		var err error
		pcm, err = p.gen.GenerateSpeech(gctx, st.Script.FullText(), st.Language)
		return err
	})
	g.Go(func() error {
		var err error
		img, err = p.gen.GenerateVisual(gctx, st.Query)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("asset generation failed", "error", err)
		return p.failRun(r, classify(err))
	}

	speech := audio.NewArtifact(p.registry, pcm, audio.SpeechFormat)
	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}
	image := p.registry.Create(img.Data, mime)

	committed := p.commit(r, func(s *State) {
		s.Audio.Release()
		s.Image.Revoke()
		s.Audio = speech
		s.Image = image
		s.Stage = types.StagePreview
	})
	if !committed {
		logger.Info("run was reset, discarding assets")
		speech.Release()
		image.Revoke()
		return ErrReset
	}
	logger.Info("✅ assets ready", "audio", speech.Handle(), "audio_bytes", speech.Size(), "image_bytes", image.Size(), "duration", speech.Duration())
	return nil
}

// Reset returns every field to its initial value from any stage, releases both
// artifacts and clears the durable snapshot. The connection flag survives.
// A transition still in flight is cancelled and its results are discarded.
func (p *Pipeline) Reset(ctx context.Context) {
	p.mu.Lock()
	p.epoch++
	if p.cancelRun != nil {
		p.cancelRun()
	}
	p.mu.Unlock()

	p.update(func(s *State) {
		s.Audio.Release()
		s.Image.Revoke()
		connected := s.Connected
		*s = initialState()
		s.Connected = connected
	})
	if p.persist != nil {
		p.saveMu.Lock()
		err := p.persist.ClearSnapshot(ctx)
		p.saveMu.Unlock()
		if err != nil {
			p.logger.Warn("could not clear snapshot", "error", err)
		}
	}
}

// BeginUpload enters the upload sub-mode of preview
func (p *Pipeline) BeginUpload() error {
	st := p.State()
	if !st.Stage.HoldsArtifacts() || !st.HasArtifacts() {
		return p.fail(invalid("Generate assets before uploading", ErrIllegalTransition))
	}
	p.update(func(s *State) { s.Stage = types.StageUpload })
	return nil
}

// Upload hands the run to the publisher. The default publisher is a simulation.
func (p *Pipeline) Upload(ctx context.Context) (*upload.Result, error) {
	r, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer p.end()

	st := p.State()
	if !st.Stage.HoldsArtifacts() || !st.HasArtifacts() || st.Script == nil {
		return nil, p.failRun(r, invalid("Generate assets before uploading", ErrIllegalTransition))
	}
	if p.publisher == nil {
		return nil, p.failRun(r, invalid("No publisher configured", nil))
	}

	meta := upload.BuildMetadata(st.Query, *st.Script, st.Language, p.visibility)
	res, err := p.publisher.Publish(r.ctx, st.RunID, meta)
	if err != nil {
		return nil, p.failRun(r, classify(err))
	}
	p.commit(r, func(s *State) {
		if s.Stage == types.StageUpload {
			s.Stage = types.StagePreview
		}
	})
	return res, nil
}

// HandleAuthSuccess records a completed authorization. An upload in progress
// returns to preview; earlier stages are left alone.
func (p *Pipeline) HandleAuthSuccess(ctx context.Context) {
	var changed bool
	p.update(func(s *State) {
		changed = !s.Connected
		s.Connected = true
		if s.Stage == types.StageUpload {
			s.Stage = types.StagePreview
		}
	})
	if changed && p.persist != nil {
		if err := p.persist.SaveConnected(ctx, true); err != nil {
			p.logger.Warn("could not save connection flag", "error", err)
		}
	}
	p.logger.Info("✅ YouTube connected")
}

// ListenForAuth subscribes to the next authorization success on bus.
// The subscription is retired after one delivery or on Close.
func (p *Pipeline) ListenForAuth(ctx context.Context, bus *authsignal.Bus) (delivered <-chan struct{}) {
	done := make(chan struct{})
	unsubscribe := bus.Once(authsignal.TypeYouTubeAuthSuccess, func(authsignal.Message) {
		p.HandleAuthSuccess(ctx)
		close(done)
	})
	p.mu.Lock()
	p.unsubs = append(p.unsubs, unsubscribe)
	p.mu.Unlock()
	return done
}

// Close retires outstanding signal subscriptions. Artifacts are left to Reset.
func (p *Pipeline) Close() {
	p.mu.Lock()
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// IsFailure reports whether err carries a structured Failure
func IsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
