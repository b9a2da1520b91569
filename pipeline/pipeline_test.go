package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"shorts-studio/authsignal"
	"shorts-studio/generate"
	"shorts-studio/types"
	"shorts-studio/upload"
)

type fakeGenerator struct {
	lookup func(ctx context.Context, query string) (string, error)
	script func(ctx context.Context, info string, lang types.Language) (types.Script, error)
	speech func(ctx context.Context, text string, lang types.Language) ([]byte, error)
	visual func(ctx context.Context, query string) (generate.Image, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeGenerator) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeGenerator) LookupProduct(ctx context.Context, query string) (string, error) {
	f.record("lookup")
	if f.lookup != nil {
		return f.lookup(ctx, query)
	}
	return "Widget is great", nil
}

func (f *fakeGenerator) GenerateScript(ctx context.Context, info string, lang types.Language) (types.Script, error) {
	f.record("script")
	if f.script != nil {
		return f.script(ctx, info, lang)
	}
	return widgetScript, nil
}

var widgetScript = types.Script{Hook: "Amazing!", Body: "It works.", CTA: "Buy now!"}

func (f *fakeGenerator) GenerateSpeech(ctx context.Context, text string, lang types.Language) ([]byte, error) {
	f.record("speech")
	if f.speech != nil {
		return f.speech(ctx, text, lang)
	}
	return make([]byte, 48), nil
}

func (f *fakeGenerator) GenerateVisual(ctx context.Context, query string) (generate.Image, error) {
	f.record("visual")
	if f.visual != nil {
		return f.visual(ctx, query)
	}
	return generate.Image{Data: make([]byte, 10), MimeType: "image/png"}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memPersister struct {
	mu        sync.Mutex
	snap      *types.Snapshot
	connected bool
	loadErr   error
	saveErr   error
	saves     int
	clears    int
}

func (m *memPersister) LoadSnapshot(context.Context) (types.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return types.Snapshot{}, false, m.loadErr
	}
	if m.snap == nil {
		return types.Snapshot{}, false, nil
	}
	return *m.snap, true, nil
}

func (m *memPersister) SaveSnapshot(_ context.Context, snap types.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snap = &snap
	return nil
}

func (m *memPersister) ClearSnapshot(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snap = nil
	return nil
}

func (m *memPersister) LoadConnected(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected, nil
}

func (m *memPersister) SaveConnected(_ context.Context, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.connected = connected
	return nil
}

type fakePublisher struct {
	runID string
	meta  *types.VideoMetadata
}

func (f *fakePublisher) Publish(_ context.Context, runID string, meta *types.VideoMetadata) (*upload.Result, error) {
	f.runID = runID
	f.meta = meta
	return &upload.Result{Simulated: true, Notice: upload.Notice, Title: meta.Title, RunID: runID}, nil
}

func quietLogger() *log.Logger {
	l := log.New(io.Discard)
	l.SetLevel(log.FatalLevel)
	return l
}

func newTestPipeline(t *testing.T, gen Generator, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	p := New(gen, opts...)
	t.Cleanup(p.Close)
	return p
}

// watchInvariants fails the test if any committed state breaks the stage rules
func watchInvariants(t *testing.T, p *Pipeline) {
	t.Helper()
	cancel := p.Subscribe(func(s State) {
		if err := s.Validate(); err != nil {
			t.Errorf("observer saw invalid state: %v", err)
		}
	})
	t.Cleanup(cancel)
}

func TestEndToEnd(t *testing.T) {
	gen := &fakeGenerator{}
	store := &memPersister{}
	p := newTestPipeline(t, gen, WithPersister(store))
	watchInvariants(t, p)
	ctx := context.Background()

	if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st := p.State()
	if st.Stage != types.StageScript {
		t.Fatalf("stage = %s, want script", st.Stage)
	}
	if st.ProductInfo != "Widget is great" {
		t.Fatalf("product info = %q", st.ProductInfo)
	}
	if st.Script == nil || *st.Script != widgetScript {
		t.Fatalf("script = %+v", st.Script)
	}
	if store.snap == nil || store.snap.Stage != types.StageScript || store.snap.Query != "Test Widget" {
		t.Fatalf("persisted snapshot = %+v", store.snap)
	}

	if err := p.GenerateAssets(ctx); err != nil {
		t.Fatalf("GenerateAssets: %v", err)
	}
	st = p.State()
	if st.Stage != types.StagePreview {
		t.Fatalf("stage = %s, want preview", st.Stage)
	}
	if got := st.Audio.Size(); got != 92 {
		t.Fatalf("audio size = %d, want 92", got)
	}
	if got := st.Image.Size(); got != 10 {
		t.Fatalf("image size = %d, want 10", got)
	}
	if got := p.Registry().Live(); got != 2 {
		t.Fatalf("live blobs = %d, want 2", got)
	}

	audioArtifact, image := st.Audio, st.Image
	p.Reset(ctx)
	st = p.State()
	if st.Stage != types.StageSearch || st.Query != "" || st.Script != nil || st.HasArtifacts() {
		t.Fatalf("state after reset = %+v", st)
	}
	if !audioArtifact.Released() || !image.Released() {
		t.Fatal("artifacts not released on reset")
	}
	if got := p.Registry().Live(); got != 0 {
		t.Fatalf("live blobs after reset = %d", got)
	}
	if store.snap != nil {
		t.Fatalf("snapshot not cleared: %+v", store.snap)
	}
}

func TestSpeechReceivesFullText(t *testing.T) {
	var gotText string
	var gotLang types.Language
	gen := &fakeGenerator{
		speech: func(_ context.Context, text string, lang types.Language) ([]byte, error) {
			gotText, gotLang = text, lang
			return make([]byte, 4), nil
		},
	}
	p := newTestPipeline(t, gen)
	ctx := context.Background()
	if err := p.Submit(ctx, "Test Widget", types.LanguageSecondary); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.GenerateAssets(ctx); err != nil {
		t.Fatalf("GenerateAssets: %v", err)
	}
	if gotText != "Amazing! It works. Buy now!" || gotLang != types.LanguageSecondary {
		t.Fatalf("speech got %q %q", gotText, gotLang)
	}
}

func TestAssetFailureBindsNothing(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		kind FailureKind
	}{
		{
			name: "speech fails",
			gen: &fakeGenerator{speech: func(context.Context, string, types.Language) ([]byte, error) {
				return nil, generate.Wrap(generate.ErrBackend, "speech", "http 500", nil)
			}},
			kind: KindBackend,
		},
		{
			name: "visual empty",
			gen: &fakeGenerator{visual: func(context.Context, string) (generate.Image, error) {
				return generate.Image{}, generate.Wrap(generate.ErrEmptyResult, "visual", "no image", nil)
			}},
			kind: KindEmpty,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, tt.gen)
			watchInvariants(t, p)
			ctx := context.Background()
			if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			err := p.GenerateAssets(ctx)
			if err == nil {
				t.Fatal("expected failure")
			}
			st := p.State()
			if st.Stage != types.StageScript {
				t.Fatalf("stage = %s, want script", st.Stage)
			}
			if st.Audio != nil || st.Image != nil {
				t.Fatal("partial artifacts bound")
			}
			if p.Registry().Live() != 0 {
				t.Fatalf("live blobs = %d", p.Registry().Live())
			}
			if st.LastError == nil || st.LastError.Kind != tt.kind {
				t.Fatalf("last error = %+v", st.LastError)
			}
		})
	}
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name    string
		gen     *fakeGenerator
		kind    FailureKind
		message string
	}{
		{
			name: "missing credential",
			gen: &fakeGenerator{lookup: func(context.Context, string) (string, error) {
				return "", generate.Wrap(generate.ErrConfiguration, "", "GEMINI_API_KEY is not set", nil)
			}},
			kind: KindConfiguration,
		},
		{
			name: "lookup empty",
			gen: &fakeGenerator{lookup: func(context.Context, string) (string, error) {
				return "", generate.Wrap(generate.ErrEmptyResult, "lookup", "no text", nil)
			}},
			kind:    KindEmpty,
			message: "Nothing found. Try a different input.",
		},
		{
			name: "script malformed",
			gen: &fakeGenerator{script: func(context.Context, string, types.Language) (types.Script, error) {
				return types.Script{}, generate.Wrap(generate.ErrMalformedResponse, "script", "missing cta", nil)
			}},
			kind:    KindMalformed,
			message: "Generation failed. Please try again.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, tt.gen)
			watchInvariants(t, p)
			err := p.Submit(context.Background(), "Test Widget", types.LanguagePrimary)
			f, ok := IsFailure(err)
			if !ok {
				t.Fatalf("error %v is not a Failure", err)
			}
			if f.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", f.Kind, tt.kind)
			}
			if tt.message != "" && f.Message != tt.message {
				t.Fatalf("message = %q", f.Message)
			}
			st := p.State()
			if st.Stage != types.StageSearch || st.Script != nil {
				t.Fatalf("state = %+v", st)
			}
			if st.LastError == nil {
				t.Fatal("LastError not recorded")
			}
		})
	}
}

func TestSubmitEmptyQuery(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, gen)
	err := p.Submit(context.Background(), "   ", types.LanguagePrimary)
	f, ok := IsFailure(err)
	if !ok || f.Kind != KindInvalid {
		t.Fatalf("err = %v", err)
	}
	if gen.callCount() != 0 {
		t.Fatal("generator called for empty query")
	}
}

func TestIllegalTransitions(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	ctx := context.Background()

	if err := p.GenerateAssets(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("GenerateAssets at search: %v", err)
	}
	if err := p.BeginUpload(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("BeginUpload at search: %v", err)
	}
	if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Submit(ctx, "Other", types.LanguagePrimary); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("second Submit: %v", err)
	}
	if got := p.State().Query; got != "Test Widget" {
		t.Fatalf("query changed to %q", got)
	}
}

func TestBusyTransition(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGenerator{lookup: func(context.Context, string) (string, error) {
		close(entered)
		<-release
		return "info", nil
	}}
	p := newTestPipeline(t, gen)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.Submit(ctx, "Test Widget", types.LanguagePrimary) }()
	<-entered

	if err := p.Submit(ctx, "Other", types.LanguagePrimary); !errors.Is(err, ErrBusy) {
		t.Fatalf("concurrent Submit: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
}

func TestResetIdempotent(t *testing.T) {
	store := &memPersister{connected: true}
	p := newTestPipeline(t, &fakeGenerator{}, WithPersister(store))
	ctx := context.Background()
	p.Restore(ctx)

	p.Reset(ctx)
	first := p.State()
	p.Reset(ctx)
	second := p.State()
	if first.Stage != types.StageSearch || first != second {
		t.Fatalf("reset not idempotent: %+v vs %+v", first, second)
	}
	if !second.Connected {
		t.Fatal("reset cleared the connection flag")
	}
}

func TestResetFromEveryStage(t *testing.T) {
	ctx := context.Background()
	steps := []func(p *Pipeline) error{
		func(p *Pipeline) error { return p.Submit(ctx, "Test Widget", types.LanguagePrimary) },
		func(p *Pipeline) error { return p.GenerateAssets(ctx) },
		func(p *Pipeline) error { return p.BeginUpload() },
	}
	for n := 0; n <= len(steps); n++ {
		p := newTestPipeline(t, &fakeGenerator{})
		for _, step := range steps[:n] {
			if err := step(p); err != nil {
				t.Fatalf("step: %v", err)
			}
		}
		p.Reset(ctx)
		st := p.State()
		if st.Stage != types.StageSearch || st.Script != nil || st.HasArtifacts() || st.ProductInfo != "" {
			t.Fatalf("after %d steps: state = %+v", n, st)
		}
		if p.Registry().Live() != 0 {
			t.Fatalf("after %d steps: %d blobs live", n, p.Registry().Live())
		}
	}
}

func TestRegenerateReleasesPrevious(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	ctx := context.Background()
	if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.GenerateAssets(ctx); err != nil {
		t.Fatalf("GenerateAssets: %v", err)
	}
	if err := p.GenerateAssets(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("GenerateAssets at preview: %v", err)
	}
	if p.Registry().Live() != 2 {
		t.Fatalf("live blobs = %d", p.Registry().Live())
	}
}

func TestRestore(t *testing.T) {
	script := &types.Script{Hook: "Amazing!", Body: "It works.", CTA: "Buy now!"}
	tests := []struct {
		name      string
		saved     *types.Snapshot
		loadErr   error
		wantStage types.Stage
		wantQuery string
	}{
		{name: "nothing saved", wantStage: types.StageSearch},
		{
			name:      "script review",
			saved:     &types.Snapshot{Query: "Test Widget", Stage: types.StageScript, ProductInfo: "info", Script: script},
			wantStage: types.StageScript,
			wantQuery: "Test Widget",
		},
		{
			name:      "preview falls back to script",
			saved:     &types.Snapshot{Query: "Test Widget", Stage: types.StagePreview, Script: script},
			wantStage: types.StageScript,
			wantQuery: "Test Widget",
		},
		{
			name:      "upload without script",
			saved:     &types.Snapshot{Query: "Test Widget", Stage: types.StageUpload},
			wantStage: types.StageSearch,
			wantQuery: "Test Widget",
		},
		{
			name:      "unreadable snapshot",
			loadErr:   errors.New("malformed snapshot"),
			wantStage: types.StageSearch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memPersister{snap: tt.saved, loadErr: tt.loadErr}
			p := newTestPipeline(t, &fakeGenerator{}, WithPersister(store))
			watchInvariants(t, p)
			st := p.Restore(context.Background())
			if st.Stage != tt.wantStage || st.Query != tt.wantQuery {
				t.Fatalf("restored %s %q, want %s %q", st.Stage, st.Query, tt.wantStage, tt.wantQuery)
			}
			if st.HasArtifacts() {
				t.Fatal("artifacts restored")
			}
		})
	}
}

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	store := &memPersister{saveErr: errors.New("disk full")}
	p := newTestPipeline(t, &fakeGenerator{}, WithPersister(store))
	ctx := context.Background()

	if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.GenerateAssets(ctx); err != nil {
		t.Fatalf("GenerateAssets: %v", err)
	}
	if p.State().Stage != types.StagePreview {
		t.Fatalf("stage = %s", p.State().Stage)
	}
	if store.saves == 0 {
		t.Fatal("no save attempted")
	}
	p.Reset(ctx)
	if store.clears != 1 {
		t.Fatalf("clears = %d", store.clears)
	}
}

func TestAuthSignal(t *testing.T) {
	store := &memPersister{}
	p := newTestPipeline(t, &fakeGenerator{}, WithPersister(store))
	ctx := context.Background()
	bus := authsignal.NewBus()

	if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.GenerateAssets(ctx); err != nil {
		t.Fatalf("GenerateAssets: %v", err)
	}
	if err := p.BeginUpload(); err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}

	delivered := p.ListenForAuth(ctx, bus)
	if n := bus.Publish(authsignal.Message{Type: authsignal.TypeYouTubeAuthSuccess}); n != 1 {
		t.Fatalf("handlers run = %d", n)
	}
	<-delivered

	st := p.State()
	if !st.Connected || st.Stage != types.StagePreview {
		t.Fatalf("state after auth = %s connected=%v", st.Stage, st.Connected)
	}
	if !store.connected {
		t.Fatal("connection flag not persisted")
	}
	if n := bus.Publish(authsignal.Message{Type: authsignal.TypeYouTubeAuthSuccess}); n != 0 {
		t.Fatalf("listener fired twice: %d", n)
	}
}

func TestAuthSignalLeavesEarlyStagesAlone(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	bus := authsignal.NewBus()
	p.ListenForAuth(context.Background(), bus)
	bus.Publish(authsignal.Message{Type: authsignal.TypeYouTubeAuthSuccess})
	st := p.State()
	if st.Stage != types.StageSearch || !st.Connected {
		t.Fatalf("state = %+v", st)
	}
}

func TestCloseRetiresListeners(t *testing.T) {
	p := New(&fakeGenerator{}, WithLogger(quietLogger()))
	bus := authsignal.NewBus()
	p.ListenForAuth(context.Background(), bus)
	p.Close()
	if bus.Pending() != 0 {
		t.Fatalf("pending = %d", bus.Pending())
	}
}

func TestUpload(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestPipeline(t, &fakeGenerator{}, WithPublisher(pub), WithVisibility("unlisted"))
	ctx := context.Background()

	if _, err := p.Upload(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Upload at search: %v", err)
	}
	if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.GenerateAssets(ctx); err != nil {
		t.Fatalf("GenerateAssets: %v", err)
	}
	if err := p.BeginUpload(); err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	res, err := p.Upload(ctx)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.Simulated || res.Notice != upload.Notice {
		t.Fatalf("result = %+v", res)
	}
	if pub.runID != p.State().RunID || pub.meta.Visibility != "unlisted" {
		t.Fatalf("publisher got run %q meta %+v", pub.runID, pub.meta)
	}
	if p.State().Stage != types.StagePreview {
		t.Fatalf("stage = %s", p.State().Stage)
	}
}

func TestRestoredRunKeepsLanguage(t *testing.T) {
	store := &memPersister{}
	ctx := context.Background()

	first := newTestPipeline(t, &fakeGenerator{}, WithPersister(store))
	if err := first.Submit(ctx, "Test Widget", types.LanguageSecondary); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if store.snap == nil || store.snap.Language != types.LanguageSecondary {
		t.Fatalf("persisted snapshot = %+v", store.snap)
	}

	var speechLang types.Language
	gen := &fakeGenerator{speech: func(_ context.Context, _ string, lang types.Language) ([]byte, error) {
		speechLang = lang
		return make([]byte, 48), nil
	}}
	second := newTestPipeline(t, gen, WithPersister(store))
	if st := second.Restore(ctx); st.Language != types.LanguageSecondary || st.Stage != types.StageScript {
		t.Fatalf("restored %s in %q", st.Stage, st.Language)
	}
	if err := second.GenerateAssets(ctx); err != nil {
		t.Fatalf("GenerateAssets: %v", err)
	}
	if speechLang != types.LanguageSecondary {
		t.Fatalf("speech generated in %q, want %q", speechLang, types.LanguageSecondary)
	}
}

func TestRestoreWithoutLanguageUsesPrimary(t *testing.T) {
	store := &memPersister{snap: &types.Snapshot{Query: "Test Widget", Stage: types.StageScript, Script: &widgetScript}}
	p := newTestPipeline(t, &fakeGenerator{}, WithPersister(store))
	if st := p.Restore(context.Background()); st.Language != types.LanguagePrimary {
		t.Fatalf("language = %q", st.Language)
	}
}

func TestResetDiscardsInFlightAssets(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGenerator{speech: func(context.Context, string, types.Language) ([]byte, error) {
		close(entered)
		<-release
		return make([]byte, 48), nil
	}}
	store := &memPersister{}
	p := newTestPipeline(t, gen, WithPersister(store))
	watchInvariants(t, p)
	ctx := context.Background()
	if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.GenerateAssets(ctx) }()
	<-entered
	p.Reset(ctx)
	close(release)

	if err := <-done; !errors.Is(err, ErrReset) {
		t.Fatalf("GenerateAssets after reset: %v", err)
	}
	st := p.State()
	if st.Stage != types.StageSearch || st.Query != "" || st.Script != nil || st.HasArtifacts() || st.LastError != nil {
		t.Fatalf("state after reset = %+v", st)
	}
	if got := p.Registry().Live(); got != 0 {
		t.Fatalf("live blobs = %d", got)
	}
	if store.snap != nil {
		t.Fatalf("snapshot resurrected: %+v", store.snap)
	}
}

func TestResetCancelsInFlightSubmit(t *testing.T) {
	entered := make(chan struct{})
	gen := &fakeGenerator{lookup: func(ctx context.Context, _ string) (string, error) {
		close(entered)
		<-ctx.Done()
		return "", generate.Wrap(generate.ErrBackend, "lookup", "", ctx.Err())
	}}
	p := newTestPipeline(t, gen)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.Submit(ctx, "Test Widget", types.LanguagePrimary) }()
	<-entered
	p.Reset(ctx)

	if err := <-done; !errors.Is(err, ErrReset) {
		t.Fatalf("Submit after reset: %v", err)
	}
	st := p.State()
	if st.Stage != types.StageSearch || st.Query != "" || st.LastError != nil {
		t.Fatalf("state after reset = %+v", st)
	}
}

func TestNewQueryDropsStaleProductInfo(t *testing.T) {
	lookups := 0
	gen := &fakeGenerator{
		lookup: func(context.Context, string) (string, error) {
			lookups++
			if lookups == 1 {
				return "Widget is great", nil
			}
			return "", generate.Wrap(generate.ErrBackend, "lookup", "http 500", nil)
		},
		script: func(context.Context, string, types.Language) (types.Script, error) {
			return types.Script{}, generate.Wrap(generate.ErrMalformedResponse, "script", "missing cta", nil)
		},
	}
	store := &memPersister{}
	p := newTestPipeline(t, gen, WithPersister(store))
	ctx := context.Background()

	if err := p.Submit(ctx, "Test Widget", types.LanguagePrimary); err == nil {
		t.Fatal("expected script failure")
	}
	if got := p.State().ProductInfo; got != "Widget is great" {
		t.Fatalf("product info = %q", got)
	}
	if err := p.Submit(ctx, "Other Gadget", types.LanguagePrimary); err == nil {
		t.Fatal("expected lookup failure")
	}
	st := p.State()
	if st.Query != "Other Gadget" || st.ProductInfo != "" {
		t.Fatalf("state = %q %q", st.Query, st.ProductInfo)
	}
	if store.snap == nil || store.snap.ProductInfo != "" {
		t.Fatalf("persisted snapshot = %+v", store.snap)
	}
}

type slowPersister struct {
	memPersister
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowPersister) SaveSnapshot(ctx context.Context, snap types.Snapshot) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.memPersister.SaveSnapshot(ctx, snap)
}

func TestSnapshotWriteDoesNotBlockReaders(t *testing.T) {
	store := &slowPersister{entered: make(chan struct{}), release: make(chan struct{})}
	p := newTestPipeline(t, &fakeGenerator{}, WithPersister(store))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.Submit(ctx, "Test Widget", types.LanguagePrimary) }()
	<-store.entered

	// the write is parked; reading state must still succeed
	if got := p.State().Query; got != "Test Widget" {
		t.Fatalf("query = %q", got)
	}
	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if store.snap == nil || store.snap.Stage != types.StageScript {
		t.Fatalf("final snapshot = %+v", store.snap)
	}
}
