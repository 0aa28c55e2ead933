package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/config"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/embedding"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/emotion"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/extract"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/llm"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/security"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/internal/workpool"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// Dependencies are the collaborators a MemoryEngine is built from. Clients
// are constructed once by the caller and shared.
type Dependencies struct {
	Store      storage.VectorStore
	Embedder   llm.EmbeddingGenerator
	Emotions   *emotion.Cascade
	Extractor  *extract.Extractor
	Classifier *security.Classifier
	Policy     *config.Policy
}

// MemoryEngine is the caller-facing API: it stores turns, answers queries
// and runs the aging sweep on its own ticker.
type MemoryEngine struct {
	cfg        Config
	store      storage.VectorStore
	policy     *config.Policy
	emotions   *emotion.Cascade
	extractor  *extract.Extractor
	classifier *security.Classifier
	embedder   llm.EmbeddingGenerator
	fanout     *embedding.FanOut
	scorer     *SignificanceScorer
	search     *SearchOrchestrator
	decay      *DecayManager

	// now is the clock; tests replace it.
	now func() time.Time

	started atomic.Bool
	mu      sync.Mutex // guards lifecycle fields below
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	sweepMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []func(Event)
}

// NewMemoryEngine validates cfg and the policy and wires the engine. It
// does not start the aging ticker; call Start.
func NewMemoryEngine(deps Dependencies, cfg Config) (*MemoryEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if deps.Store == nil || deps.Embedder == nil {
		return nil, errors.New("engine: store and embedder are required")
	}
	if deps.Policy == nil {
		log.Printf("engine: no policy supplied, using built-in policy")
		deps.Policy = config.DefaultPolicy()
	}
	if err := deps.Policy.Validate(); err != nil {
		return nil, err
	}
	if deps.Emotions == nil {
		deps.Emotions = emotion.NewCascade(emotion.NewKeywordClassifier(extract.DefaultPatterns()))
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New(extract.DefaultPatterns())
	}
	if deps.Classifier == nil {
		deps.Classifier = security.NewClassifier()
	}
	filter, err := security.NewFilter(deps.Policy)
	if err != nil {
		return nil, err
	}

	pool := workpool.New(cfg.PoolSize)
	fanout := embedding.NewFanOut(deps.Embedder, pool, cfg.EmbedTimeout)

	e := &MemoryEngine{
		cfg:        cfg,
		store:      deps.Store,
		policy:     deps.Policy,
		emotions:   deps.Emotions,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		embedder:   deps.Embedder,
		fanout:     fanout,
		scorer:     NewSignificanceScorer(deps.Policy),
		search:     NewSearchOrchestrator(deps.Store, fanout, filter, pool, cfg),
		now:        func() time.Time { return time.Now().UTC() },
	}
	e.decay = NewDecayManager(deps.Store, deps.Policy, cfg.SweepBatchSize, e.publish)
	return e, nil
}

// OnEvent registers fn to receive every lifecycle event. fn runs on the
// goroutine that caused the event and must not block.
func (e *MemoryEngine) OnEvent(fn func(Event)) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

func (e *MemoryEngine) publish(ev Event) {
	e.listenersMu.RLock()
	listeners := e.listeners
	e.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Policy returns the policy the engine was built with.
func (e *MemoryEngine) Policy() *config.Policy {
	return e.policy
}

// Start launches the aging ticker. Canceling ctx stops it, as does Shutdown.
func (e *MemoryEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started.Load() {
		return ErrAlreadyStarted
	}

	log.Println("Starting memory engine...")

	tickerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if e.cfg.SweepOnStart {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runSweep(tickerCtx)
		}()
	}
	if e.cfg.SweepInterval > 0 {
		e.wg.Add(1)
		go e.sweepLoop(tickerCtx)
	} else {
		log.Printf("engine: sweep interval is 0, aging ticker disabled")
	}

	e.started.Store(true)
	log.Println("Memory engine started successfully")
	return nil
}

func (e *MemoryEngine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runSweep(ctx)
		}
	}
}

func (e *MemoryEngine) runSweep(ctx context.Context) {
	if _, err := e.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) && ctx.Err() == nil {
		log.Printf("ERROR: aging sweep failed: %v", err)
	}
}

// Shutdown stops the ticker and waits for a running sweep to end or ctx to
// expire.
func (e *MemoryEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started.Load() {
		return ErrNotStarted
	}

	log.Println("Shutting down memory engine...")
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("WARNING: aging sweep did not stop before shutdown deadline: %v", ctx.Err())
	}

	e.started.Store(false)
	log.Println("Memory engine shut down successfully")
	return nil
}

// StoreOption adjusts one Store call.
type StoreOption func(*storeOptions)

type storeOptions struct {
	emotion *types.EmotionResult
	factors *types.SignificanceFactors
	depth   string
}

// WithEmotion supplies the emotion classification instead of running the
// classifier cascade.
func WithEmotion(res types.EmotionResult) StoreOption {
	return func(o *storeOptions) { o.emotion = &res }
}

// WithFactors supplies the significance factors instead of estimating them.
// EmotionalIntensity is always taken from the record's emotion result.
func WithFactors(f types.SignificanceFactors) StoreOption {
	return func(o *storeOptions) { o.factors = &f }
}

// WithRelationshipDepth passes the intimacy level already established with
// the owner to the relationship tag.
func WithRelationshipDepth(depth string) StoreOption {
	return func(o *storeOptions) { o.depth = depth }
}

// Store writes text as a new memory of ownerID and returns its ID. The
// record is stored with all six vectors or not at all.
func (e *MemoryEngine) Store(ctx context.Context, ownerID, text string, raw types.RawContext, opts ...StoreOption) (string, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: owner id and text are required", storage.ErrInvalidInput)
	}
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}

	mctx := e.classifier.ClassifyWrite(raw)

	var emo types.EmotionResult
	if o.emotion != nil {
		emo = *o.emotion
	} else {
		emo = e.emotions.Classify(ctx, text)
	}
	emo.Intensity = types.Clamp01(emo.Intensity)
	emo.Confidence = types.Clamp01(emo.Confidence)
	if emo.PrimaryEmotion == "" {
		emo.PrimaryEmotion = emotion.Neutral
	}

	tags := e.extractor.Extract(text, ownerID, extract.PriorContext{Emotion: &emo, RelationshipDepth: o.depth})

	vectors, err := e.fanout.EmbedAll(ctx, text, tags)
	if err != nil {
		return "", fmt.Errorf("engine: store: %w", err)
	}

	var factors types.SignificanceFactors
	if o.factors != nil {
		factors = o.factors.Clamp()
	} else {
		factors = EstimateFactors(text, emo.Intensity, e.history(ctx, ownerID))
	}
	// The record's own intensity drives scoring, tiering and the hard floor.
	factors.EmotionalIntensity = emo.Intensity
	significance := e.scorer.Score(factors)
	tier := e.scorer.TierFor(significance, emo.Intensity)

	now := e.now()
	rec := &types.MemoryRecord{
		ID:                 uuid.NewString(),
		OwnerID:            ownerID,
		CreatedAt:          now,
		Content:            text,
		Vectors:            vectors,
		Tags:               tags,
		PrimaryEmotion:     emo.PrimaryEmotion,
		EmotionConfidence:  emo.Confidence,
		EmotionalIntensity: emo.Intensity,
		SecondaryEmotions:  emo.Secondary(3),
		Tier:               tier,
		Significance:       significance,
		DecayResistance:    e.scorer.DecayResistance(significance, emo.Intensity, factors.Uniqueness),
		Factors:            factors,
		LastAccessedAt:     now,
		TierUpdatedAt:      now,
		ContextType:        mctx.Type,
		SecurityLevel:      mctx.SecurityLevel,
		ServerID:           mctx.ServerID,
		ChannelID:          mctx.ChannelID,
		IsPrivate:          mctx.IsPrivate,
		ScopeKey:           mctx.ScopeKey(),
	}
	if err := e.store.Write(ctx, rec); err != nil {
		return "", fmt.Errorf("engine: store: %w", err)
	}

	e.publish(Event{Type: EventStored, MemoryID: rec.ID, OwnerID: ownerID, Tier: tier, At: now})
	return rec.ID, nil
}

// history returns the owner's recent contents for factor estimation. A
// failed read only degrades the estimate.
func (e *MemoryEngine) history(ctx context.Context, ownerID string) []string {
	if e.cfg.HistorySize == 0 {
		return nil
	}
	contents, err := e.store.RecentContents(ctx, ownerID, e.cfg.HistorySize)
	if err != nil {
		log.Printf("engine: recent memories for %s unavailable, estimating without history: %v", ownerID, err)
		return nil
	}
	return contents
}

// QueryOption adjusts one Query call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	weights map[types.Dimension]float64
	depth   string
}

// WithWeights replaces the configured fusion weights for one query.
func WithWeights(w map[types.Dimension]float64) QueryOption {
	return func(o *queryOptions) { o.weights = w }
}

// WithQueryRelationshipDepth conditions the relationship tag of the query.
func WithQueryRelationshipDepth(depth string) QueryOption {
	return func(o *queryOptions) { o.depth = depth }
}

// Query returns up to limit memories of ownerID most similar to text that
// are visible from raw's context. Returned records count as accessed.
func (e *MemoryEngine) Query(ctx context.Context, ownerID, text string, raw types.RawContext, limit int, opts ...QueryOption) ([]ScoredRecord, error) {
	res, err := e.query(ctx, ownerID, text, raw, limit, opts)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// DebugQuery runs Query with tracing and also returns how the result was
// fused.
func (e *MemoryEngine) DebugQuery(ctx context.Context, ownerID, text string, raw types.RawContext, limit int, opts ...QueryOption) (*SearchResult, *DebugQueryResult, error) {
	tc := NewTraceCollector()
	res, err := e.query(WithTraceCollector(ctx, tc), ownerID, text, raw, limit, opts)
	if err != nil {
		return nil, nil, err
	}
	debug := BuildDebugResult(tc.Events(), tc.ElapsedMS())
	debug.Weights = res.Weights
	return res, debug, nil
}

func (e *MemoryEngine) query(ctx context.Context, ownerID, text string, raw types.RawContext, limit int, opts []QueryOption) (*SearchResult, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: owner id and text are required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	o := queryOptions{weights: e.policy.Weights}
	for _, opt := range opts {
		opt(&o)
	}

	caller := e.classifier.Classify(raw)
	emo := e.emotions.Classify(ctx, text)
	tags := e.extractor.Extract(text, ownerID, extract.PriorContext{Emotion: &emo, RelationshipDepth: o.depth})

	res, err := e.search.Search(ctx, Query{OwnerID: ownerID, Text: text, Tags: tags}, caller, o.weights, limit)
	if err != nil {
		return nil, err
	}

	if len(res.Records) > 0 {
		ids := make([]string, len(res.Records))
		for i, r := range res.Records {
			ids[i] = r.Record.ID
		}
		now := e.now()
		if err := e.store.Touch(ctx, ids, now); err != nil {
			log.Printf("engine: failed to record access of %d memories: %v", len(ids), err)
		} else {
			for _, r := range res.Records {
				if now.After(r.Record.LastAccessedAt) {
					r.Record.LastAccessedAt = now
				}
			}
		}
	}
	return res, nil
}

// Delete removes one memory of ownerID. It is atomic like eviction: the
// record and all six vectors disappear together.
func (e *MemoryEngine) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" || id == "" {
		return fmt.Errorf("%w: owner id and memory id are required", storage.ErrInvalidInput)
	}
	if err := e.store.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("engine: delete %s: %w", id, err)
	}
	e.publish(Event{Type: EventEvicted, MemoryID: id, OwnerID: ownerID, Reason: "deleted by owner", At: e.now()})
	return nil
}

// Sweep runs one aging pass now under the configured sweep timeout. Only one
// sweep runs at a time; a concurrent call returns ErrSweepInProgress.
func (e *MemoryEngine) Sweep(ctx context.Context) (SweepResult, error) {
	if !e.sweepMu.TryLock() {
		return SweepResult{}, ErrSweepInProgress
	}
	defer e.sweepMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SweepTimeout)
	defer cancel()
	return e.decay.Sweep(ctx, e.now())
}

// Health probes the store and, when supported, the embedding backend.
func (e *MemoryEngine) Health(ctx context.Context) map[string]string {
	status := map[string]string{"store": "ok", "embedder": "ok"}
	if _, err := e.store.Count(ctx); err != nil {
		status["store"] = err.Error()
	}
	if hc, ok := e.embedder.(llm.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			status["embedder"] = err.Error()
		}
	}
	return status
}
