package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lsilvatti/modtranslate/internal/config"
	"github.com/lsilvatti/modtranslate/internal/core/ai"
	"github.com/lsilvatti/modtranslate/internal/core/batchrunner"
	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/eventbus"
	"github.com/lsilvatti/modtranslate/internal/core/llmcache"
	"github.com/lsilvatti/modtranslate/internal/core/llmerrors"
	"github.com/lsilvatti/modtranslate/internal/core/llmtranslate"
	"github.com/lsilvatti/modtranslate/internal/core/obslog"
	"github.com/lsilvatti/modtranslate/internal/core/orchestrator"
	"github.com/lsilvatti/modtranslate/internal/core/promptbuilder"
	"github.com/lsilvatti/modtranslate/internal/core/tmlookup"
	"github.com/lsilvatti/modtranslate/internal/core/tmstore"
	"github.com/lsilvatti/modtranslate/internal/core/validation"
)

const defaultSystemPrompt = "You are a professional game localization translator. " +
	"Translate each unit's text into the target language, preserving any " +
	"inline markup tags exactly as given. Respond with the same JSON array " +
	"shape, one entry per input unit, in any order.{{glossary}}"

func main() {
	inputPath := flag.String("input", "", "JSON file with an array of translation units ({id, sourceText, context, notes})")
	targetLanguage := flag.String("target-language", "", "Target language code, e.g. pt-br")
	projectLanguageID := flag.String("project-language-id", "", "Project language id translation versions are keyed under")
	gameContext := flag.String("game-context", "", "Free-form game context passed to the prompt")
	glossaryPath := flag.String("glossary", "", "Optional JSON file mapping original -> translated glossary terms")
	sourceLang := flag.String("source-language", "en", "Source language code, used by the default validator")
	parallelBatches := flag.Int("parallel-batches", 3, "Max concurrent batches (clamped 1..20)")
	unitsPerBatch := flag.Int("units-per-batch", 0, "Units per sub-batch; 0 means the whole input is one batch")
	skipTm := flag.Bool("skip-tm", false, "Bypass the translation cache Hit check (still registers results)")
	providerOverride := flag.String("provider", "", "Override the configured AI provider")
	modelOverride := flag.String("model", "", "Override the configured model")

	flag.Parse()

	if *inputPath == "" || *targetLanguage == "" {
		fmt.Fprintln(os.Stderr, "usage: modtranslate -input units.json -target-language pt-br [options]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *providerOverride != "" {
		cfg.AIProvider = *providerOverride
	}
	if *modelOverride != "" {
		cfg.Model = *modelOverride
	}

	log := obslog.NewConsole(cfg.LogLevel)

	units, err := loadUnits(*inputPath)
	if err != nil {
		log.Error("failed to load input units", err)
		os.Exit(1)
	}

	glossary, err := loadGlossary(*glossaryPath)
	if err != nil {
		log.Error("failed to load glossary", err)
		os.Exit(1)
	}

	store, err := tmstore.Open(cfg.TmDatabasePath)
	if err != nil {
		log.Error("failed to open translation memory", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := ai.NewProviderFactory(cfg).CreateProvider(ctx)
	if err != nil {
		log.Error("failed to create ai provider", err)
		os.Exit(1)
	}

	prompt := promptbuilder.New(defaultSystemPrompt)
	bus := eventbus.New()
	progress := orchestrator.NewProgressManager()
	progress.SetEventBus(bus)

	tctx := domain.TranslationContext{
		ProjectLanguageID:     *projectLanguageID,
		TargetLanguage:        *targetLanguage,
		ProviderCode:          cfg.AIProvider,
		ModelID:               cfg.Model,
		GameContext:           *gameContext,
		GlossaryTerms:         glossary,
		ParallelBatches:       *parallelBatches,
		UnitsPerBatch:         *unitsPerBatch,
		SkipTranslationMemory: *skipTm,
	}

	runner := newRunner(store, progress, log, *sourceLang, *targetLanguage)
	rawTranslate := buildRawTranslate(provider, prompt, tctx)

	batches := splitIntoBatches(units, tctx.UnitsPerBatch)
	batchIDs := make([]string, len(batches))
	for i := range batches {
		batchIDs[i] = uuid.NewString()
	}

	watchEvents(bus)
	watchSignals(ctx, progress, batchIDs)

	var printedMu sync.Mutex
	printProgress := func(batchID string) {
		ch, unsubscribe, ok := progress.Subscribe(batchID)
		if !ok {
			return
		}
		go func() {
			defer unsubscribe()
			for p := range ch {
				printedMu.Lock()
				fmt.Printf("[%s] %s: %d/%d processed (%d ok, %d needs review)\n",
					batchID, p.CurrentPhase, p.ProcessedUnits, p.TotalUnits, p.SuccessfulUnits, p.SkippedUnits)
				printedMu.Unlock()
			}
		}()
	}
	for _, id := range batchIDs {
		printProgress(id)
	}

	handler := orchestrator.NewParallelHandler(progress, tctx.ParallelBatches)
	bus.Publish(eventbus.Event{Type: eventbus.BatchStarted, Detail: fmt.Sprintf("%d batches queued", len(batches))})

	errs := handler.Run(ctx, batchIDs, func(ctx context.Context, batchID string) error {
		idx := indexOf(batchIDs, batchID)
		versions, err := runner.Run(ctx, batchID, batches[idx], tctx, rawTranslate)
		if err != nil {
			bus.Publish(eventbus.Event{Type: eventbus.BatchFailed, BatchID: batchID, Detail: err.Error()})
			return err
		}
		bus.Publish(eventbus.Event{Type: eventbus.BatchCompleted, BatchID: batchID, Detail: fmt.Sprintf("%d versions saved", len(versions))})
		return nil
	})

	failures := 0
	for i, err := range errs {
		if err != nil {
			failures++
			log.Error("batch failed", err, obslog.F("batchId", batchIDs[i]))
		}
	}
	if failures > 0 {
		os.Exit(1)
	}
}

// runnerStore adapts tmstore.Store's TmEntry shape to validation.TmWriter's.
type runnerStore struct {
	*tmstore.Store
}

func (s runnerStore) SaveEntries(ctx context.Context, entries []validation.TmEntry) error {
	converted := make([]tmstore.TmEntry, len(entries))
	for i, e := range entries {
		converted[i] = tmstore.TmEntry{
			SourceText:     e.SourceText,
			TargetText:     e.TargetText,
			TargetLanguage: e.TargetLanguage,
			QualityScore:   e.QualityScore,
		}
	}
	return s.Store.SaveEntries(ctx, converted)
}

func newRunner(store *tmstore.Store, progress *orchestrator.ProgressManager, log obslog.LoggingService, sourceLang, targetLang string) *batchrunner.Runner {
	rs := runnerStore{store}

	tmHandler := tmlookup.New(store, store, progress)

	cache := llmtranslate.NewCacheManager(
		llmcache.New(),
		llmtranslate.NewTokenEstimator(),
		llmtranslate.NewRetryHandler(log),
		llmtranslate.NewErrorRecovery(),
		progress,
	)
	llmHandler := llmtranslate.NewHandler(cache)

	validator := validation.New(
		validation.NewLinterValidationService(sourceLang, targetLang),
		store,
		rs,
		progress,
	)

	return batchrunner.New(tmHandler, llmHandler, validator, progress, log)
}

// buildRawTranslate wires the uncached, unretried provider call the
// orchestration core's retry and split logic sits on top of.
func buildRawTranslate(provider ai.LlmProvider, prompt *promptbuilder.Builder, tctx domain.TranslationContext) llmtranslate.TranslateFunc {
	return func(ctx context.Context, units []domain.TranslationUnit, maxTokens int) (map[domain.UnitID]string, error) {
		texts := make(map[domain.UnitID]string, len(units))
		for _, u := range units {
			texts[u.ID] = u.SourceText
		}

		req := ai.LlmRequest{
			RequestID:      uuid.NewString(),
			Texts:          texts,
			TargetLanguage: tctx.TargetLanguage,
			SystemPrompt:   prompt.Build(tctx.GlossaryTerms, tctx.GameContext, nil),
			ModelName:      tctx.ModelID,
			ProviderCode:   tctx.ProviderCode,
			GameContext:    tctx.GameContext,
			GlossaryTerms:  tctx.GlossaryTerms,
			MaxTokens:      maxTokens,
		}

		resp, err := provider.Translate(ctx, req)
		if err != nil {
			if provErr, ok := err.(*ai.ProviderError); ok {
				return nil, provErr.Classify()
			}
			return nil, &llmerrors.ServiceError{Kind: llmerrors.KindNetwork, Provider: tctx.ProviderCode, Message: err.Error()}
		}
		return resp.Translations, nil
	}
}

func loadUnits(path string) ([]domain.TranslationUnit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var units []domain.TranslationUnit
	if err := json.Unmarshal(raw, &units); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return units, nil
}

func loadGlossary(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var glossary map[string]string
	if err := json.Unmarshal(raw, &glossary); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return glossary, nil
}

func splitIntoBatches(units []domain.TranslationUnit, unitsPerBatch int) [][]domain.TranslationUnit {
	if unitsPerBatch <= 0 || unitsPerBatch >= len(units) {
		return [][]domain.TranslationUnit{units}
	}
	var batches [][]domain.TranslationUnit
	for start := 0; start < len(units); start += unitsPerBatch {
		end := start + unitsPerBatch
		if end > len(units) {
			end = len(units)
		}
		batches = append(batches, units[start:end])
	}
	return batches
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// watchEvents prints batch lifecycle notifications for the life of the
// process; the subscription is intentionally never torn down since main
// owns the bus for its whole run.
func watchEvents(bus *eventbus.EventBus) {
	ch, _ := bus.Subscribe()
	go func() {
		for e := range ch {
			fmt.Printf("event: %s %s %s\n", e.Type, e.BatchID, e.Detail)
		}
	}()
}

// watchSignals turns a first SIGINT into "pause every active batch" and a
// second one within 5 seconds into "cancel everything", giving an
// operator a graceful stop before a hard one.
func watchSignals(ctx context.Context, progress *orchestrator.ProgressManager, batchIDs []string) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)

	go func() {
		var lastSignal time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if time.Since(lastSignal) < 5*time.Second {
					for _, id := range batchIDs {
						progress.Cancel(id)
					}
					return
				}
				lastSignal = time.Now()
				for _, id := range batchIDs {
					progress.Pause(id)
				}
				fmt.Fprintln(os.Stderr, "paused all batches; interrupt again within 5s to cancel")
			}
		}
	}()
}
