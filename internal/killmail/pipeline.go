// Package killmail implements the Killmail Pipeline (C8): receive → normalise
// → dedup → enrich → filter → format → dispatch, per spec.md §4.8. Grounded
// on the teacher's zkillboard processor (fan-out enrichment with bounded
// concurrency) and its RedisQConsumer (ctx-cancel + drain shutdown).
package killmail

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"wanderer-notifier/internal/dedup"
	"wanderer-notifier/internal/errs"
	"wanderer-notifier/internal/esi"
	"wanderer-notifier/internal/model"
	"wanderer-notifier/internal/registry"
)

// Notifier is the minimal C9 surface the pipeline dispatches through.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// OutcomeRecorder lets C10/C11 observe per-killmail skip reasons.
type OutcomeRecorder interface {
	RecordKillmailOutcome(killmailID uint64, status, reason string)
}

// Config tunes the pipeline's bounds, all matching spec.md §4.8 defaults.
type Config struct {
	QueueSize         int           // dispatch-stage bound, default 500
	MaxConcurrency    int           // enrichment concurrency, default runtime.NumCPU()
	EnrichmentTimeout time.Duration // per-killmail deadline, default 30s
	OverrideTTL       time.Duration // Validation Override auto-expire, default 5m
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 500
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = runtime.NumCPU()
	}
	if c.EnrichmentTimeout <= 0 {
		c.EnrichmentTimeout = 30 * time.Second
	}
	if c.OverrideTTL <= 0 {
		c.OverrideTTL = 5 * time.Minute
	}
	return c
}

// Pipeline processes incoming killmail references through every C8 stage.
type Pipeline struct {
	esiClient *esi.Client
	dedup     *dedup.Deduplicator
	registry  *registry.Registry
	notifier  Notifier
	recorder  OutcomeRecorder
	override  *Override
	cfg       Config

	sem   chan struct{}
	queue chan enrichedKill

	wg sync.WaitGroup
}

// New builds a Pipeline. Call Run in its own goroutine; feed input via
// Submit.
func New(esiClient *esi.Client, dd *dedup.Deduplicator, reg *registry.Registry, notifier Notifier, recorder OutcomeRecorder, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		esiClient: esiClient,
		dedup:     dd,
		registry:  reg,
		notifier:  notifier,
		recorder:  recorder,
		override:  NewOverride(cfg.OverrideTTL),
		cfg:       cfg,
		sem:       make(chan struct{}, cfg.MaxConcurrency),
		queue:     make(chan enrichedKill, cfg.QueueSize),
	}
}

// Override exposes the Validation Override control for the admin surface
// (C10's POST /debug/override).
func (p *Pipeline) Override() *Override { return p.override }

type enrichedKill struct {
	kill model.Killmail
	note model.Notification
}

// Submit enqueues one raw killmail reference for processing. It blocks only
// until one of the MaxConcurrency slots is free, then runs the stages
// receive→normalise→dedup→enrich→filter→format in a goroutine up to the
// point where the formatted notification is handed to the bounded dispatch
// queue, and returns nil without waiting for them. On overflow there the
// newest killmail is recorded as skipped with reason
// errs.ErrBackpressure, never an in-flight one (spec.md §4.8).
func (p *Pipeline) Submit(ctx context.Context, env model.KillmailFeedEnvelope) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		p.process(ctx, env)
	}()
	return nil
}

// normalise canonicalises the zkb summary and attaches a received_at
// timestamp (spec.md §4.8 "Normalise").
func normalise(env model.KillmailFeedEnvelope, receivedAt time.Time) model.Killmail {
	return model.Killmail{
		KillmailID: env.KillmailID,
		Hash:       env.Zkb.Hash,
		Zkb:        env.Zkb,
		ReceivedAt: receivedAt,
	}
}

func (p *Pipeline) process(ctx context.Context, env model.KillmailFeedEnvelope) {
	kill := normalise(env, time.Now())

	switch p.dedup.Duplicate("kill", fmt.Sprintf("%d", kill.KillmailID)) {
	case dedup.Duplicate:
		p.recordOutcome(kill.KillmailID, "skipped", "duplicate")
		return
	}

	enrichCtx, cancel := context.WithTimeout(ctx, p.cfg.EnrichmentTimeout)
	defer cancel()

	kill, err := p.enrich(enrichCtx, kill)
	if err != nil {
		slog.Warn("killmail enrichment failed, dropping", "killmail_id", kill.KillmailID, "error", err)
		p.recordOutcome(kill.KillmailID, "skipped", "enrichment_failed")
		return
	}

	reason, ok := p.filter(kill)
	if !ok {
		p.recordOutcome(kill.KillmailID, "skipped", reason)
		return
	}

	note := format(kill)
	select {
	case p.queue <- enrichedKill{kill: kill, note: note}:
	default:
		slog.Warn("killmail dispatch queue full, rejecting newest", "killmail_id", kill.KillmailID)
		p.recordOutcome(kill.KillmailID, "skipped", string(errs.ErrBackpressure.Error()))
	}
}

// enrich resolves the killmail body then concurrently resolves victim and
// attacker identities, their ship types, and the solar system. A partial
// resolution failure degrades the notification rather than dropping it;
// only the top-level killmail-body fetch is fatal to the killmail.
func (p *Pipeline) enrich(ctx context.Context, kill model.Killmail) (model.Killmail, error) {
	body, err := p.esiClient.GetKillmail(ctx, kill.KillmailID, kill.Hash)
	if err != nil {
		return kill, fmt.Errorf("enrich: killmail body: %w", err)
	}

	kill.SolarSystemID = asUint32(body["solar_system_id"])
	if t, ok := body["killmail_time"].(string); ok {
		if parsed, perr := time.Parse(time.RFC3339, t); perr == nil {
			kill.KillmailTime = parsed
		}
	}

	victimMap, _ := body["victim"].(map[string]any)
	kill.Victim = p.resolveParticipant(ctx, victimMap)

	rawAttackers, _ := body["attackers"].([]any)
	kill.Attackers = make([]model.Attacker, 0, len(rawAttackers))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, raw := range rawAttackers {
		am, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(am map[string]any) {
			defer wg.Done()
			v := p.resolveParticipant(ctx, am)
			finalBlow, _ := am["final_blow"].(bool)
			mu.Lock()
			kill.Attackers = append(kill.Attackers, model.Attacker{
				CharacterID:   v.CharacterID,
				CorporationID: v.CorporationID,
				AllianceID:    v.AllianceID,
				ShipTypeID:    v.ShipTypeID,
				FinalBlow:     finalBlow,
			})
			mu.Unlock()
		}(am)
	}
	wg.Wait()

	return kill, nil
}

// resolveParticipant looks up a single victim/attacker's identity fields.
// ESI lookup failures are tolerated: the raw numeric ids already present in
// the killmail body are kept even if the name-resolution calls fail, so a
// partial outage degrades rather than drops the notification.
func (p *Pipeline) resolveParticipant(ctx context.Context, raw map[string]any) model.Victim {
	v := model.Victim{
		CharacterID:   asUint64(raw["character_id"]),
		CorporationID: asUint64(raw["corporation_id"]),
		AllianceID:    asUint64(raw["alliance_id"]),
		ShipTypeID:    asUint64(raw["ship_type_id"]),
	}
	if v.CharacterID != 0 {
		if _, err := p.esiClient.GetCharacter(ctx, v.CharacterID); err != nil {
			slog.Debug("enrich: character lookup failed, keeping raw id", "character_id", v.CharacterID, "error", err)
		}
	}
	if v.ShipTypeID != 0 {
		if _, err := p.esiClient.GetType(ctx, v.ShipTypeID); err != nil {
			slog.Debug("enrich: ship type lookup failed, keeping raw id", "ship_type_id", v.ShipTypeID, "error", err)
		}
	}
	return v
}

// filter decides whether the killmail is notify-worthy. An armed Validation
// Override forces the decision regardless of tracked-entity membership.
func (p *Pipeline) filter(kill model.Killmail) (reason string, notify bool) {
	if p.override.ConsumeIfArmed() != OverrideDisabled {
		return "", true
	}

	if p.registry.IsTrackedSystem(kill.SolarSystemID) {
		return "", true
	}
	if kill.Victim.CharacterID != 0 && p.registry.IsTrackedCharacter(kill.Victim.CharacterID) {
		return "", true
	}
	for _, a := range kill.Attackers {
		if a.CharacterID != 0 && p.registry.IsTrackedCharacter(a.CharacterID) {
			return "", true
		}
	}
	return "no_tracked_entity", false
}

func (p *Pipeline) recordOutcome(killmailID uint64, status, reason string) {
	if p.recorder != nil {
		p.recorder.RecordKillmailOutcome(killmailID, status, reason)
	}
}

// Run drains the dispatch queue until ctx is cancelled, handing each
// formatted notification to C9, then waits for in-flight enrichment
// goroutines to finish (bounded by the caller's shutdown grace window).
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case item := <-p.queue:
			if err := p.notifier.Notify(ctx, item.note); err != nil {
				slog.Error("killmail notify failed", "killmail_id", item.kill.KillmailID, "error", err)
				p.recordOutcome(item.kill.KillmailID, "failed", "dispatch_error")
				continue
			}
			p.recordOutcome(item.kill.KillmailID, "dispatched", "")
		}
	}
}

func asUint64(v any) uint64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return uint64(f)
}

func asUint32(v any) uint32 {
	return uint32(asUint64(v))
}
