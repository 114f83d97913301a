// Package license implements the License Gate (C4): a process-wide,
// single-owner state machine that periodically revalidates a license key,
// gates feature flags, and freezes its previous verdict when the validation
// call is rate-limited. Per spec.md §9's "process-as-object" strategy it is
// modeled as an owned goroutine with a command channel rather than a bare
// mutex-guarded struct — callers never see partial state mid-transition.
package license

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wanderer-notifier/internal/errs"
)

// State is one node of the license state machine in spec.md §4.4.
type State int

const (
	Unknown State = iota
	Valid
	PartialValid
	Invalid
	Frozen
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case PartialValid:
		return "partial_valid"
	case Invalid:
		return "invalid"
	case Frozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// Verdict is the license response snapshot the gate surfaces to callers.
type Verdict struct {
	State       State
	BotAssigned bool
	Features    []string
	Details     map[string]any
	Err         error // non-nil alongside a frozen/unchanged verdict (e.g. errs.ErrRateLimited)
}

// FeatureEnabled reports whether name is present in the verdict's feature
// list. Absent or non-list responses disable the feature.
func (v Verdict) FeatureEnabled(name string) bool {
	for _, f := range v.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Counters tallies notifications gated per kind; they increment atomically
// and survive state transitions.
type Counters struct {
	System    int
	Character int
	Killmail  int
}

// commandKind selects the operation a Gate goroutine processes.
type commandKind int

const (
	cmdGet commandKind = iota
	cmdForceRevalidate
	cmdIncrement
	cmdStop
)

type command struct {
	kind  commandKind
	kind2 string // notification kind for cmdIncrement
	reply chan Verdict
	done  chan struct{}
}

// Gate is the License Gate. Construct with New and call Run in its own
// goroutine; interact exclusively through Verdict/ForceRevalidate.
type Gate struct {
	licenseBase string
	licenseKey  string
	apiToken    string
	httpClient  *http.Client
	devMode     bool

	refreshInterval time.Duration
	cmds            chan command
	counters        Counters
}

// New builds a Gate. devMode mirrors spec.md §4.4's "dev/test mode with
// empty credentials self-reports Valid with a sentinel body".
func New(licenseBase, licenseKey, apiToken string, refreshInterval time.Duration, devMode bool) *Gate {
	return &Gate{
		licenseBase:     licenseBase,
		licenseKey:      licenseKey,
		apiToken:        apiToken,
		httpClient:      &http.Client{Timeout: 3 * time.Second},
		devMode:         devMode,
		refreshInterval: refreshInterval,
		cmds:            make(chan command),
	}
}

// Run owns all license state; it must be started in its own goroutine and
// stopped by cancelling ctx.
func (g *Gate) Run(ctx context.Context) {
	current := g.initialVerdict()

	ticker := time.NewTicker(g.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			current = g.revalidate(ctx, current)

		case cmd := <-g.cmds:
			switch cmd.kind {
			case cmdGet:
				cmd.reply <- current
			case cmdForceRevalidate:
				current = g.revalidate(ctx, current)
				cmd.reply <- current
			case cmdIncrement:
				switch cmd.kind2 {
				case "system":
					g.counters.System++
				case "character":
					g.counters.Character++
				case "killmail":
					g.counters.Killmail++
				}
				close(cmd.done)
			case cmdStop:
				close(cmd.done)
				return
			}
		}
	}
}

func (g *Gate) initialVerdict() Verdict {
	if g.devMode && g.licenseKey == "" {
		return Verdict{State: Valid, BotAssigned: true, Features: []string{"system_tracking", "character_tracking", "notifications"}}
	}
	return Verdict{State: Unknown}
}

// Verdict returns the current snapshot without blocking on network I/O.
func (g *Gate) Verdict() Verdict {
	reply := make(chan Verdict, 1)
	g.cmds <- command{kind: cmdGet, reply: reply}
	return <-reply
}

// ForceRevalidate triggers an immediate out-of-band validation call.
func (g *Gate) ForceRevalidate() Verdict {
	reply := make(chan Verdict, 1)
	g.cmds <- command{kind: cmdForceRevalidate, reply: reply}
	return <-reply
}

// IncrementCounter bumps the per-kind notification counter (system,
// character, killmail); it survives state transitions per spec.md §4.4.
func (g *Gate) IncrementCounter(kind string) {
	done := make(chan struct{})
	g.cmds <- command{kind: cmdIncrement, kind2: kind, done: done}
	<-done
}

// Stop terminates the Gate's goroutine.
func (g *Gate) Stop() {
	done := make(chan struct{})
	g.cmds <- command{kind: cmdStop, done: done}
	<-done
}

// revalidate performs one validation RPC with a hard 3s deadline. On
// timeout, the previous verdict is returned unchanged with Err set to
// errs.ErrLicenseTimeout.
// On rate_limited, the previous {valid, bot_assigned, details} are retained
// (License freeze invariant, spec.md §3.4).
func (g *Gate) revalidate(ctx context.Context, previous Verdict) Verdict {
	if g.devMode && g.licenseKey == "" {
		return g.initialVerdict()
	}

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := g.callValidate(reqCtx)
	if err != nil {
		if reqCtx.Err() != nil {
			return Verdict{State: previous.State, BotAssigned: previous.BotAssigned,
				Features: previous.Features, Details: previous.Details, Err: errs.ErrLicenseTimeout}
		}
		return Verdict{State: Invalid, Err: err}
	}

	if resp.rateLimited {
		return Verdict{State: Frozen, BotAssigned: previous.BotAssigned,
			Features: previous.Features, Details: previous.Details, Err: errs.ErrRateLimited}
	}

	if !resp.valid {
		return Verdict{State: Invalid}
	}
	if resp.botAssigned {
		return Verdict{State: Valid, BotAssigned: true, Features: resp.features, Details: resp.details}
	}
	return Verdict{State: PartialValid, BotAssigned: false, Features: resp.features, Details: resp.details}
}

type validateResponse struct {
	valid       bool
	botAssigned bool
	rateLimited bool
	features    []string
	details     map[string]any
}

func (g *Gate) callValidate(ctx context.Context) (*validateResponse, error) {
	url := fmt.Sprintf("%s/validate?key=%s", g.licenseBase, g.licenseKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if g.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiToken)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &validateResponse{rateLimited: true}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Valid       bool           `json:"valid"`
		BotAssigned bool           `json:"bot_assigned"`
		Features    []string       `json:"features"`
		Details     map[string]any `json:"details"`
		Token       string         `json:"api_token"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode license response: %w", err)
	}

	// Optionally decode a signed JWT api_token to extract claims without a
	// full auth stack (spec.md's license response may present credentials
	// as a signed JWT rather than a plain JSON flag).
	if raw.Token != "" {
		if claims, err := parseUnverifiedClaims(raw.Token); err == nil {
			if ba, ok := claims["bot_assigned"].(bool); ok {
				raw.BotAssigned = ba
			}
			if feats, ok := claims["features"].([]any); ok {
				raw.Features = raw.Features[:0]
				for _, f := range feats {
					if s, ok := f.(string); ok {
						raw.Features = append(raw.Features, s)
					}
				}
			}
		}
	}

	return &validateResponse{
		valid:       raw.Valid,
		botAssigned: raw.BotAssigned,
		features:    raw.Features,
		details:     raw.Details,
	}, nil
}

// parseUnverifiedClaims extracts claims from a JWT without verifying its
// signature — the license server is the trust boundary, not this process;
// we only need the claims it already asserted over HTTPS.
func parseUnverifiedClaims(tokenString string) (jwt.MapClaims, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
