package pipeline

import (
	"sync"

	"errtoast/internal/capture"
	"errtoast/internal/clock"
	"errtoast/internal/eventbus"
	"errtoast/internal/history"
	"errtoast/internal/page"
	logx "errtoast/pkg/logx"
)

// Ignorer is the suppression list the gate consults last.
type Ignorer interface {
	Ready() bool
	IsIgnored(signature string) bool
}

// Recorder receives every accepted error.
type Recorder interface {
	Add(e capture.Error, url string) history.Entry
}

// Shower displays accepted errors.
type Shower interface {
	Show(e capture.Error) (id int64, created bool)
}

// Result describes what happened to one input.
type Result struct {
	Reason    Reason `json:"reason,omitempty"`
	Signature string `json:"signature,omitempty"`
	HistoryID int64  `json:"history_id,omitempty"`
	ToastID   int64  `json:"toast_id,omitempty"`
	// Collapsed is true when the error was folded into an existing toast.
	Collapsed bool `json:"collapsed,omitempty"`
}

func (r Result) Accepted() bool { return r.Reason == Accepted }

// DropEvent is the payload of eventbus.IngestDropped.
type DropEvent struct {
	Reason    Reason       `json:"reason"`
	Type      capture.Type `json:"type,omitempty"`
	Signature string       `json:"signature,omitempty"`
}

// Pipeline serializes ingestion so errors are recorded and shown in arrival
// order.
type Pipeline struct {
	page    page.Context
	clock   clock.Clock
	log     logx.Logger
	bus     eventbus.Bus
	ignore  Ignorer
	history Recorder
	toasts  Shower

	cmu  sync.RWMutex
	gate GateConfig

	mu      sync.Mutex
	dropped map[Reason]int
	passed  int
}

func New(cfg GateConfig, pg page.Context, ig Ignorer, h Recorder, t Shower, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Pipeline {
	if clk == nil {
		clk = clock.NewReal()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{
		page:    pg,
		clock:   clk,
		log:     log,
		bus:     bus,
		ignore:  ig,
		history: h,
		toasts:  t,
		gate:    cfg.clone(),
		dropped: map[Reason]int{},
	}
}

// Apply replaces the gate configuration. It affects the next Ingest.
func (p *Pipeline) Apply(cfg GateConfig) {
	c := cfg.clone()
	p.cmu.Lock()
	p.gate = c
	p.cmu.Unlock()
}

func (p *Pipeline) Gate() GateConfig {
	p.cmu.RLock()
	defer p.cmu.RUnlock()
	return p.gate.clone()
}

// Ingest runs e through the gate and, if it passes, records and shows it.
func (p *Pipeline) Ingest(e capture.Error) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	sig := capture.Signature(e)
	if r := p.checkLocked(e, sig); r != Accepted {
		p.dropped[r]++
		eventbus.Emit(p.bus, eventbus.IngestDropped, p.clock.Now(), DropEvent{Reason: r, Type: e.Type, Signature: sig})
		if p.log.Enabled(logx.LevelTrace) {
			p.log.Trace("capture dropped", logx.String("reason", string(r)), logx.String("signature", sig))
		}
		return Result{Reason: r, Signature: sig}
	}

	p.passed++
	res := Result{Signature: sig}
	if p.history != nil {
		res.HistoryID = p.history.Add(e, p.page.URL).ID
	}
	if p.toasts != nil {
		id, created := p.toasts.Show(e)
		res.ToastID = id
		res.Collapsed = !created
	}
	return res
}

// IngestRaw decodes one JSON record from the interception shim and ingests
// it. Undecodable input is dropped as malformed.
func (p *Pipeline) IngestRaw(b []byte) Result {
	raw, err := capture.DecodeRaw(b)
	if err != nil {
		p.mu.Lock()
		p.dropped[DropMalformed]++
		p.mu.Unlock()
		p.log.Debug("capture decode failed", logx.Err(err))
		eventbus.Emit(p.bus, eventbus.IngestDropped, p.clock.Now(), DropEvent{Reason: DropMalformed})
		return Result{Reason: DropMalformed}
	}
	return p.Ingest(capture.Normalize(raw, p.clock.Now()))
}

func (p *Pipeline) checkLocked(e capture.Error, sig string) Reason {
	if p.ignore != nil && !p.ignore.Ready() {
		return DropNotReady
	}
	p.cmu.RLock()
	r := p.gate.check(p.page.Host, e.Type)
	p.cmu.RUnlock()
	if r != Accepted {
		return r
	}
	if p.ignore != nil && p.ignore.IsIgnored(sig) {
		return DropIgnored
	}
	return Accepted
}

// Stats is a snapshot of ingestion counters.
type Stats struct {
	Accepted int            `json:"accepted"`
	Dropped  map[Reason]int `json:"dropped"`
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := make(map[Reason]int, len(p.dropped))
	for k, v := range p.dropped {
		d[k] = v
	}
	return Stats{Accepted: p.passed, Dropped: d}
}
