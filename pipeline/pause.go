package pipeline

import (
	"time"

	"github.com/krich11/qdayscanner/internal/logs"
)

var pauseLog = logs.Get(logs.TagPause)

// PauseConfig carries the backpressure HIGH/LOW thresholds.
type PauseConfig struct {
	Enabled       bool
	HighThreshold int
	LowThreshold  int
	PollInterval  time.Duration
}

// PauseController is the periodic loop watching the write queue depth,
// setting/clearing the automatic pause flag. It never interferes with a
// manual operator override.
type PauseController struct {
	ctx *Context
	cfg PauseConfig
}

// NewPauseController constructs a PauseController.
func NewPauseController(ctx *Context, cfg PauseConfig) *PauseController {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &PauseController{ctx: ctx, cfg: cfg}
}

// Run polls the write queue depth until the context is stopped.
func (p *PauseController) Run() {
	if !p.cfg.Enabled {
		pauseLog.Infof("automatic pause controller disabled")
		return
	}
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if p.ctx.Stopped() {
			return
		}
		select {
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *PauseController) tick() {
	depth := p.ctx.WriteQueueDepth()
	switch {
	case depth > p.cfg.HighThreshold && !p.ctx.AutoPaused():
		pauseLog.Warnf("write queue depth %d exceeds high threshold %d: pausing workers", depth, p.cfg.HighThreshold)
		p.ctx.SetAutoPause(true)
	case depth < p.cfg.LowThreshold && p.ctx.AutoPaused():
		pauseLog.Infof("write queue depth %d below low threshold %d: resuming workers", depth, p.cfg.LowThreshold)
		p.ctx.SetAutoPause(false)
	}
}
