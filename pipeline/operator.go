package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/krich11/qdayscanner/internal/logs"
)

var operLog = logs.Get(logs.TagOperator)

// OperatorHooks are the callbacks the Supervisor wires up for each
// single-letter operator command.
type OperatorHooks struct {
	Quit     func()
	Status   func() string
	Metrics  func() string
	Queue    func() string
	Integrity func() string
}

// OperatorConsole reads single-letter commands from stdin: q quit, p
// toggle pause, s status, i integrity summary, m metrics, u queue depth,
// h help. Grounded on hydra_mode_scanner.py's keyboard_listener, extended
// to a fuller command set (the original only implemented 'q').
type OperatorConsole struct {
	ctx   *Context
	in    io.Reader
	hooks OperatorHooks
}

// NewOperatorConsole constructs a console reading from in (normally os.Stdin).
func NewOperatorConsole(ctx *Context, in io.Reader, hooks OperatorHooks) *OperatorConsole {
	return &OperatorConsole{ctx: ctx, in: in, hooks: hooks}
}

// Run scans lines from stdin until EOF or the context stops, dispatching
// each recognized command.
func (o *OperatorConsole) Run() {
	scanner := bufio.NewScanner(o.in)
	for scanner.Scan() {
		if o.ctx.Stopped() {
			return
		}
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		o.dispatch(strings.ToLower(cmd)[0])
	}
}

func (o *OperatorConsole) dispatch(cmd byte) {
	switch cmd {
	case 'q':
		operLog.Infof("operator requested quit")
		if o.hooks.Quit != nil {
			o.hooks.Quit()
		}
	case 'p':
		active := !o.ctx.ManualPauseActive()
		o.ctx.SetManualPause(active)
		operLog.Infof("operator toggled manual pause: now %v", active)
	case 's':
		if o.hooks.Status != nil {
			fmt.Println(o.hooks.Status())
		}
	case 'i':
		if o.hooks.Integrity != nil {
			fmt.Println(o.hooks.Integrity())
		}
	case 'm':
		if o.hooks.Metrics != nil {
			fmt.Println(o.hooks.Metrics())
		}
	case 'u':
		if o.hooks.Queue != nil {
			fmt.Println(o.hooks.Queue())
		}
	case 'h':
		fmt.Println(helpText)
	default:
		operLog.Warnf("unrecognized operator command %q; press h for help", string(cmd))
	}
}

const helpText = `commands: q quit, p toggle pause, s status, i integrity summary, m metrics, u queue depth, h help`
