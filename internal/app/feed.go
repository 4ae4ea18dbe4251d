package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	logx "errtoast/pkg/logx"
)

const maxFeedLine = 1 << 20

// command is a feed line carrying an "op" field. It stands in for the
// actions a view layer would trigger.
type command struct {
	Op        string `json:"op"`
	Signature string `json:"signature,omitempty"`
	ID        int64  `json:"id,omitempty"`
	Size      int    `json:"size,omitempty"`
	Format    string `json:"format,omitempty"`
	Path      string `json:"path,omitempty"`
}

// runFeed reads JSON lines from r until EOF or ctx is done. Records go to
// the pipeline in arrival order; commands are executed inline so they
// observe every record before them.
func (a *App) runFeed(ctx context.Context, r io.Reader) error {
	lines := make(chan []byte, 64)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxFeedLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	log := a.log.With(logx.String("comp", "feed"))
	var n, dropped int
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-scanErr:
				default:
				}
				log.Info("feed ended", logx.Int("lines", n), logx.Int("dropped", dropped))
				if err != nil {
					return fmt.Errorf("read feed: %w", err)
				}
				return nil
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			n++
			if cmd, ok := parseCommand(line); ok {
				if err := a.exec(cmd); err != nil {
					log.Warn("command failed", logx.String("op", cmd.Op), logx.Err(err))
				}
				continue
			}
			if res := a.pipe.IngestRaw(line); !res.Accepted() {
				dropped++
				log.Debug("record dropped", logx.String("reason", string(res.Reason)), logx.String("signature", res.Signature))
			}
		}
	}
}

func parseCommand(line []byte) (command, bool) {
	var cmd command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return command{}, false
	}
	cmd.Op = strings.ToLower(strings.TrimSpace(cmd.Op))
	return cmd, cmd.Op != ""
}

func (a *App) exec(cmd command) error {
	switch cmd.Op {
	case "ignore_session":
		return a.IgnoreForSession(cmd.Signature, cmd.ID)
	case "ignore_forever":
		return a.IgnoreForever(cmd.Signature, cmd.ID, nil)
	case "unignore":
		if cmd.Signature == "" {
			return fmt.Errorf("unignore: signature required")
		}
		a.Unignore(cmd.Signature, nil)
	case "close":
		if !a.toasts.Close(cmd.ID) {
			return fmt.Errorf("close: no notification %d", cmd.ID)
		}
	case "close_all":
		a.toasts.CloseAll()
	case "pin":
		if _, ok := a.TogglePin(cmd.ID); !ok {
			return fmt.Errorf("pin: no notification %d", cmd.ID)
		}
	case "clear_history":
		a.history.Clear()
	case "set_history_size":
		a.SetHistorySize(cmd.Size)
	case "export":
		return a.Export(cmd.Format, cmd.Path)
	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
	return nil
}
