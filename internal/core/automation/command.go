package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Action names one of the primitive interactions a page supports.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionFill       Action = "fill"
	ActionClick      Action = "click"
	ActionRead       Action = "read"
	ActionWait       Action = "wait"
	ActionScreenshot Action = "screenshot"
)

// WaitState is the element state a wait command blocks for.
type WaitState string

const (
	StateVisible  WaitState = "visible"
	StateHidden   WaitState = "hidden"
	StateAttached WaitState = "attached"
)

const defaultScreenshotPath = "screenshot.png"

func ParseWaitState(s string) (WaitState, error) {
	switch WaitState(s) {
	case "":
		return StateVisible, nil
	case StateVisible, StateHidden, StateAttached:
		return WaitState(s), nil
	}
	return "", fmt.Errorf("unknown wait state %q", s)
}

// Command is one of the variants below; the set is closed.
type Command interface {
	Action() Action
	// Target is the selector, URL or path the command acts on.
	Target() string
	validate() error
	run(ctx context.Context, p Page) (string, error)
}

type NavigateCommand struct{ URL string }

type FillCommand struct {
	Selector string
	Text     string
}

type ClickCommand struct{ Selector string }

type ReadCommand struct{ Selector string }

type WaitCommand struct {
	Selector string
	State    WaitState
}

type ScreenshotCommand struct{ Path string }

func Navigate(url string) Command { return NavigateCommand{URL: url} }

func Fill(selector, text string) Command { return FillCommand{Selector: selector, Text: text} }

func Click(selector string) Command { return ClickCommand{Selector: selector} }

func Read(selector string) Command { return ReadCommand{Selector: selector} }

func Wait(selector string, state WaitState) Command {
	return WaitCommand{Selector: selector, State: state}
}

func Screenshot(path string) Command { return ScreenshotCommand{Path: path} }

// ParseCommand builds a command from an action name and loose parameters,
// rejecting unknown actions and missing parameters before anything runs.
func ParseCommand(action string, params map[string]string) (Command, error) {
	var cmd Command
	switch Action(action) {
	case ActionNavigate:
		cmd = NavigateCommand{URL: params["url"]}
	case ActionFill:
		text, ok := params["text"]
		if !ok {
			return nil, missing(ActionFill, "text")
		}
		cmd = FillCommand{Selector: params["selector"], Text: text}
	case ActionClick:
		cmd = ClickCommand{Selector: params["selector"]}
	case ActionRead:
		cmd = ReadCommand{Selector: params["selector"]}
	case ActionWait:
		state, err := ParseWaitState(params["state"])
		if err != nil {
			return nil, &ActionError{Kind: KindInvalidCommand, Action: ActionWait, Selector: params["selector"], Detail: err.Error()}
		}
		cmd = WaitCommand{Selector: params["selector"], State: state}
	case ActionScreenshot:
		cmd = ScreenshotCommand{Path: params["path"]}
	default:
		return nil, &ActionError{Kind: KindInvalidCommand, Action: Action(action), Detail: "unknown action"}
	}

	if err := cmd.validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (c NavigateCommand) Action() Action { return ActionNavigate }
func (c NavigateCommand) Target() string { return c.URL }

func (c NavigateCommand) validate() error {
	if c.URL == "" {
		return missing(ActionNavigate, "url")
	}
	return nil
}

func (c NavigateCommand) run(ctx context.Context, p Page) (string, error) {
	if err := p.Navigate(ctx, c.URL); err != nil {
		return "", err
	}
	return "Navigated to " + c.URL, nil
}

func (c FillCommand) Action() Action { return ActionFill }
func (c FillCommand) Target() string { return c.Selector }

func (c FillCommand) validate() error {
	if c.Selector == "" {
		return missing(ActionFill, "selector")
	}
	return nil
}

func (c FillCommand) run(ctx context.Context, p Page) (string, error) {
	if err := p.Fill(ctx, c.Selector, c.Text); err != nil {
		return "", err
	}
	return "Filled " + c.Selector, nil
}

func (c ClickCommand) Action() Action { return ActionClick }
func (c ClickCommand) Target() string { return c.Selector }

func (c ClickCommand) validate() error {
	if c.Selector == "" {
		return missing(ActionClick, "selector")
	}
	return nil
}

func (c ClickCommand) run(ctx context.Context, p Page) (string, error) {
	if err := p.Click(ctx, c.Selector); err != nil {
		return "", err
	}
	return "Clicked " + c.Selector, nil
}

func (c ReadCommand) Action() Action { return ActionRead }
func (c ReadCommand) Target() string { return c.Selector }

func (c ReadCommand) validate() error {
	if c.Selector == "" {
		return missing(ActionRead, "selector")
	}
	return nil
}

func (c ReadCommand) run(ctx context.Context, p Page) (string, error) {
	return p.Text(ctx, c.Selector)
}

func (c WaitCommand) Action() Action { return ActionWait }
func (c WaitCommand) Target() string { return c.Selector }

func (c WaitCommand) validate() error {
	if c.Selector == "" {
		return missing(ActionWait, "selector")
	}
	if _, err := ParseWaitState(string(c.State)); err != nil {
		return &ActionError{Kind: KindInvalidCommand, Action: ActionWait, Selector: c.Selector, Detail: err.Error()}
	}
	return nil
}

func (c WaitCommand) run(ctx context.Context, p Page) (string, error) {
	state, _ := ParseWaitState(string(c.State))
	if err := p.WaitFor(ctx, c.Selector, state); err != nil {
		return "", err
	}
	return fmt.Sprintf("Waited for %s to be %s", c.Selector, state), nil
}

func (c ScreenshotCommand) Action() Action { return ActionScreenshot }

func (c ScreenshotCommand) Target() string {
	if c.Path == "" {
		return defaultScreenshotPath
	}
	return c.Path
}

func (c ScreenshotCommand) validate() error { return nil }

func (c ScreenshotCommand) run(ctx context.Context, p Page) (string, error) {
	img, err := p.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	path := c.Target()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &ActionError{Kind: KindArtifactWrite, Action: ActionScreenshot, Selector: path, Detail: "create screenshot dir", Err: err}
		}
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", &ActionError{Kind: KindArtifactWrite, Action: ActionScreenshot, Selector: path, Detail: "write screenshot", Err: err}
	}
	return "Screenshot saved to " + path, nil
}
