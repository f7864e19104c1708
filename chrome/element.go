package chrome

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/lauaudit/browser"
)

type element struct {
	el *rod.Element
	s  *Session
}

var _ browser.Element = (*element)(nil)

func (e *element) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) TagName(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) Style(ctx context.Context, prop string) (string, error) {
	res, err := e.el.Context(ctx).Eval(`(p) => getComputedStyle(this).getPropertyValue(p)`, prop)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) Focused(ctx context.Context) (bool, error) {
	res, err := e.el.Context(ctx).Eval(`() => this === document.activeElement`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *element) Focus(ctx context.Context) error {
	return e.el.Context(ctx).Focus()
}

func (e *element) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("chrome: click: %w", err)
	}
	return e.s.settle(ctx)
}

func (e *element) Fill(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	tag, err := e.TagName(ctx)
	if err != nil {
		return err
	}
	if tag == "select" {
		return el.Select([]string{value}, true, rod.SelectorTypeText)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("chrome: fill: %w", err)
	}
	return el.Input(value)
}
