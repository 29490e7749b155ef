package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var accentColor = tcell.NewRGBColor(229, 112, 0)

const navHint = "[yellow]TAB/↑↓ 移动 | ENTER 确认 | ESC 取消[white]"

// newTUIApp 每个对话框使用独立的 tview 应用，测试中替换为模拟屏幕
var newTUIApp = func() *tview.Application {
	app := tview.NewApplication()
	app.EnableMouse(true)

	tview.Styles.PrimitiveBackgroundColor = tcell.ColorBlack
	tview.Styles.ContrastBackgroundColor = tcell.ColorBlack
	tview.Styles.BorderColor = accentColor
	tview.Styles.TitleColor = accentColor
	tview.Styles.PrimaryTextColor = tcell.ColorWhite
	tview.Styles.SecondaryTextColor = tcell.ColorLightGray
	return app
}

// tuiPrompter 类似 dialog 的全屏对话框
type tuiPrompter struct {
	title string
	out   io.Writer
}

func newTUIPrompter(title string) *tuiPrompter {
	return &tuiPrompter{title: title, out: os.Stdout}
}

func (p *tuiPrompter) frame(box *tview.Box, title string) {
	box.SetBorder(true).
		SetTitle(" " + title + " ").
		SetTitleAlign(tview.AlignCenter)
}

// centered 把控件放在屏幕中央
func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func (p *tuiPrompter) Menu(title string, items []MenuItem) (string, error) {
	app := newTUIApp()
	var (
		selected  string
		cancelled = true
	)

	list := tview.NewList().ShowSecondaryText(false)
	for _, item := range items {
		list.AddItem(fmt.Sprintf("%-12s %s", item.Tag, item.Label), "", 0, nil)
	}
	list.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		selected = items[index].Tag
		cancelled = false
		app.Stop()
	})
	list.SetDoneFunc(func() {
		app.Stop()
	})
	p.frame(list.Box, title)

	height := len(items) + 2
	if height > 17 {
		height = 17
	}
	if err := app.SetRoot(centered(list, 72, height), true).SetFocus(list).Run(); err != nil {
		return "", err
	}
	if cancelled {
		return "", ErrCancelled
	}
	return selected, nil
}

func (p *tuiPrompter) Input(title, init string) (string, error) {
	return p.inputField(title, init, false)
}

func (p *tuiPrompter) Password(title string) (string, error) {
	return p.inputField(title, "", true)
}

func (p *tuiPrompter) inputField(title, init string, masked bool) (string, error) {
	app := newTUIApp()
	cancelled := true

	field := tview.NewInputField().
		SetLabel("> ").
		SetText(init).
		SetFieldWidth(0)
	if masked {
		field.SetMaskCharacter('*')
	}
	field.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			cancelled = false
			app.Stop()
		case tcell.KeyEscape:
			app.Stop()
		}
	})
	p.frame(field.Box, title)

	if err := app.SetRoot(centered(field, 72, 3), true).SetFocus(field).Run(); err != nil {
		return "", err
	}
	if cancelled {
		return "", ErrCancelled
	}
	return field.GetText(), nil
}

// YesNo ESC 与选择“否”等价
func (p *tuiPrompter) YesNo(question string) (bool, error) {
	app := newTUIApp()
	answer := false

	modal := tview.NewModal().
		SetText(question + "\n\n" + navHint).
		AddButtons([]string{"是", "否"}).
		SetDoneFunc(func(buttonIndex int, _ string) {
			answer = buttonIndex == 0
			app.Stop()
		})
	p.frame(modal.Box, p.title)

	if err := app.SetRoot(modal, true).SetFocus(modal).Run(); err != nil {
		return false, err
	}
	return answer, nil
}

func (p *tuiPrompter) Message(text string) error {
	app := newTUIApp()

	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"确定"}).
		SetDoneFunc(func(int, string) {
			app.Stop()
		})
	p.frame(modal.Box, p.title)

	return app.SetRoot(modal, true).SetFocus(modal).Run()
}

// Info 不等待确认，管道运行期间终端交给进度条
func (p *tuiPrompter) Info(text string) {
	fmt.Fprintln(p.out, text)
}
