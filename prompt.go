package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// MenuItem 菜单中的一项
type MenuItem struct {
	Tag   string
	Label string
}

// prompter 交互式输入的来源。用户按下取消时返回 ErrCancelled
type prompter interface {
	Menu(title string, items []MenuItem) (string, error)
	Input(title, init string) (string, error)
	Password(title string) (string, error)
	YesNo(question string) (bool, error)
	Message(text string) error
	Info(text string)
}

// linePrompter 逐行读取标准输入，用于 --no-tui 或非终端环境
type linePrompter struct {
	in           *bufio.Reader
	out          io.Writer
	readPassword func() ([]byte, error)
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	p := &linePrompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.readPassword = func() ([]byte, error) {
			return term.ReadPassword(int(f.Fd()))
		}
	}
	return p
}

// readLine 读取一行，EOF 视为取消
func (p *linePrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *linePrompter) Menu(title string, items []MenuItem) (string, error) {
	for {
		fmt.Fprintln(p.out, title)
		for i, item := range items {
			fmt.Fprintf(p.out, "  %d) %-12s %s\n", i+1, item.Tag, item.Label)
		}
		fmt.Fprint(p.out, "请选择 (序号或名称, q 取消): ")

		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		answer := strings.TrimSpace(line)
		if answer == "" || answer == "q" {
			return "", ErrCancelled
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(items) {
			return items[n-1].Tag, nil
		}
		for _, item := range items {
			if item.Tag == answer {
				return item.Tag, nil
			}
		}
		fmt.Fprintf(p.out, "无效的选择: %s\n", answer)
	}
}

func (p *linePrompter) Input(title, init string) (string, error) {
	if init != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", title, init)
	} else {
		fmt.Fprintf(p.out, "%s: ", title)
	}
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer := strings.TrimSpace(line); answer != "" {
		return answer, nil
	}
	return init, nil
}

func (p *linePrompter) Password(title string) (string, error) {
	fmt.Fprintf(p.out, "%s ", title)
	if p.readPassword == nil {
		return p.readLine()
	}
	b, err := p.readPassword()
	fmt.Fprintln(p.out)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", err
	}
	return string(b), nil
}

func (p *linePrompter) YesNo(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", strings.TrimSpace(question))
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	ans := strings.TrimSpace(strings.ToLower(line))
	return ans == "y" || ans == "yes", nil
}

func (p *linePrompter) Message(text string) error {
	_, err := fmt.Fprintln(p.out, text)
	return err
}

func (p *linePrompter) Info(text string) {
	fmt.Fprintln(p.out, text)
}
