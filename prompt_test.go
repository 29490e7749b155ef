package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func Test_linePrompter_Menu(t *testing.T) {
	items := []MenuItem{{Tag: "sda", Label: "465.8 GB | SSD"}, {Tag: "sdb", Label: "1.0 GB | USB"}}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "by number", input: "2\n", want: "sdb"},
		{name: "by tag", input: "sda\n", want: "sda"},
		{name: "retry after invalid", input: "9\nsdb\n", want: "sdb"},
		{name: "quit", input: "q\n", wantErr: ErrCancelled},
		{name: "empty answer", input: "\n", wantErr: ErrCancelled},
		{name: "eof", input: "", wantErr: ErrCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := newLinePrompter(strings.NewReader(tt.input), &out)
			got, err := p.Menu("选择存储设备:", items)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Menu() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Menu() = %q, want %q", got, tt.want)
			}
			if !strings.Contains(out.String(), "465.8 GB | SSD") {
				t.Errorf("menu output missing label:\n%s", out.String())
			}
		})
	}
}

func Test_linePrompter_Input(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		init    string
		want    string
		wantErr error
	}{
		{name: "answer", input: "/mnt/backup.img\n", init: "/tmp/backup_sda1.img", want: "/mnt/backup.img"},
		{name: "default", input: "\n", init: "/tmp/backup_sda1.img", want: "/tmp/backup_sda1.img"},
		{name: "no trailing newline", input: "500M", init: "1G", want: "500M"},
		{name: "eof", input: "", init: "1G", wantErr: ErrCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newLinePrompter(strings.NewReader(tt.input), &bytes.Buffer{})
			got, err := p.Input("路径", tt.init)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Input() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Input() = %q, want %q", got, tt.want)
			}
		})
	}
}

func Test_linePrompter_YesNo(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"whatever\n", false},
	}
	for _, tt := range tests {
		p := newLinePrompter(strings.NewReader(tt.input), &bytes.Buffer{})
		got, err := p.YesNo("是否压缩镜像文件?")
		if err != nil {
			t.Fatalf("YesNo(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("YesNo(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func Test_linePrompter_Password(t *testing.T) {
	p := newLinePrompter(strings.NewReader("pw one\n"), &bytes.Buffer{})
	got, err := p.Password("输入密码:")
	if err != nil {
		t.Fatalf("Password() error = %v", err)
	}
	if got != "pw one" {
		t.Errorf("Password() = %q, want %q", got, "pw one")
	}

	p.readPassword = func() ([]byte, error) { return []byte("from terminal"), nil }
	if got, _ := p.Password("输入密码:"); got != "from terminal" {
		t.Errorf("Password() = %q, want %q", got, "from terminal")
	}
}
