package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func Test_inspectArtifact(t *testing.T) {
	plain := []byte("plain partition bytes")
	gz := append([]byte{0x1f, 0x8b, 0x08, 0x00}, bytes.Repeat([]byte{0}, 20)...)
	salted := append([]byte("Salted__"), bytes.Repeat([]byte{0xaa}, 16)...)

	type args struct {
		files map[string][]byte
		path  string
	}
	tests := []struct {
		name      string
		args      args
		want      ArtifactProperties
		wantParts []string
		wantErr   error
	}{
		{
			name: "suffix gz.enc",
			args: args{files: map[string][]byte{"img.gz.enc": plain}, path: "img.gz.enc"},
			want: ArtifactProperties{IsEncrypted: true, IsCompressed: true},
		},
		{
			name: "suffix gz",
			args: args{files: map[string][]byte{"img.gz": plain}, path: "img.gz"},
			want: ArtifactProperties{IsCompressed: true},
		},
		{
			name: "suffix enc",
			args: args{files: map[string][]byte{"img.enc": plain}, path: "img.enc"},
			want: ArtifactProperties{IsEncrypted: true},
		},
		{
			name: "gzip magic",
			args: args{files: map[string][]byte{"image": gz}, path: "image"},
			want: ArtifactProperties{IsCompressed: true},
		},
		{
			name: "openssl magic",
			args: args{files: map[string][]byte{"image": salted}, path: "image"},
			want: ArtifactProperties{IsEncrypted: true},
		},
		{
			name: "no magic",
			args: args{files: map[string][]byte{"image": plain}, path: "image"},
			want: ArtifactProperties{},
		},
		{
			name: "file shorter than header",
			args: args{files: map[string][]byte{"image": {0x1f}}, path: "image"},
			want: ArtifactProperties{},
		},
		{
			name: "split parts sorted",
			args: args{
				files: map[string][]byte{"out.ac": plain, "out.aa": plain, "out.ab": plain},
				path:  "out",
			},
			want:      ArtifactProperties{IsSplit: true},
			wantParts: []string{"out.aa", "out.ab", "out.ac"},
		},
		{
			name: "split first part sniffed",
			args: args{
				files: map[string][]byte{"out.aa": salted, "out.ab": plain},
				path:  "out",
			},
			want:      ArtifactProperties{IsSplit: true, IsEncrypted: true},
			wantParts: []string{"out.aa", "out.ab"},
		},
		{
			name: "split with suffix",
			args: args{
				files: map[string][]byte{"img.gz.enc.aa": plain, "img.gz.enc.ab": plain},
				path:  "img.gz.enc",
			},
			want:      ArtifactProperties{IsSplit: true, IsCompressed: true, IsEncrypted: true},
			wantParts: []string{"img.gz.enc.aa", "img.gz.enc.ab"},
		},
		{
			name: "stem siblings",
			args: args{
				files: map[string][]byte{"disk.img": plain, "disk.txt": plain},
				path:  "disk.img",
			},
			want:      ArtifactProperties{IsSplit: true},
			wantParts: []string{"disk.img", "disk.txt"},
		},
		{
			name: "single split part",
			args: args{
				files: map[string][]byte{"img.gz.enc.aa": salted},
				path:  "img.gz.enc",
			},
			want:      ArtifactProperties{IsSplit: true, IsCompressed: true, IsEncrypted: true},
			wantParts: []string{"img.gz.enc.aa"},
		},
		{
			name: "single split part sniffed",
			args: args{
				files: map[string][]byte{"out.aa": gz},
				path:  "out",
			},
			want:      ArtifactProperties{IsSplit: true, IsCompressed: true},
			wantParts: []string{"out.aa"},
		},
		{
			name: "existing file with one sibling",
			args: args{
				files: map[string][]byte{"image": plain, "image.log": plain},
				path:  "image",
			},
			want: ArtifactProperties{},
		},
		{
			name:    "missing file",
			args:    args{files: map[string][]byte{}, path: "nothing.img"},
			wantErr: ErrPathNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.args.files)

			got, err := inspectArtifact(filepath.Join(dir, tt.args.path))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("inspectArtifact() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("inspectArtifact() error = %v", err)
			}

			want := tt.want
			for _, part := range tt.wantParts {
				want.SplitParts = append(want.SplitParts, filepath.Join(dir, part))
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("inspectArtifact() = %+v, want %+v", got, want)
			}
		})
	}
}

func Test_inspectArtifact_directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "image"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := inspectArtifact(filepath.Join(dir, "image")); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("inspectArtifact() error = %v, want %v", err, ErrPathNotFound)
	}
}

// 备份产物的后缀必须能被识别回原来的属性
func Test_inspectArtifact_roundTrip(t *testing.T) {
	dir := t.TempDir()
	spec := BackupSpec{
		SourcePartitionPath: "/dev/sdb1",
		OutputPath:          filepath.Join(dir, "img"),
		Compress:            true,
		Encrypt:             true,
		Password:            "pw",
	}
	p, err := buildBackupPipeline(defaultConfig(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.Target, []byte("Salted__0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := inspectArtifact(p.Target)
	if err != nil {
		t.Fatalf("inspectArtifact() error = %v", err)
	}
	want := ArtifactProperties{IsEncrypted: true, IsCompressed: true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("inspectArtifact() = %+v, want %+v", got, want)
	}
}

func Test_escapeGlob(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"img[1]": []byte("x"), "img1.aa": []byte("x"), "img1.ab": []byte("x")})

	got, err := inspectArtifact(filepath.Join(dir, "img[1]"))
	if err != nil {
		t.Fatalf("inspectArtifact() error = %v", err)
	}
	if got.IsSplit {
		t.Errorf("brackets were treated as a glob class: %+v", got)
	}
}

func Test_artifactSize(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"out.aa": make([]byte, 100), "out.ab": make([]byte, 50)})

	props, err := inspectArtifact(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := artifactSize(filepath.Join(dir, "out"), props)
	if err != nil {
		t.Fatalf("artifactSize() error = %v", err)
	}
	if got != 150 {
		t.Errorf("artifactSize() = %d, want 150", got)
	}
}

func Test_printArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Name = "disk.img"
	if _, err := zw.Write([]byte("partition")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := printArtifact(&out, path); err != nil {
		t.Fatalf("printArtifact() error = %v", err)
	}
	for _, want := range []string{"加密: 否", "压缩: 是", "分卷: 否", "原始文件名: disk.img"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("printArtifact() output missing %q:\n%s", want, out.String())
		}
	}
}
