package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RCOEM-Google-DSC/enso/service"
	"github.com/RCOEM-Google-DSC/enso/store"
)

func templatePDF() []byte {
	content := "0 0 1 rg 10 10 100 100 re f"
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 842 595] /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// env points the application data directory at a fresh temp dir.
func env(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENSO_APP_DATA_DIR", filepath.Join(dir, "appdata"))
	t.Setenv("ENSO_RESOURCES_DIR", filepath.Join(dir, "resources"))
	t.Setenv("ENSO_DEV_RESOURCES_DIR", filepath.Join(dir, "resources"))
	t.Setenv("ENSO_LOG_LEVEL", "error")
	t.Setenv("ENSO_PRESENCE_ENABLED", "false")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd(strings.NewReader(stdin), out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := run(t, "", append(args, "--json")...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func uploadTemplate(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "Award.pdf")
	require.NoError(t, os.WriteFile(path, templatePDF(), 0o644))
	var res service.UploadResult
	runJSON(t, &res, "template", "upload", path)
	require.True(t, res.Success)
	return res.Template.StorageKey
}

func TestTemplateCommands(t *testing.T) {
	dir := env(t)
	key := uploadTemplate(t, dir)
	assert.Equal(t, "award.pdf", key)

	var list []store.Template
	runJSON(t, &list, "template", "list")
	require.Len(t, list, 1)
	assert.Equal(t, "Award", list[0].DisplayName)

	out, err := run(t, "", "template", "path", key)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "appdata", "certificate", "template", key), strings.TrimSpace(out))

	out, err = run(t, "", "template", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "award.pdf")

	_, err = run(t, "", "template", "delete", key)
	require.NoError(t, err)
	_, err = run(t, "", "template", "delete", key)
	assert.ErrorContains(t, err, "not found")
}

func TestGenerateBulkCommand(t *testing.T) {
	dir := env(t)
	key := uploadTemplate(t, dir)
	folder := filepath.Join(dir, "out")

	var res service.BulkResult
	runJSON(t, &res, "generate", "bulk", key, "John Doe", "", "Jane/Smith", "--folder", folder)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 3, res.Total)
	want := filepath.Join(folder, "Certificate", "Award")
	assert.Equal(t, want, res.Folder)
	assert.FileExists(t, filepath.Join(want, "Award_John_Doe.pdf"))
	assert.FileExists(t, filepath.Join(want, "Award_Jane_Smith.pdf"))

	var history service.HistoryResult
	runJSON(t, &history, "history", "list")
	require.Len(t, history.Records, 2)
	assert.Equal(t, store.StatusSuccess, history.Records[0].Status)

	_, err := run(t, "", "history", "clear")
	require.NoError(t, err)
	runJSON(t, &history, "history", "list")
	assert.Empty(t, history.Records)
}

func TestGenerateBulkNamesFile(t *testing.T) {
	dir := env(t)
	key := uploadTemplate(t, dir)
	names := filepath.Join(dir, "names.csv")
	require.NoError(t, os.WriteFile(names, []byte("name,email\nAda,a@x\nGrace,g@x\n"), 0o644))

	out, err := run(t, "", "generate", "bulk", key, "--names", names, "--folder", filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Contains(t, out, "generated 2 of 2 certificates")
}

func TestGenerateBulkCancelled(t *testing.T) {
	dir := env(t)
	key := uploadTemplate(t, dir)

	out, err := run(t, "\n", "generate", "bulk", key, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "cancelled\n", out)
}

func TestGenerateSaveCommand(t *testing.T) {
	dir := env(t)
	key := uploadTemplate(t, dir)
	outDir := filepath.Join(dir, "single")
	require.NoError(t, os.Mkdir(outDir, 0o755))

	var res service.SaveResult
	runJSON(t, &res, "generate", "save", key, "Ada Lovelace", "--out", outDir, "--font-size", "30")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, filepath.Join(outDir, "Award_Ada_Lovelace.pdf"), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, templatePDF()))

	_, err = run(t, "", "generate", "save", "missing.pdf", "Ada")
	assert.ErrorContains(t, err, "not found")
}

func TestGeneratePreviewWithoutViewer(t *testing.T) {
	dir := env(t)
	key := uploadTemplate(t, dir)

	out, err := run(t, "", "generate", "preview", key, "Ada", "--no-open")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	t.Cleanup(func() { os.Remove(path) })
	assert.FileExists(t, path)
}

func TestStyleCommands(t *testing.T) {
	env(t)
	var res service.StyleResult
	runJSON(t, &res, "style", "show")
	assert.Equal(t, 45.0, res.Style.FontSize)

	runJSON(t, &res, "style", "set", "--font-size", "30", "--color", "255,0,0")
	assert.Equal(t, 30.0, res.Style.FontSize)
	require.NotNil(t, res.Style.TextColor)
	assert.Equal(t, 255, res.Style.TextColor.R)

	runJSON(t, &res, "style", "show")
	assert.Equal(t, 30.0, res.Style.FontSize)
	assert.Equal(t, 25.0, res.Style.YOffset)

	runJSON(t, &res, "style", "set", "--reset", "--x-offset=-10")
	assert.Equal(t, 45.0, res.Style.FontSize)
	assert.Equal(t, -10.0, res.Style.XOffset)

	_, err := run(t, "", "style", "set", "--color", "red")
	assert.Error(t, err)
}

func TestDataCommands(t *testing.T) {
	env(t)
	var added service.DataResult
	runJSON(t, &added, "data", "add", "members", "name=Ada", "age=36")
	require.True(t, added.Success)
	id := added.Record.ID()
	require.NotEmpty(t, id)

	out, err := run(t, "", "data", "load", "members")
	require.NoError(t, err)
	assert.Contains(t, out, "name=Ada")
	assert.Contains(t, out, "age=36")

	_, err = run(t, "", "data", "remove", "members", "nope")
	assert.Error(t, err)
	_, err = run(t, "", "data", "remove", "members", id)
	require.NoError(t, err)
	_, err = run(t, "", "data", "clear", "members")
	require.NoError(t, err)

	_, err = run(t, "", "data", "add", "members", "novalue")
	assert.Error(t, err)
}

func TestConvertCommand(t *testing.T) {
	dir := env(t)
	in := filepath.Join(dir, "people.csv")
	out := filepath.Join(dir, "people.json")
	require.NoError(t, os.WriteFile(in, []byte("name,team\nAda,core\nGrace,infra\n"), 0o644))

	text, err := run(t, "", "convert", in, out)
	require.NoError(t, err)
	assert.Contains(t, text, "converted 2 rows, 2 columns")

	var rows []map[string]any
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Equal(t, []map[string]any{{"name": "Ada", "team": "core"}, {"name": "Grace", "team": "infra"}}, rows)

	_, err = run(t, "", "convert", in, filepath.Join(dir, "people.xlsx"))
	assert.Error(t, err)
}

func TestPresenceDisabled(t *testing.T) {
	env(t)
	out, err := run(t, "", "presence", "status")
	require.NoError(t, err)
	assert.Equal(t, "disabled\n", out)

	_, err = run(t, "", "presence", "set")
	assert.ErrorContains(t, err, "disabled")
}
