package format_test

import (
	"strings"
	"testing"
	"time"

	"obelus/internal/format"
)

func TestASCII_BasicTable(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Job", "Status", "Duration")
	tb.Row("default 1/2 on gpu-a", "Succeeded", "4m 12s")
	tb.Row("default 2/2 on gpu-a", "Failed", "3m 58s")
	out := tb.String()

	// StyleLight renders headers uppercase.
	if !strings.Contains(out, "JOB") {
		t.Errorf("expected header 'JOB' in output:\n%s", out)
	}
	if !strings.Contains(out, "default 1/2 on gpu-a") {
		t.Errorf("expected job label in output:\n%s", out)
	}
	if !strings.Contains(out, "4m 12s") {
		t.Errorf("expected '4m 12s' in output:\n%s", out)
	}
	// ASCII uses box-drawing characters from StyleLight
	if strings.Contains(out, "───") == false {
		t.Errorf("expected box-drawing characters in ASCII output:\n%s", out)
	}
}

func TestMarkdown_BasicTable(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("Step", "Status", "Exit")
	tb.Row("Run test shard (run-tests)", "Failed", 1)
	tb.Row("Upload step logs (upload-logs)", "OK", 0)
	out := tb.String()

	// Markdown tables have | delimiters and --- separator
	if !strings.Contains(out, "| Step") {
		t.Errorf("expected markdown header with '| Step':\n%s", out)
	}
	if !strings.Contains(out, "---") {
		t.Errorf("expected markdown separator '---':\n%s", out)
	}
	if !strings.Contains(out, "Run test shard (run-tests)") {
		t.Errorf("expected step name in output:\n%s", out)
	}
}

func TestMarkdown_WithFooter(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("Config", "Shards")
	tb.Row("default", 2)
	tb.Row("smoke", 1)
	tb.Footer("TOTAL", 3)
	out := tb.String()

	if !strings.Contains(out, "TOTAL") {
		t.Errorf("expected footer 'TOTAL' in output:\n%s", out)
	}
	if !strings.Contains(out, "3") {
		t.Errorf("expected footer value '3' in output:\n%s", out)
	}
}

func TestColumns_RightAlign(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Name", "Bytes")
	tb.Row("logs-test-default-1-2-gpu-a", 12345)
	tb.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	out := tb.String()

	if !strings.Contains(out, "12345") {
		t.Errorf("expected '12345' in output:\n%s", out)
	}
}

func TestSameData_DualFormat(t *testing.T) {
	build := func(m format.Mode) string {
		tb := format.NewTable(m)
		tb.Header("A", "B")
		tb.Row("x", "y")
		return tb.String()
	}

	ascii := build(format.ASCII)
	md := build(format.Markdown)

	if ascii == md {
		t.Error("ASCII and Markdown output should differ")
	}
	// Both should contain the data
	for _, out := range []string{ascii, md} {
		if !strings.Contains(out, "x") || !strings.Contains(out, "y") {
			t.Errorf("expected data in output:\n%s", out)
		}
	}
}

// --- Helper tests ---

func TestFmtBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tc := range tests {
		got := format.FmtBytes(tc.in)
		if got != tc.want {
			t.Errorf("FmtBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFmtDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m 0s"},
		{90 * time.Second, "1m 30s"},
		{5*time.Minute + 15*time.Second, "5m 15s"},
	}
	for _, tc := range tests {
		got := format.FmtDuration(tc.in)
		if got != tc.want {
			t.Errorf("FmtDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"ab", 3, "ab"},
		{"abcdef", 3, "abc"},
	}
	for _, tc := range tests {
		got := format.Truncate(tc.in, tc.maxLen)
		if got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
		}
	}
}

func TestBoolMark(t *testing.T) {
	if format.BoolMark(true) != "✓" {
		t.Error("BoolMark(true) should be ✓")
	}
	if format.BoolMark(false) != "✗" {
		t.Error("BoolMark(false) should be ✗")
	}
}
