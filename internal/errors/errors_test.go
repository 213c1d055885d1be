package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"config error", CodeConfigInvalid, "Invalid config value", CategoryConfig},
		{"storage error", CodeArtifactWrite, "Cannot store array", CategoryStorage},
		{"transport error", CodeDial, "Cannot connect to server", CategoryTransport},
		{"cli error", CodeNPYRead, "Cannot read .npy file", CategoryCLI},
		{"unknown error code", "E999", "Unknown error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "--trials must be positive, got %d", -1)
	if err.Message != "--trials must be positive, got -1" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "" || err.Error() != err.Message {
		t.Errorf("uncoded error = %q", err.Error())
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := New(CodeDataDir).Wrap(cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if got := err.Error(); got != "E201: Cannot create data directory: permission denied" {
		t.Errorf("Error() = %q", got)
	}

	var te *TrialError
	if !stderrors.As(error(err), &te) || te.Code != CodeDataDir {
		t.Error("errors.As should find *TrialError")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, CodeListen) != nil {
		t.Error("FromError(nil) should be nil")
	}

	orig := New(CodeConfigParse)
	if FromError(orig, CodeListen) != orig {
		t.Error("FromError should return an existing TrialError unchanged")
	}

	cause := stderrors.New("address in use")
	te := FromError(cause, CodeListen)
	if te.Code != CodeListen || te.Wrapped != cause {
		t.Errorf("FromError() = %+v", te)
	}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		loc  *Location
		want string
	}{
		{nil, ""},
		{&Location{File: "trialstream.toml"}, "trialstream.toml"},
		{&Location{File: "trialstream.json", Key: "storage.backend"}, "trialstream.json (storage.backend)"},
	}
	for _, tt := range tests {
		if got := tt.loc.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}

	err := New(CodeConfigInvalid).WithKey("server.route").WithLocation("a.toml")
	if err.Location.String() != "a.toml (server.route)" {
		t.Errorf("Location = %q", err.Location.String())
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New(CodeConfigInvalid).
		WithLocation("trialstream.toml").
		WithKey("server.heartbeat_interval").
		WithSuggestion("Use a heartbeat shorter than server.read_timeout").
		WithExample("[server]\nheartbeat_interval = \"20s\"").
		Wrap(stderrors.New("60s >= 60s"))

	out := err.Format()
	for _, want := range []string{
		"ERROR E104: Invalid config value",
		"trialstream.toml (server.heartbeat_interval)",
		"Cause: 60s >= 60s",
		"Hint: Use a heartbeat shorter",
		"Example:",
		"    heartbeat_interval = \"20s\"",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("Format() emitted ANSI codes with colors disabled")
	}
}

func TestFormatCompact(t *testing.T) {
	err := New(CodeConfigParse).WithLocation("bad.json")
	if got := err.FormatCompact(); got != "bad.json: E102: Invalid config syntax" {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New(CodeS3Setup).WithKey("storage.s3.bucket").Wrap(stderrors.New(`bucket "" is empty`))

	var obj map[string]string
	if e := json.Unmarshal([]byte(err.FormatJSON()), &obj); e != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v", e)
	}
	if obj["code"] != CodeS3Setup || obj["category"] != "storage" || obj["key"] != "storage.s3.bucket" {
		t.Errorf("FormatJSON() = %v", obj)
	}
	if obj["cause"] != `bucket "" is empty` {
		t.Errorf("cause = %q", obj["cause"])
	}
	if _, ok := obj["file"]; ok {
		t.Error("empty file should be omitted")
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Fprint(&buf, stderrors.New("plain failure"))
	if !strings.Contains(buf.String(), "ERROR: plain failure") {
		t.Errorf("Fprint(plain) = %q", buf.String())
	}

	buf.Reset()
	Fprint(&buf, New(CodeRedisConnect))
	if !strings.Contains(buf.String(), "ERROR E205: Cannot reach Redis") {
		t.Errorf("Fprint(coded) = %q", buf.String())
	}
}

func TestWrapText(t *testing.T) {
	if wrapText("", 10) != nil {
		t.Error("wrapText(\"\") should be nil")
	}
	lines := wrapText("one two three four five", 9)
	want := []string{"one two", "three", "four five"}
	if len(lines) != len(want) {
		t.Fatalf("wrapText() = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRegistry(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 {
		t.Fatal("registry is empty")
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Errorf("codes not sorted: %q before %q", codes[i-1], codes[i])
		}
	}
	for _, code := range codes {
		tmpl, ok := GetTemplate(code)
		if !ok || tmpl.Message == "" || tmpl.Category == "" {
			t.Errorf("template %s incomplete: %+v", code, tmpl)
		}
		prefix := map[Category]string{
			CategoryConfig:    "E1",
			CategoryStorage:   "E2",
			CategoryTransport: "E3",
			CategoryCLI:       "E4",
		}[tmpl.Category]
		if !strings.HasPrefix(code, prefix) {
			t.Errorf("code %s has category %s", code, tmpl.Category)
		}
	}

	Register("E499", ErrorTemplate{Category: CategoryCLI, Message: "custom"})
	defer delete(registry, "E499")
	if New("E499").Message != "custom" {
		t.Error("Register() did not add template")
	}
}
