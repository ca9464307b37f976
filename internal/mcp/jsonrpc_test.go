package mcp

import (
	"encoding/json"
	"testing"
)

func TestNewRequest_WireShape(t *testing.T) {
	b, err := json.Marshal(NewRequest(7, "tools/list", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}

func TestNotification_HasNoID(t *testing.T) {
	b, err := json.Marshal(NewNotification("notifications/initialized", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.hasID() {
		t.Fatalf("notification carries an id: %s", b)
	}
}

func TestEnvelope_NumericID(t *testing.T) {
	cases := []struct {
		name   string
		id     string
		want   int64
		wantOK bool
	}{
		{"number", `12`, 12, true},
		{"null", `null`, 0, false},
		{"missing", ``, 0, false},
		{"string", `"12"`, 0, false},
		{"fraction", `1.5`, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := envelope{ID: json.RawMessage(tc.id)}
			got, ok := env.numericID()
			if ok != tc.wantOK || got != tc.want {
				t.Fatalf("numericID() = %d, %v; want %d, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestRPCError_Error(t *testing.T) {
	err := &RPCError{Code: codeMethodNotFound, Message: "method not found: x"}
	if got := err.Error(); got != "jsonrpc error -32601: method not found: x" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestToolCallResult_Text(t *testing.T) {
	r := &ToolCallResult{Content: []ContentBlock{
		{Type: ContentText, Text: "first"},
		{Type: ContentImage, Data: "aGk=", MimeType: "image/png"},
		{Type: ContentText, Text: "second"},
	}}
	if got := r.Text(); got != "first\n[image]\nsecond" {
		t.Fatalf("Text() = %q", got)
	}
	var nilResult *ToolCallResult
	if got := nilResult.Text(); got != "" {
		t.Fatalf("nil Text() = %q", got)
	}
}
