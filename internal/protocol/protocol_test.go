package protocol

import (
	"encoding/json"
	"testing"
)

func TestRequestEnvelopeShape(t *testing.T) {
	data, err := NewRequest("fig-1", "req-1", Request{Type: ReqGetFileDataURL, URI: "sha1://abc"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["type"] != "figurlRequest" {
		t.Errorf("type = %v, want figurlRequest", generic["type"])
	}
	if generic["requestId"] != "req-1" {
		t.Errorf("requestId = %v, want req-1", generic["requestId"])
	}
	req, ok := generic["request"].(map[string]interface{})
	if !ok {
		t.Fatalf("request is %T, want object", generic["request"])
	}
	if req["type"] != "getFileDataUrl" || req["uri"] != "sha1://abc" {
		t.Errorf("request = %v", req)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    EnvelopeType
		wantErr bool
	}{
		{"response", `{"type":"figurlResponse","requestId":"r","response":{}}`, EnvFigurlResponse, false},
		{"push", `{"type":"hostMessage","message":{"type":"hostClosing"}}`, EnvHostMessage, false},
		{"missing type", `{"requestId":"r"}`, "", true},
		{"not json", `hello`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if env.Type != tt.want {
				t.Errorf("Type = %q, want %q", env.Type, tt.want)
			}
		})
	}
}

func TestFigureDataPassthrough(t *testing.T) {
	raw := json.RawMessage(`{"type":"multiscale_spike_density","uri":"sha1://abc","extra":[1,2,3]}`)
	data, err := NewResponse("r", FigureDataResponse{Type: ReqGetFigureData, FigureData: raw})
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var resp FigureDataResponse
	if err := json.Unmarshal(env.Response, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if string(resp.FigureData) != string(raw) {
		t.Errorf("figureData = %s, want %s", resp.FigureData, raw)
	}
}

func TestIsNull(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"null", true},
		{"  null\n", true},
		{"{}", false},
		{`"null"`, false},
	}
	for _, tt := range tests {
		if got := IsNull(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("IsNull(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"null", true},
		{"false", true},
		{" 0 ", true},
		{"0.0", true},
		{"-0", true},
		{`""`, true},
		{"true", false},
		{"42", false},
		{`"x"`, false},
		{"{}", false},
		{"[]", false},
		{`{"type":"multiscale_spike_density"}`, false},
	}
	for _, tt := range tests {
		if got := IsEmpty(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
