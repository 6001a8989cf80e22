package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{"chat message", TypeChat, ChatData{Message: "hi"}, false},
		{"frame message", TypeFrame, "data:image/jpeg;base64,AAAA", false},
		{"nil data", TypePing, nil, false},
		{"unmarshalable", TypeChat, make(chan int), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestEmotionMessageNulls(t *testing.T) {
	tests := []struct {
		label, url string
		want       string
	}{
		{"sad", "/static/audio/a.mp3", `{"emotion":"sad","audio_url":"/static/audio/a.mp3"}`},
		{"happy", "", `{"emotion":"happy","audio_url":null}`},
	}
	for _, tt := range tests {
		msg, err := NewEmotionMessage(tt.label, tt.url)
		if err != nil {
			t.Fatal(err)
		}
		if string(msg.Data) != tt.want {
			t.Errorf("data = %s, want %s", msg.Data, tt.want)
		}
	}

	audio, _ := NewAudioMessage("/static/audio/b.mp3")
	if string(audio.Data) != `{"emotion":null,"audio_url":"/static/audio/b.mp3"}` {
		t.Errorf("audio data = %s", audio.Data)
	}
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"chat","data":{"message":"  hello "}}`))
	if err != nil {
		t.Fatal(err)
	}
	var chat ChatData
	if err := msg.ParseData(&chat); err != nil || chat.Message != "  hello " {
		t.Errorf("chat = %+v, %v", chat, err)
	}

	if _, err := ParseMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseMessage([]byte(`{"data":1}`)); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestParseDataEmpty(t *testing.T) {
	msg := &Message{Type: TypeChat}
	var chat ChatData
	if err := msg.ParseData(&chat); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestFrameURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`{"type":"frame","data":"data:image/jpeg;base64,AAAA"}`, "data:image/jpeg;base64,AAAA", false},
		{`{"type":"frame","data":{"image":"data:image/png;base64,BBBB"}}`, "data:image/png;base64,BBBB", false},
		{`{"type":"frame"}`, "", true},
		{`{"type":"frame","data":42}`, "", true},
	}
	for _, tt := range tests {
		msg, err := ParseMessage([]byte(tt.raw))
		if err != nil {
			t.Fatal(err)
		}
		got, err := msg.FrameURL()
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FrameURL(%s) = %q, %v", tt.raw, got, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	msg, _ := NewResponseMessage("I'm here.")
	data, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatal(err)
	}
	var resp ResponseData
	if err := json.Unmarshal(parsed.Data, &resp); err != nil || resp.Response != "I'm here." {
		t.Errorf("resp = %+v, %v", resp, err)
	}
	if parsed.Timestamp != msg.Timestamp {
		t.Error("timestamp lost in round trip")
	}
}
