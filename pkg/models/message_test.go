package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRawMessageEvent_Validate(t *testing.T) {
	valid := RawMessageEvent{Text: "Your OTP is 1234", Sender: "BANKX", Kind: KindSMS, SourceTimestamp: time.Now()}

	tests := []struct {
		name   string
		mutate func(e *RawMessageEvent)
		want   string
	}{
		{name: "valid", mutate: func(e *RawMessageEvent) {}, want: ""},
		{name: "blank text", mutate: func(e *RawMessageEvent) { e.Text = "  " }, want: "text"},
		{name: "missing sender", mutate: func(e *RawMessageEvent) { e.Sender = "" }, want: "sender"},
		{name: "unknown kind", mutate: func(e *RawMessageEvent) { e.Kind = "MMS" }, want: "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid
			tt.mutate(&ev)
			assert.Equal(t, tt.want, ev.Validate())
		})
	}
}
