package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  CommandType
		args  []string
	}{
		{input: "/submit 12.5 Kindia cow", want: CommandSubmit, args: []string{"12.5", "Kindia", "cow"}},
		{input: "milk 8l", want: CommandSubmit, args: []string{"8l"}},
		{input: "/Submit 50 CP-North cow", want: CommandSubmit, args: []string{"50", "CP-North", "cow"}},
		{input: "  /BALANCE ", want: CommandBalance},
		{input: "solde", want: CommandBalance},
		{input: "/due", want: CommandDue},
		{input: "/start", want: CommandHelp},
		{input: "hello there", want: CommandUnknown, args: []string{"there"}},
		{input: "   ", want: CommandUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd := ParseCommand(tt.input)
			assert.Equal(t, tt.want, cmd.Type)
			assert.Equal(t, tt.args, cmd.Args)
			assert.Equal(t, tt.input, cmd.Raw)
		})
	}
}
