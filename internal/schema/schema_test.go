package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validInputs = `{"date":"2024-06-15","lineup_weekly_var_pct":8,"premium_percentile":72,"fob_spread_usd_per_ton":5,"export_pace_z":0.5,"fx_var_5d_pct":-0.8,"chicago_percentile":65}`

const validBook = `{"exposicao_fisica_pct":0,"limite_long_pct":80,"limite_short_pct":-50,"hedge_atual_pct":0,"hedge_meta_pct":60}`

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		payload string
		wantErr string
	}{
		{"inputs ok", Inputs, validInputs, ""},
		{"inputs missing field", Inputs, `{"date":"2024-06-15"}`, "missing properties"},
		{"percentile out of range", Inputs, strings.Replace(validInputs, `"premium_percentile":72`, `"premium_percentile":120`, 1), "/premium_percentile"},
		{"unknown field", Inputs, strings.Replace(validInputs, `{`, `{"oops":1,`, 1), "oops"},
		{"book ok", Book, validBook, ""},
		{"positive short limit", Book, strings.Replace(validBook, `-50`, `10`, 1), "/limite_short_pct"},
		{"request ok", DecisionRequest, `{"inputs":` + validInputs + `,"book":` + validBook + `}`, ""},
		{"request without book", DecisionRequest, `{"inputs":` + validInputs + `}`, ""},
		{"request bad nested", DecisionRequest, `{"inputs":{"date":1}}`, "/inputs"},
		{"record ok", MarketRecord, `{"date":"2024-06-14","premium_paranagua":"81.50","chicago_front":1200,"fob_paranagua":480,"fob_us_gulf":470,"lineup_bruto":80,"lineup_liquido":null}`, ""},
		{"record bad decimal", MarketRecord, `{"date":"2024-06-14","premium_paranagua":"abc","chicago_front":1200,"fob_paranagua":480,"fob_us_gulf":470}`, "/premium_paranagua"},
		{"record high precision number", MarketRecord, `{"date":"2024-06-14","premium_paranagua":81.123456789012345678,"chicago_front":1200,"fob_paranagua":480,"fob_us_gulf":470}`, ""},
		{"malformed", Inputs, `{`, "malformed JSON"},
		{"empty payload", Book, ``, "malformed JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.schema, []byte(tt.payload))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.schema, ve.Schema)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	assert.Error(t, Validate("nope", []byte(`{}`)))
}
