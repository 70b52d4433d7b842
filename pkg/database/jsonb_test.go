package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    []string
		wantErr bool
	}{
		{name: "bytes", src: []byte(`["van","camper"]`), want: []string{"van", "camper"}},
		{name: "string", src: `["van"]`, want: []string{"van"}},
		{name: "null", src: nil, want: nil},
		{name: "wrong type", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JSONB[[]string]
			err := j.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, j.GetValue())
		})
	}
}
