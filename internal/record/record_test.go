package record

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StampsCaptureFields(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 0, 0, time.Local)

	r := New(2.5, "14:05", SourceManual, "k1", now)

	assert.Equal(t, 2.5, r.Value)
	assert.Equal(t, "14:05", r.TimeOfDay)
	assert.Equal(t, now.UnixMilli(), r.CapturedAt)
	assert.Equal(t, "2024-03-09", r.CaptureDate)
	assert.Equal(t, SourceManual, r.Source)
	assert.Equal(t, int64(0), r.ID)
	assert.True(t, r.HasTime())
}

func TestValidate(t *testing.T) {
	base := Record{Value: 1.5, Source: SourceManual}

	tests := []struct {
		name string
		mod  func(r *Record)
		code ValidationCode
	}{
		{"valid", func(r *Record) {}, ""},
		{"at minimum", func(r *Record) { r.Value = 1.0 }, ""},
		{"below minimum", func(r *Record) { r.Value = 0.99 }, ErrCodeBelowMinimum},
		{"nan", func(r *Record) { r.Value = math.NaN() }, ErrCodeNotANumber},
		{"inf", func(r *Record) { r.Value = math.Inf(1) }, ErrCodeNotANumber},
		{"good time", func(r *Record) { r.TimeOfDay = "9:07" }, ""},
		{"bad hour", func(r *Record) { r.TimeOfDay = "24:00" }, ErrCodeBadTime},
		{"bad format", func(r *Record) { r.TimeOfDay = "ten" }, ErrCodeBadTime},
		{"bad source", func(r *Record) { r.Source = "carrier-pigeon" }, ErrCodeBadSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mod(&r)
			err := Validate(r, DefaultMinValue)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.code, ve.Code)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestValues_PreservesOrder(t *testing.T) {
	rs := []Record{{Value: 3}, {Value: 1.2}, {Value: 2}}
	assert.Equal(t, []float64{3, 1.2, 2}, Values(rs))
}

func TestClone_DoesNotAlias(t *testing.T) {
	rs := []Record{{Value: 3}}
	c := Clone(rs)
	c[0].Value = 9
	assert.Equal(t, 3.0, rs[0].Value)
	assert.NotNil(t, Clone(nil))
}

func TestFixedKeys(t *testing.T) {
	g := NewFixedKeys("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Equal(t, "key-3", g.Generate())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
