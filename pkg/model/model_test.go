package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	assert.True(t, Number(math.NaN()).Null)
	assert.Equal(t, "287.5", Number(287.5).Key(KindNumber))
	assert.Equal(t, "1e+06", Number(1e6).Key(KindNumber))
	assert.Equal(t, "USA", Text("USA").Key(KindText))
	assert.Equal(t, "0", Number(math.Copysign(0, -1)).Key(KindNumber))
	assert.Equal(t, Number(0).Key(KindNumber), Number(math.Copysign(0, -1)).Key(KindNumber))
	assert.Equal(t, "", Null().String(KindNumber))
	assert.Equal(t, "number", KindNumber.String())
	assert.Equal(t, "unknown(7)", Kind(7).String())
}

func TestTable(t *testing.T) {
	tbl := NewTable("bkg", []Column{{Name: "SEQID"}, {Name: "GENDER_R"}})
	tbl.AppendRow([]Value{Number(1), Number(2)})

	assert.Equal(t, 1, tbl.NumRows())
	assert.Equal(t, []string{"SEQID", "GENDER_R"}, tbl.ColumnNames())
	assert.Equal(t, 1, tbl.ColumnIndex("GENDER_R"))
	assert.Equal(t, -1, tbl.ColumnIndex("gender_r"))
	_, ok := tbl.Column("C_D05")
	assert.False(t, ok)

	clone := tbl.Clone()
	clone.Rows[0][0] = Number(99)
	assert.Equal(t, 1.0, tbl.Rows[0][0].Num)

	renamed := tbl.Renamed("bkg_cleaned")
	assert.Equal(t, "bkg_cleaned", renamed.Name)
	assert.Equal(t, "bkg", tbl.Name)

	assert.Panics(t, func() { tbl.AppendRow([]Value{Number(1)}) })
}

func TestMetadata(t *testing.T) {
	tbl := NewTable("lit", []Column{{Name: "SEQID"}, {Name: "PVLIT1"}, {Name: "PV"}, {Name: "ICTHOME"}})
	md := tbl.Metadata()
	md.Key = "SEQID"

	col := md.GetColumnByName("pvlit1")
	require.NotNil(t, col)
	assert.True(t, col.IsPlausibleValue())
	assert.False(t, md.GetColumnByName("PV").IsPlausibleValue())
	assert.False(t, md.GetColumnByName("ICTHOME").IsPlausibleValue())
	assert.True(t, md.IsKeyColumn(md.GetColumnByName(" seqid ")))
	assert.Nil(t, md.GetColumnByName("PVNUM1"))

	assert.Equal(t, "", col.LabelFor(1))
}

func TestMissingPolicy(t *testing.T) {
	status := Column{
		Name:         "C_D05",
		Kind:         KindNumber,
		MissingCodes: map[float64]MissingReason{9: ReasonNotStated},
	}
	country := Column{Name: "CNTRYID", Kind: KindText}

	policy := DefaultMissingPolicy()
	policy.Codes[9] = ReasonRefused
	policy.Codes[7] = ReasonDontKnow

	tests := []struct {
		name    string
		col     Column
		value   Value
		reason  MissingReason
		missing bool
	}{
		{"null", status, Null(), ReasonSystemMissing, true},
		{"column code wins", status, Number(9), ReasonNotStated, true},
		{"global code", status, Number(7), ReasonDontKnow, true},
		{"valid response", status, Number(1), 0, false},
		{"text is never coded", country, Text("9"), 0, false},
		{"null text", country, Null(), ReasonSystemMissing, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := policy.Classify(tt.col, tt.value)
			assert.Equal(t, tt.missing, ok)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.missing, policy.IsMissing(tt.col, tt.value))
		})
	}

	kept := policy.WithExclude(ReasonNotStated)
	assert.True(t, kept.IsMissing(status, Null()), "system missing is always excluded")
	assert.True(t, kept.IsMissing(status, Number(9)))
	assert.False(t, kept.IsMissing(status, Number(7)))
	assert.Equal(t, policy.Codes, kept.Codes)

	assert.True(t, MissingPolicy{}.IsMissing(status, Null()), "nil exclude set treats every reason as missing")
}

func TestMissingReason(t *testing.T) {
	for _, r := range AllReasons() {
		parsed, err := ParseMissingReason(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	r, err := ParseMissingReason(" Valid_Skip ")
	require.NoError(t, err)
	assert.Equal(t, ReasonValidSkip, r)

	_, err = ParseMissingReason("skipped")
	assert.Error(t, err)
	assert.Equal(t, "unknown(42)", MissingReason(42).String())

	var u MissingReason
	require.NoError(t, u.UnmarshalText([]byte("refused")))
	assert.Equal(t, ReasonRefused, u)
	text, err := u.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "refused", string(text))
}
