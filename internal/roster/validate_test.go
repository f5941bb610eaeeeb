package roster

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTransformer(now time.Time) *Transformer {
	return &Transformer{
		Department: "Student",
		Title:      "Student",
		Group:      "Students",
		Photos:     NewPhotoNormalizer(""),
		Now:        func() time.Time { return now },
	}
}

func TestNormalizeID(t *testing.T) {
	cases := map[string]string{
		"1A":          "26",
		"12345":       "12345",
		" 12 34 ":     "1234",
		"ff":          "255",
		"S1234-X":     "S1234-X",
		"":            "",
		"00000000001": "00000000001",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeID(in), "input %q", in)
	}
}

func TestNormalizeIDIdempotent(t *testing.T) {
	for _, in := range []string{"1A", "DEADBEEF", "987654", "abc"} {
		once := NormalizeID(in)
		assert.Equal(t, once, NormalizeID(once), "input %q", in)
	}
}

func TestResolveUserIDPrefersCard(t *testing.T) {
	assert.Equal(t, "26", ResolveUserID(SourceRecord{StudentID: "100", CardID: " 1A "}))
	assert.Equal(t, "100", ResolveUserID(SourceRecord{StudentID: "100", CardID: "   "}))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Chan TaiMan", SanitizeName("Chan, Tai-Man!"))
	assert.Equal(t, "Lee  KaYan 2", SanitizeName("  Lee (陳) Ka_Yan 2 "))
}

func TestValidateAccepts(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	tr := fixedTransformer(now)

	exp, skip := tr.Validate(SourceRecord{
		StudentID:   "20231234",
		Name:        "Wong Siu-Ming",
		LivedName:   "Sam",
		Remarks:     "Year 2",
		CampusEntry: "Y",
		Photo:       "abc=",
	})
	require.Nil(t, skip)
	assert.Equal(t, "20231234", exp.UserID)
	assert.Equal(t, "20231234", exp.CSN)
	assert.Equal(t, "Wong SiuMing", exp.Name)
	assert.Equal(t, "Students", exp.UserGroup)
	assert.Equal(t, "abc=", exp.Photo)
	assert.Equal(t, exp.Photo, exp.FaceImage1)
	assert.Equal(t, exp.Photo, exp.FaceImage2)
	assert.Equal(t, now.AddDate(-10, 0, 0), exp.Start)
	assert.Equal(t, now.AddDate(10, 0, 0), exp.Expiry)
}

func TestValidateDefaultPhoto(t *testing.T) {
	tr := fixedTransformer(time.Now())
	exp, skip := tr.Validate(SourceRecord{StudentID: "1", Name: "A"})
	require.Nil(t, skip)
	assert.Equal(t, tr.Photos.Default(), exp.Photo)
	assert.NotEmpty(t, exp.Photo)
}

func TestValidateIDTooLong(t *testing.T) {
	tr := fixedTransformer(time.Now())
	_, skip := tr.Validate(SourceRecord{StudentID: "123456789012", Name: "Too Long"})
	require.NotNil(t, skip)
	require.Len(t, skip.Reasons, 1)
	assert.Contains(t, skip.Reasons[0], "ID too long")
}

func TestValidateCollectsAllReasons(t *testing.T) {
	tr := fixedTransformer(time.Now())
	long := strings.Repeat("x", 49)
	_, skip := tr.Validate(SourceRecord{StudentID: " ", Name: "!!!", LivedName: long, Remarks: long})
	require.NotNil(t, skip)
	assert.Equal(t, []string{
		"ID is empty",
		"Name is empty",
		"Lived name exceeds 48 characters",
		"Remarks exceed 48 characters",
	}, skip.Reasons)
}

func TestExpiryWindow(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	for _, flag := range []string{"N", "n", " n "} {
		_, expiry := ExpiryWindow(now, flag)
		assert.Equal(t, time.Date(2026, 9, 17, 12, 0, 0, 0, time.UTC), expiry, "flag %q", flag)
	}
	for _, flag := range []string{"Y", "", "yes"} {
		start, expiry := ExpiryWindow(now, flag)
		assert.Equal(t, 2016, start.Year())
		assert.Equal(t, 2036, expiry.Year(), "flag %q", flag)
	}
}

func TestTransformAllSplitsAndKeepsOrder(t *testing.T) {
	tr := fixedTransformer(time.Now())
	exports, skipped := tr.TransformAll([]SourceRecord{
		{StudentID: "1", Name: "A"},
		{StudentID: "2", Name: strings.Repeat("b", 60)},
		{StudentID: "3", Name: "C"},
	})
	require.Len(t, exports, 2)
	assert.Equal(t, "1", exports[0].UserID)
	assert.Equal(t, "3", exports[1].UserID)
	require.Len(t, skipped, 1)
	assert.Equal(t, "2", skipped[0].StudentID)
	assert.Equal(t, []string{"Name exceeds 48 characters"}, skipped[0].Reasons)
}
