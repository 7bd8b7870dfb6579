package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseName(t *testing.T) {
	cases := map[string]string{
		"Kia Rio or similar":                     "Kia Rio",
		"Toyota Corolla Hybrid or similar (SUV)": "Toyota Corolla",
		"Mazda CX-5  Automatic similar":          "Mazda CX-5",
		"Hyundai i30 (Petrol)":                   "Hyundai i30",
		"Automatic":                              "Automatic",
		"  MG3   Manual ":                        "MG3",
	}
	for in, want := range cases {
		require.Equal(t, want, BaseName(in), in)
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$1,234.50 total", 1234.5, true},
		{"AUD 99", 99, true},
		{"A$ 45.10", 45.1, true},
		{"Total 312", 312, true},
		{"  $ 80 ", 80, true},
		{"Total, 120", 120, true},
		{"$, 45 per day", 45, true},
		{"Seats 5, $1,020", 1020, true},
		{", ,", 0, false},
		{"Price on request", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParsePrice(c.in)
		require.Equal(t, c.ok, ok, c.in)
		require.InDelta(t, c.want, got, 0.0001, c.in)
	}
}

func TestClassify(t *testing.T) {
	c, err := NewClassifier(nil)
	require.NoError(t, err)

	code, group := c.Classify("Kia Picanto or similar", "Kia Picanto")
	require.Equal(t, "EDAR", code)
	require.Equal(t, "Picanto, Rio & MG3", group)

	code, _ = c.Classify("Hyundai Santa Fe", "Hyundai Santa Fe")
	require.Equal(t, "SFAR", code)

	code, group = c.Classify("Ford Ranger", "Ford Ranger")
	require.Equal(t, OtherCode, code)
	require.Equal(t, OtherGroup, group)

	_, err = NewClassifier([]CategoryRule{{Code: "BAD", Pattern: "("}})
	require.Error(t, err)
}

func TestMatchTarget(t *testing.T) {
	targets := []string{"corolla", "cx-5"}
	require.Equal(t, "corolla", MatchTarget("Toyota  Corolla or similar", targets))
	require.Equal(t, "cx-5", MatchTarget("Mazda CX - 5", targets))
	require.Empty(t, MatchTarget("Kia Rio", targets))
	require.Empty(t, MatchTarget("Kia Rio", nil))
}
