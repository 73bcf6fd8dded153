package pgscopecfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	cfg := Config{
		Upstream: "",
		Mode:     "bogus",
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"upstream", "mode", "max_message_size", "upstream_dial_timeout_ms"} {
		assert.Contains(t, msg, want)
	}
}

func TestParseByteSizeUnits(t *testing.T) {
	cases := map[string]ByteSize{
		"1024": 1024,
		"1kb":  KB,
		"1KiB": KiB,
		"1mib": MiB,
		"1GiB": GiB,
		"256":  256,
	}
	for s, want := range cases {
		got, err := ParseByteSize(s)
		require.NoErrorf(t, err, "ParseByteSize(%q)", s)
		assert.Equalf(t, want, got, "ParseByteSize(%q)", s)
	}
}

func TestByteSizeJSONRoundTrip(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalJSON([]byte(`"1GiB"`)))
	assert.Equal(t, GiB, b)

	data, err := b.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1GiB"`, string(data))
}
