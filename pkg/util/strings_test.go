package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 42, ParseIntDefault(" 42 ", 7))
	assert.Equal(t, -3, ParseIntDefault("-3", 7))
	assert.Equal(t, int64(9), ParseInt64Default("nope", 9))
	assert.Equal(t, int64(1)<<40, ParseInt64Default("1099511627776", 9))
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitCSV(" a:9092, ,b:9092,"))
	assert.Nil(t, SplitCSV(""))
}
