package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_NowNs_monotonic(t *testing.T) {
	var a = NowNs()
	var b = NowNs()
	assert.GreaterOrEqual(t, b, a)
}
