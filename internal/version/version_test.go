package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion_Defaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "dev", Commit)
	assert.Equal(t, "unknown", BuildTime)
}

func TestVersion_String(t *testing.T) {
	assert.Equal(t, "studyrec dev (commit dev, built unknown)", String())
}
