package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBarLine(t *testing.T) {
	pb := NewProgressBar(nil, "notes")
	pb.width = 10

	pb.Update(512*1024, 1024*1024)
	line := pb.line()
	assert.Contains(t, line, "notes [#####.....]")
	assert.Contains(t, line, " 50%")
	assert.Contains(t, line, "512 KiB/1.0 MiB")

	pb.UpdatePercent(-1)
	assert.Equal(t, "notes [~~~~~~~~~~]", pb.line())

	pb.UpdatePercent(140)
	assert.Equal(t, "notes [##########] 100%", pb.line())
}

func TestProgressBarFinishDrawsOnce(t *testing.T) {
	var out bytes.Buffer
	pb := NewProgressBar(&out, "install")
	for p := 0; p <= 100; p += 10 {
		pb.UpdatePercent(p)
	}
	pb.Finish()
	pb.Finish()

	assert.True(t, strings.HasSuffix(out.String(), "100%\n"))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}
