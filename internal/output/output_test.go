package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferedUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfoAndSuccess_GoToStdout(t *testing.T) {
	u, out, errOut := newBufferedUI()
	u.Info("fetching item %d", 12345)
	u.Success("started task %d", 12345)

	assert.Contains(t, out.String(), "fetching item 12345")
	assert.Contains(t, out.String(), "started task 12345")
	assert.Empty(t, errOut.String())
}

func TestWarningAndError_GoToStderr(t *testing.T) {
	u, out, errOut := newBufferedUI()
	u.Warning("calendar unreachable")
	u.Error("timer rejected request")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "calendar unreachable")
	assert.Contains(t, errOut.String(), "timer rejected request")
}

func TestVerboseLog_SuppressedByDefault(t *testing.T) {
	u, out, _ := newBufferedUI()
	u.VerboseLog("details")
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("details")
	assert.Contains(t, out.String(), "details")
}

func TestDryRunMsg(t *testing.T) {
	u, _, errOut := newBufferedUI()
	u.DryRunMsg("would start timer")
	assert.Empty(t, errOut.String())

	u.DryRun = true
	u.DryRunMsg("would start timer")
	assert.Contains(t, errOut.String(), "[DRY-RUN] would start timer")
}

func TestStateColor_PassthroughForUnknown(t *testing.T) {
	assert.Equal(t, "Weird", StateColor("Weird"))
}
