package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nightfall-go/mapper/internal/data"
	"github.com/nightfall-go/mapper/internal/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const walkScript = `
function walk_commands(step)
  if step.kind == "door" then
    return { "open " .. step.dir, step.command }
  end
  if step.kind == "secret" then
    return "search"
  end
  return nil
end

function ignore_message(text)
  return string.find(text, "tells you") ~= nil
end
`

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestWalkCommands(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "walk.lua", walkScript)

	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	door := route.Step{From: 1, To: 2, Dir: data.North, Command: "n", Kind: "door"}
	assert.Equal(t, []string{"open n", "n"}, e.WalkCommands(door))

	secret := route.Step{From: 1, To: 3, Dir: data.East, Command: "e", Kind: "secret"}
	assert.Equal(t, []string{"search"}, e.WalkCommands(secret))

	plain := route.Step{From: 1, To: 4, Dir: data.South, Command: "s", Kind: "normal"}
	assert.Equal(t, []string{"s"}, e.WalkCommands(plain))
}

func TestIgnoreMessage(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "walk.lua", walkScript)

	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	assert.True(t, e.IgnoreMessage("Gandalf tells you: hurry up"))
	assert.False(t, e.IgnoreMessage("You are standing in a dusty hall."))
}

func TestNoScripts(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	step := route.Step{Dir: data.Up, Command: "u"}
	assert.Equal(t, []string{"u"}, e.WalkCommands(step))
	assert.False(t, e.IgnoreMessage("anything"))
}

func TestScriptErrorFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "bad.lua", `function walk_commands(step) error("boom") end`)

	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, []string{"w"}, e.WalkCommands(route.Step{Dir: data.West, Command: "w"}))
}

func TestReloadKeepsOldOnSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "walk.lua", `function ignore_message(text) return true end`)

	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	require.True(t, e.IgnoreMessage("x"))

	writeScript(t, dir, "walk.lua", `function ignore_message(text) return (`)
	require.Error(t, e.Reload())
	assert.True(t, e.IgnoreMessage("x"))

	writeScript(t, dir, "walk.lua", `function ignore_message(text) return false end`)
	require.NoError(t, e.Reload())
	assert.False(t, e.IgnoreMessage("x"))
}

func TestNewEngineRejectsBrokenScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "broken.lua", `function (`)
	_, err := NewEngine(dir, zap.NewNop())
	assert.Error(t, err)
}
