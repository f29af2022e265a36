package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/CTAG07/Pronostico/pkg/markov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var basicObservations = []markov.Observation{
	{Day: 1, State: "sol"},
	{Day: 2, State: "sol"},
	{Day: 3, State: "lluvia"},
	{Day: 4, State: "sol"},
}

func TestPrintMatrix(t *testing.T) {
	space, m := markov.Estimate(basicObservations)

	var out bytes.Buffer
	require.NoError(t, PrintMatrix(&out, space, m))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Matriz de Transición:", lines[0])
	assert.Equal(t, []string{"lluvia", "sol"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"lluvia", "0.00", "1.00"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"sol", "0.50", "0.50"}, strings.Fields(lines[3]))
}

func TestPrintMatrixEmpty(t *testing.T) {
	space, m := markov.Estimate(nil)

	var out bytes.Buffer
	require.NoError(t, PrintMatrix(&out, space, m))
	assert.Equal(t, "Matriz de Transición:\n(sin observaciones)\n", out.String())
}

func runConsole(t *testing.T, input string) string {
	t.Helper()
	space, m := markov.Estimate(basicObservations)
	var out bytes.Buffer
	require.NoError(t, NewConsole(strings.NewReader(input), &out, space, m).Run())
	return out.String()
}

func TestConsoleKnownState(t *testing.T) {
	out := runConsole(t, "sol\nexit\n")

	assert.Contains(t, out, "📊  Probabilidades del siguiente día:")
	assert.Contains(t, out, "  - 🌧️  Lluvia: 0.50\n")
	assert.Contains(t, out, "  - ☀️  Sol: 0.50\n")
	assert.Contains(t, out, "👋  Saliendo del modo interactivo.")
}

func TestConsoleTrimsInput(t *testing.T) {
	out := runConsole(t, "   lluvia  \nexit\n")
	assert.Contains(t, out, "  - ☀️  Sol: 1.00\n")
}

func TestConsoleUnknownStateReprompts(t *testing.T) {
	out := runConsole(t, "nieve\nSol\nsol\nexit\n")

	assert.Contains(t, out, "❌  Error: Estado 'nieve' no reconocido. Estados válidos: lluvia, sol\n")
	// Matching is case-sensitive.
	assert.Contains(t, out, "❌  Error: Estado 'Sol' no reconocido.")
	assert.Equal(t, 4, strings.Count(out, "Introduce el estado actual"))
	assert.Equal(t, 1, strings.Count(out, "Probabilidades del siguiente día"))
}

func TestConsoleExitIsCaseInsensitive(t *testing.T) {
	for _, input := range []string{"exit\n", "EXIT\n", "  Exit \n"} {
		out := runConsole(t, input+"sol\n")
		assert.NotContains(t, out, "Probabilidades", "input %q should have ended the loop", input)
		assert.Contains(t, out, "Saliendo del modo interactivo")
	}
}

func TestConsoleEndOfInput(t *testing.T) {
	out := runConsole(t, "sol")
	assert.Contains(t, out, "  - ☀️  Sol: 0.50\n")
	assert.True(t, strings.HasSuffix(out, "👋  Saliendo del modo interactivo.\n"))

	out = runConsole(t, "")
	assert.Contains(t, out, "Saliendo del modo interactivo")
}

func TestConsoleStateWithoutTransitions(t *testing.T) {
	space, m := markov.Estimate([]markov.Observation{{Day: 1, State: "nublado"}, {Day: 3, State: "sol"}})
	var out bytes.Buffer
	require.NoError(t, NewConsole(strings.NewReader("nublado\n"), &out, space, m).Run())

	assert.Contains(t, out.String(), "  - ☁️  Nublado: 0.00\n")
	assert.Contains(t, out.String(), "  - ☀️  Sol: 0.00\n")
}

func TestDisplayState(t *testing.T) {
	assert.Equal(t, "☀️  Sol", displayState("sol"))
	assert.Equal(t, "Granizo", displayState("granizo"))
}

func TestCapitalize(t *testing.T) {
	testCases := map[string]string{
		"nublado parcial": "Nublado parcial",
		"LLUVIA FUERTE":   "Lluvia fuerte",
		"ñieve":           "Ñieve",
		"":                "",
	}
	for in, want := range testCases {
		assert.Equal(t, want, capitalize(in), "capitalize(%q)", in)
	}
	assert.Equal(t, "☁️  Nublado", displayState("nublado"))
}
