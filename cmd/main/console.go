package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/CTAG07/Pronostico/pkg/markov"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const exitCommand = "exit"

var stateEmojis = map[string]string{
	"lluvia":  "🌧️",
	"sol":     "☀️",
	"nublado": "☁️",
}

// PrintMatrix writes m as a table with one row and one column per state,
// probabilities rounded to two decimals.
func PrintMatrix(w io.Writer, space *markov.StateSpace, m *markov.TransitionMatrix) error {
	if _, err := fmt.Fprintln(w, "Matriz de Transición:"); err != nil {
		return err
	}
	if space.Len() == 0 {
		_, err := fmt.Fprintln(w, "(sin observaciones)")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	labels := space.Labels()
	_, _ = fmt.Fprintf(tw, "\t%s\t\n", strings.Join(labels, "\t"))
	for i, from := range labels {
		_, _ = fmt.Fprintf(tw, "%s\t", from)
		for _, p := range m.Row(i) {
			_, _ = fmt.Fprintf(tw, "%.2f\t", p)
		}
		_, _ = fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// Console is the interactive next-day query loop.
type Console struct {
	in    *bufio.Scanner
	out   io.Writer
	space *markov.StateSpace
	m     *markov.TransitionMatrix
}

// NewConsole creates a Console reading states from in and answering on out.
func NewConsole(in io.Reader, out io.Writer, space *markov.StateSpace, m *markov.TransitionMatrix) *Console {
	return &Console{
		in:    bufio.NewScanner(in),
		out:   out,
		space: space,
		m:     m,
	}
}

// Run prompts until the user types "exit" (any case) or the input ends.
// Unknown states are reported and the prompt repeats.
func (c *Console) Run() error {
	fmt.Fprintln(c.out, "\n--- 🔮  Modo Interactivo 🔮  ---")
	fmt.Fprintln(c.out, "Introduce un estado para ver las probabilidades del día siguiente.")
	fmt.Fprintf(c.out, "Escribe '%s' para salir.\n", exitCommand)

	for {
		fmt.Fprint(c.out, "\n🌦️   Introduce el estado actual: ")
		if !c.in.Scan() {
			if err := c.in.Err(); err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			c.goodbye()
			return nil
		}

		input := strings.TrimSpace(c.in.Text())
		if strings.EqualFold(input, exitCommand) {
			c.goodbye()
			return nil
		}
		if err := c.answer(input); err != nil {
			return err
		}
	}
}

func (c *Console) answer(state string) error {
	probs, err := markov.Distribution(state, c.space, c.m)
	if err != nil {
		var unknown *markov.UnknownStateError
		if errors.As(err, &unknown) {
			fmt.Fprintf(c.out, "❌  Error: Estado '%s' no reconocido. Estados válidos: %s\n",
				unknown.State, strings.Join(unknown.Known, ", "))
			return nil
		}
		return err
	}

	fmt.Fprintln(c.out, "\n📊  Probabilidades del siguiente día:")
	for _, p := range probs {
		fmt.Fprintf(c.out, "  - %s  %s: %.2f\n", stateEmojis[p.State], capitalize(p.State), p.Probability)
	}
	return nil
}

// displayState renders a state label the way the console shows it, e.g. "☀️  Sol".
func displayState(state string) string {
	label := capitalize(state)
	if emoji, ok := stateEmojis[state]; ok {
		return emoji + "  " + label
	}
	return label
}

// capitalize upper-cases the first letter and lower-cases the rest, so
// "nublado parcial" becomes "Nublado parcial".
func capitalize(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return cases.Upper(language.Spanish).String(s[:size]) + cases.Lower(language.Spanish).String(s[size:])
}

func (c *Console) goodbye() {
	fmt.Fprintln(c.out, "\n👋  Saliendo del modo interactivo.")
}
